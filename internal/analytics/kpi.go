// Package analytics derives dashboard figures from ledger rows and project
// aggregates.
//
// Every function here is a pure fold: inputs are never modified, output order
// is deterministic, and calling any of them again with the same inputs yields
// the same result.
package analytics

import (
	"capex/internal/core"
)

// KPI is the year-to-date headline for a set of ledger rows.
type KPI struct {
	RealYTD      float64 `json:"realYtd"`
	BudgetYTD    float64 `json:"budgetYtd"`
	Variance     float64 `json:"variance"`
	ExecutionPct float64 `json:"executionPct"`
}

// Summarize computes the YTD figures through reportingMonth. Real counts only
// booked actuals; budget counts every row regardless of the forecast flag.
func Summarize(rows []core.LedgerRow, reportingMonth int) KPI {
	var actual, budget core.Sum
	for _, r := range rows {
		if r.Month > reportingMonth {
			continue
		}
		if !r.IsForecast {
			actual.Add(r.ActualAmountUSD)
		}
		budget.Add(r.BudgetAmountUSD)
	}
	k := KPI{RealYTD: actual.Float64(), BudgetYTD: budget.Float64()}
	k.Variance = k.RealYTD - k.BudgetYTD
	k.ExecutionPct = ExecutionPct(k.RealYTD, k.BudgetYTD)
	return k
}

// ExecutionPct is real as a percentage of budget; 0 when budget is 0.
func ExecutionPct(actual, budget float64) float64 {
	return core.Ratio(actual, budget)
}

// MonthPoint is one calendar month of the full-year chart.
type MonthPoint struct {
	Month    int     `json:"month"`
	Label    string  `json:"label"`
	Real     float64 `json:"real"`
	Forecast float64 `json:"forecast"`
	Budget   float64 `json:"budget"`
}

// MonthlySeries returns twelve points, January first, with no reporting
// cutoff. Rows with a month outside 1-12 are ignored.
func MonthlySeries(rows []core.LedgerRow) []MonthPoint {
	var booked, forecast, budget [12]core.Sum
	for _, r := range rows {
		if r.Month < 1 || r.Month > 12 {
			continue
		}
		i := r.Month - 1
		if r.IsForecast {
			forecast[i].Add(r.ActualAmountUSD)
		} else {
			booked[i].Add(r.ActualAmountUSD)
		}
		budget[i].Add(r.BudgetAmountUSD)
	}
	out := make([]MonthPoint, 12)
	for i := range out {
		out[i] = MonthPoint{
			Month:    i + 1,
			Label:    core.MonthLabel(i + 1),
			Real:     booked[i].Float64(),
			Forecast: forecast[i].Float64(),
			Budget:   budget[i].Float64(),
		}
	}
	return out
}
