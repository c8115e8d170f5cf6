package analytics

import (
	"sort"

	"capex/internal/core"
)

// DefaultTopN is the size of the top spenders ranking on the dashboard.
const DefaultTopN = 5

// Dimension selects the classification used by GroupBy.
type Dimension string

const (
	BySegment  Dimension = "segment"
	ByCategory Dimension = "category"
)

func (d Dimension) of(r core.LedgerRow) string {
	if d == ByCategory {
		return r.Category
	}
	return r.Segment
}

// GroupTotal is one bar of a segment or category rollup.
type GroupTotal struct {
	Name   string  `json:"name"`
	Real   float64 `json:"real"`
	Budget float64 `json:"bdgt"`
}

// GroupBy totals rows per dimension value in first-seen order. Real is
// restricted to booked actuals through reportingMonth, while Budget adds up
// every row of the group regardless of month.
func GroupBy(rows []core.LedgerRow, dim Dimension, reportingMonth int) []GroupTotal {
	type acc struct{ actual, budget core.Sum }
	var order []string
	groups := map[string]*acc{}
	for _, r := range rows {
		name := dim.of(r)
		g, ok := groups[name]
		if !ok {
			g = &acc{}
			groups[name] = g
			order = append(order, name)
		}
		if !r.IsForecast && r.Month <= reportingMonth {
			g.actual.Add(r.ActualAmountUSD)
		}
		g.budget.Add(r.BudgetAmountUSD)
	}
	out := make([]GroupTotal, 0, len(order))
	for _, name := range order {
		g := groups[name]
		out = append(out, GroupTotal{Name: name, Real: g.actual.Float64(), Budget: g.budget.Float64()})
	}
	return out
}

// TopSpenders ranks the booked actuals of the reporting month by amount,
// highest first. Equal amounts keep their input order.
func TopSpenders(rows []core.LedgerRow, reportingMonth, n int) []core.LedgerRow {
	out := []core.LedgerRow{}
	for _, r := range rows {
		if !r.IsForecast && r.Month == reportingMonth {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ActualAmountUSD > out[j].ActualAmountUSD
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
