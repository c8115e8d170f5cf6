package ledger

import (
	"slices"
	"sort"
	"time"

	"capex/internal/core"
)

// ProjectKey identifies an aggregate: one project under one responsible.
func ProjectKey(project, responsible string) string {
	return project + "|" + responsible
}

// DeriveAggregates computes the project aggregate view the way the SQL
// backends do, for stores without a query engine. A project is forecast ready
// when every forward month has at least one row updated within the readiness
// window ending at now.
func DeriveAggregates(rows []core.LedgerRow, cal core.Calendar, now time.Time) []core.ProjectAggregate {
	type acc struct {
		agg      core.ProjectAggregate
		actual   core.Sum
		budget   core.Sum
		forecast [4]core.Sum
		fresh    map[int]bool
	}
	var order []string
	groups := map[string]*acc{}

	for _, r := range rows {
		key := ProjectKey(r.ProjectName, r.Responsible)
		g, ok := groups[key]
		if !ok {
			g = &acc{
				agg: core.ProjectAggregate{
					ProjectKey:    key,
					NameOfProject: r.ProjectName,
					Segment:       r.Segment,
					Category:      r.Category,
					Responsible:   r.Responsible,
				},
				fresh: map[int]bool{},
			}
			groups[key] = g
			order = append(order, key)
		}

		if r.Month <= cal.ReportingMonth {
			if !r.IsForecast {
				g.actual.Add(r.ActualAmountUSD)
			}
			g.budget.Add(r.BudgetAmountUSD)
		}
		if r.Month >= 9 && r.Month <= 12 {
			g.forecast[r.Month-9].Add(r.ActualAmountUSD)
		}
		if cal.IsForward(r.Month) && r.UpdatedAt != nil {
			if now.Sub(*r.UpdatedAt) <= cal.ReadinessWindow {
				g.fresh[r.Month] = true
			}
			if g.agg.ForecastReadyAt == nil || r.UpdatedAt.After(*g.agg.ForecastReadyAt) {
				t := *r.UpdatedAt
				g.agg.ForecastReadyAt = &t
			}
		}
	}

	out := make([]core.ProjectAggregate, 0, len(order))
	for _, key := range order {
		g := groups[key]
		a := g.agg
		a.RealYTD = g.actual.Float64()
		a.BudgetYTD = g.budget.Float64()
		a.ForecastSep = g.forecast[0].Float64()
		a.ForecastOct = g.forecast[1].Float64()
		a.ForecastNov = g.forecast[2].Float64()
		a.ForecastDec = g.forecast[3].Float64()
		a.ForecastReady = len(cal.ForwardMonths) > 0
		for _, m := range cal.ForwardMonths {
			if !g.fresh[m] {
				a.ForecastReady = false
				break
			}
		}
		out = append(out, a)
	}
	return out
}

// SortRows orders rows by (year, month), keeping insertion order otherwise.
func SortRows(rows []core.LedgerRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].Month < rows[j].Month
	})
}

// Dedupe collapses rows sharing a natural key. The last occurrence wins and
// takes the position of the first.
func Dedupe(rows []core.LedgerRow) []core.LedgerRow {
	index := make(map[core.NaturalKey]int, len(rows))
	out := make([]core.LedgerRow, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
	}
	return slices.Clip(out)
}

// ValidateBatch checks every row before a store touches anything.
func ValidateBatch(rows []core.LedgerRow) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return &BatchError{Index: i, Key: r.Key(), Err: err}
		}
	}
	return nil
}

// BatchError reports the first invalid row of an upsert batch.
type BatchError struct {
	Index int
	Key   core.NaturalKey
	Err   error
}

func (e *BatchError) Error() string {
	return "row " + e.Key.String() + ": " + e.Err.Error()
}

func (e *BatchError) Unwrap() error { return e.Err }
