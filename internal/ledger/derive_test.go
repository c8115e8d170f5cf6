package ledger

import (
	"math"
	"testing"
	"time"

	"capex/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)

func at(daysAgo int) *time.Time {
	t := now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	return &t
}

func r(project, resp string, month int, actual float64, forecast bool, updated *time.Time) core.LedgerRow {
	return core.LedgerRow{
		Year: 2025, Month: month, ProjectName: project, Responsible: resp,
		Segment: "Mining", Category: "Sustaining",
		ActualAmountUSD: actual, BudgetAmountUSD: 10, IsForecast: forecast, UpdatedAt: updated,
	}
}

func TestDeriveAggregatesReadiness(t *testing.T) {
	cal := core.DefaultCalendar()
	rows := []core.LedgerRow{
		r("A", "Ana", 1, 100, false, at(30)),
		r("A", "Ana", 9, 11, true, at(1)),
		r("A", "Ana", 10, 12, true, at(2)),
		r("A", "Ana", 11, 13, true, at(3)),
		r("A", "Ana", 12, 14, true, at(7)),
		// Stale December makes B pending.
		r("B", "Luis", 9, 1, true, at(1)),
		r("B", "Luis", 10, 1, true, at(1)),
		r("B", "Luis", 11, 1, true, at(1)),
		r("B", "Luis", 12, 1, true, at(8)),
		// Missing months make C pending.
		r("C", "Eva", 9, 1, true, at(0)),
		// Same project under another responsible is its own aggregate.
		r("A", "Luis", 2, 5, false, nil),
	}

	aggs := DeriveAggregates(rows, cal, now)
	require.Len(t, aggs, 4)

	a := aggs[0]
	assert.Equal(t, "A|Ana", a.ProjectKey)
	assert.True(t, a.ForecastReady)
	assert.Equal(t, 100.0, a.RealYTD)
	assert.Equal(t, 10.0, a.BudgetYTD)
	assert.Equal(t, []float64{11, 12, 13, 14}, []float64{a.ForecastSep, a.ForecastOct, a.ForecastNov, a.ForecastDec})
	require.NotNil(t, a.ForecastReadyAt)
	assert.Equal(t, *at(1), *a.ForecastReadyAt)

	assert.False(t, aggs[1].ForecastReady)
	assert.False(t, aggs[2].ForecastReady)

	other := aggs[3]
	assert.Equal(t, "A|Luis", other.ProjectKey)
	assert.Nil(t, other.ForecastReadyAt)
	assert.False(t, other.ForecastReady)
}

func TestSortRowsIsStable(t *testing.T) {
	rows := []core.LedgerRow{
		{Year: 2025, Month: 2, ProjectName: "x"},
		{Year: 2024, Month: 12, ProjectName: "y"},
		{Year: 2025, Month: 1, ProjectName: "z"},
		{Year: 2025, Month: 2, ProjectName: "w"},
	}
	SortRows(rows)
	names := []string{rows[0].ProjectName, rows[1].ProjectName, rows[2].ProjectName, rows[3].ProjectName}
	assert.Equal(t, []string{"y", "z", "x", "w"}, names)
}

func TestDedupeLastWins(t *testing.T) {
	a1 := r("A", "Ana", 9, 1, true, nil)
	b := r("B", "Ana", 9, 2, true, nil)
	a2 := r("A", "Ana", 9, 3, true, nil)
	out := Dedupe([]core.LedgerRow{a1, b, a2})
	require.Len(t, out, 2)
	assert.Equal(t, 3.0, out[0].ActualAmountUSD)
	assert.Equal(t, "B", out[1].ProjectName)
}

func TestValidateBatch(t *testing.T) {
	good := r("A", "Ana", 9, 1, true, nil)
	bad := r("", "Ana", 9, 1, true, nil)
	require.NoError(t, ValidateBatch([]core.LedgerRow{good}))

	err := ValidateBatch([]core.LedgerRow{good, bad})
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.ErrorIs(t, err, core.ErrEmptyProject)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := ValidateBatch([]core.LedgerRow{good, r("A", "Ana", 10, v, true, nil)})
		require.ErrorAs(t, err, &be)
		assert.Equal(t, 1, be.Index)
		assert.ErrorIs(t, err, core.ErrInvalidAmount)
	}
}

func TestDeriveAggregatesIgnoresNonFiniteAmounts(t *testing.T) {
	rows := []core.LedgerRow{
		r("A", "Ana", 8, 100, false, nil),
		r("A", "Ana", 9, math.NaN(), true, nil),
		r("A", "Ana", 10, math.Inf(1), true, nil),
	}
	var aggs []core.ProjectAggregate
	require.NotPanics(t, func() { aggs = DeriveAggregates(rows, core.DefaultCalendar(), now) })
	require.Len(t, aggs, 1)
	assert.Equal(t, 100.0, aggs[0].RealYTD)
	assert.Equal(t, 0.0, aggs[0].ForecastSep)
}
