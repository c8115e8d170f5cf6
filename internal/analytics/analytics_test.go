package analytics

import (
	"math"
	"math/rand"
	"testing"

	"capex/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(project string, month int, actual, budget float64, forecast bool) core.LedgerRow {
	return core.LedgerRow{
		Year:            2025,
		Month:           month,
		ProjectName:     project,
		Responsible:     "Ana",
		Segment:         "Mining",
		Category:        "Sustaining",
		ActualAmountUSD: actual,
		BudgetAmountUSD: budget,
		IsForecast:      forecast,
	}
}

func TestSummarizeScenario(t *testing.T) {
	rows := []core.LedgerRow{
		row("A", 1, 100, 90, false),
		row("B", 1, 50, 60, false),
	}
	k := Summarize(rows, 1)
	assert.Equal(t, KPI{RealYTD: 150, BudgetYTD: 150, Variance: 0, ExecutionPct: 100}, k)
}

func TestSummarizeGates(t *testing.T) {
	rows := []core.LedgerRow{
		row("A", 3, 100, 100, false),
		row("A", 3, 40, 10, true),    // forecast: budget counts, actual does not
		row("A", 9, 500, 500, false), // after reporting month
		row("A", 8, -20, 0, false),   // reversal
	}
	k := Summarize(rows, 8)
	assert.Equal(t, 80.0, k.RealYTD)
	assert.Equal(t, 110.0, k.BudgetYTD)
	assert.Equal(t, -30.0, k.Variance)
	assert.InDelta(t, 72.7272, k.ExecutionPct, 0.001)
}

func TestSummarizeZeroBudget(t *testing.T) {
	cases := [][]core.LedgerRow{
		nil,
		{row("A", 1, 100, 0, false)},
		{row("A", 1, -5, 0, false), row("B", 2, 0, 0, true)},
	}
	for i, rows := range cases {
		k := Summarize(rows, 12)
		assert.Equal(t, 0.0, k.ExecutionPct, "case %d", i)
		assert.False(t, math.IsNaN(k.ExecutionPct) || math.IsInf(k.ExecutionPct, 0), "case %d", i)
	}
}

func TestMonthlySeriesReconcilesWithFullYear(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	var rows []core.LedgerRow
	for i := 0; i < 300; i++ {
		amount := math.Round(rnd.Float64()*1e6) / 100
		rows = append(rows, row("P", rnd.Intn(12)+1, amount, amount/2, rnd.Intn(3) == 0))
	}

	series := MonthlySeries(rows)
	require.Len(t, series, 12)

	var actual, budget core.Sum
	for i, p := range series {
		assert.Equal(t, i+1, p.Month)
		actual.Add(p.Real)
		budget.Add(p.Budget)
	}
	k := Summarize(rows, 12)
	assert.InDelta(t, k.RealYTD, actual.Float64(), 1e-6)
	assert.InDelta(t, k.BudgetYTD, budget.Float64(), 1e-6)
}

func TestMonthlySeriesSplitsForecast(t *testing.T) {
	series := MonthlySeries([]core.LedgerRow{
		row("A", 9, 100, 10, false),
		row("A", 9, 300, 20, true),
		row("A", 13, 1, 1, false),
	})
	sep := series[8]
	assert.Equal(t, "Sep", sep.Label)
	assert.Equal(t, 100.0, sep.Real)
	assert.Equal(t, 300.0, sep.Forecast)
	assert.Equal(t, 30.0, sep.Budget)
	assert.Equal(t, MonthPoint{Month: 1, Label: "Jan"}, series[0])
}

func TestGroupByKeepsBudgetAsymmetry(t *testing.T) {
	a := row("A", 2, 10, 5, false)
	b := row("B", 10, 99, 7, false)
	b.Segment = "Plant"
	c := row("C", 3, 1, 1, true)
	d := row("D", 11, 4, 3, false)

	got := GroupBy([]core.LedgerRow{a, b, c, d}, BySegment, 8)
	assert.Equal(t, []GroupTotal{
		{Name: "Mining", Real: 10, Budget: 9},
		{Name: "Plant", Real: 0, Budget: 7},
	}, got)

	byCat := GroupBy([]core.LedgerRow{a, b}, ByCategory, 8)
	require.Len(t, byCat, 1)
	assert.Equal(t, "Sustaining", byCat[0].Name)
}

func TestTopSpenders(t *testing.T) {
	rows := []core.LedgerRow{
		row("A", 8, 10, 0, false),
		row("B", 8, 50, 0, false),
		row("C", 8, 10, 0, false),
		row("D", 8, 999, 0, true),
		row("E", 7, 999, 0, false),
		row("F", 8, 30, 0, false),
		row("G", 8, 20, 0, false),
		row("H", 8, 10, 0, false),
	}
	in := append([]core.LedgerRow(nil), rows...)

	top := TopSpenders(rows, 8, DefaultTopN)
	names := make([]string, len(top))
	for i, r := range top {
		names[i] = r.ProjectName
	}
	assert.Equal(t, []string{"B", "F", "G", "A", "C"}, names)
	assert.Equal(t, in, rows, "input must not be reordered")

	assert.Empty(t, TopSpenders(rows, 1, DefaultTopN))
}

func TestGroupProjects(t *testing.T) {
	a1 := row("A", 1, 10, 10, false)
	b1 := row("B", 1, 5, 5, false)
	b1.Segment = "Plant"
	a2 := row("A", 9, 70, 0, true)
	a2.Responsible = "Luis"

	aggs := []core.ProjectAggregate{
		{NameOfProject: "A", ForecastReady: false},
		{NameOfProject: "A", ForecastReady: true},
		{NameOfProject: "b ", ForecastReady: true},
		{NameOfProject: "Z", ForecastReady: true},
	}

	projects := GroupProjects([]core.LedgerRow{a1, b1, a2}, aggs)
	require.Len(t, projects, 2)

	a := projects[0]
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, "Ana", a.Responsible)
	assert.Len(t, a.Rows, 2)
	assert.True(t, a.Ready)

	b := projects[1]
	assert.Equal(t, "Plant", b.Segment)
	assert.False(t, b.Ready, "readiness requires an exact name match")

	k := a.Summary(8)
	assert.Equal(t, 10.0, k.RealYTD)
	r, ok := a.RowFor(9)
	require.True(t, ok)
	assert.Equal(t, 70.0, r.ActualAmountUSD)
	_, ok = a.RowFor(4)
	assert.False(t, ok)
}

func TestFilterProjects(t *testing.T) {
	projects := []Project{
		{Name: "Conveyor North", Segment: "Mining", Category: "Sustaining", Ready: true},
		{Name: "Crusher", Segment: "Mining", Category: "Growth"},
		{Name: "Plant Roof", Segment: "Plant", Category: "Sustaining", Ready: true},
	}
	cases := []struct {
		name string
		f    ProjectFilter
		want []string
	}{
		{"all", ProjectFilter{}, []string{"Conveyor North", "Crusher", "Plant Roof"}},
		{"search is case-insensitive", ProjectFilter{Search: "conv"}, []string{"Conveyor North"}},
		{"segment", ProjectFilter{Segment: "Mining"}, []string{"Conveyor North", "Crusher"}},
		{"category and ready", ProjectFilter{Category: "Sustaining", Status: StatusReady}, []string{"Conveyor North", "Plant Roof"}},
		{"pending", ProjectFilter{Status: StatusPending}, []string{"Crusher"}},
		{"no match", ProjectFilter{Search: "zzz"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := []string{}
			for _, p := range FilterProjects(projects, tc.f) {
				got = append(got, p.Name)
			}
			assert.Equal(t, tc.want, got)
		})
	}
	assert.Equal(t, []string{"Mining", "Plant"}, ProjectSegments(projects))
	assert.Equal(t, []string{"Sustaining", "Growth"}, ProjectCategories(projects))
}

func TestRowOptionLists(t *testing.T) {
	a := row("A", 1, 0, 0, false)
	b := row("B", 1, 0, 0, false)
	b.Segment = ""
	b.Category = "Growth"
	assert.Equal(t, []string{"Mining"}, RowSegments([]core.LedgerRow{a, b}))
	assert.Equal(t, []string{"Sustaining", "Growth"}, RowCategories([]core.LedgerRow{a, b}))
}

func TestOversight(t *testing.T) {
	aggs := []core.ProjectAggregate{
		{NameOfProject: "A", Segment: "Mining", Responsible: "Ana", ForecastReady: true},
		{NameOfProject: "B", Segment: "Plant", Responsible: "Luis", ForecastReady: true},
		{NameOfProject: "C", Segment: "Mining", Responsible: "Ana", ForecastReady: false},
		{NameOfProject: "D", Segment: "Mining", Responsible: "Eva", ForecastReady: true},
	}

	got := Oversight(aggs)
	require.Len(t, got, 2)

	mining := got[0]
	assert.Equal(t, "Mining", mining.Segment)
	assert.Equal(t, Tally{Ready: 2, Total: 3}, mining.Tally)
	assert.False(t, mining.FullyReady)
	require.Len(t, mining.Responsibles, 2)
	assert.Equal(t, "Ana", mining.Responsibles[0].Responsible)
	assert.Equal(t, Tally{Ready: 1, Total: 2}, mining.Responsibles[0].Tally)
	assert.Len(t, mining.Responsibles[0].Projects, 2)
	assert.True(t, mining.Responsibles[1].FullyReady)

	plant := got[1]
	assert.True(t, plant.FullyReady)
	assert.Equal(t, Tally{Ready: 1, Total: 1}, plant.Tally)

	assert.Empty(t, Oversight(nil))
}

func TestAggregateTable(t *testing.T) {
	aggs := []core.ProjectAggregate{
		{NameOfProject: "A", Segment: "Mining", Category: "Sustaining", RealYTD: 50, BudgetYTD: 200},
		{NameOfProject: "B", Segment: "Plant", Category: "Growth", RealYTD: 10, BudgetYTD: 0},
	}
	all := AggregateTable(aggs, AggregateFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, 25.0, all[0].ExecutionPct)
	assert.Equal(t, 0.0, all[1].ExecutionPct)

	only := AggregateTable(aggs, AggregateFilter{Segment: "Plant", Category: "Growth"})
	require.Len(t, only, 1)
	assert.Equal(t, "B", only[0].NameOfProject)
	assert.Empty(t, AggregateTable(aggs, AggregateFilter{Category: "None"}))
}
