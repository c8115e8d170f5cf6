package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"capex/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertReplacesByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := New(core.DefaultCalendar())

	first := core.LedgerRow{ID: "1", Year: 2025, Month: 9, ProjectName: "A", Responsible: "Ana", ActualAmountUSD: 10}
	other := core.LedgerRow{ID: "2", Year: 2025, Month: 1, ProjectName: "B", Responsible: "Ana", ActualAmountUSD: 5}
	require.NoError(t, s.Upsert(ctx, []core.LedgerRow{first, other}))

	replaced := first
	replaced.ActualAmountUSD = 1200
	replaced.IsForecast = true
	require.NoError(t, s.Upsert(ctx, []core.LedgerRow{replaced}))
	require.NoError(t, s.Upsert(ctx, []core.LedgerRow{replaced}))

	rows, err := s.FetchLedgerRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[0].ProjectName, "ordered by month")
	assert.Equal(t, 1200.0, rows[1].ActualAmountUSD)
	assert.True(t, rows[1].IsForecast)
}

func TestUpsertIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New(core.DefaultCalendar())
	good := core.LedgerRow{Year: 2025, Month: 9, ProjectName: "A"}
	bad := core.LedgerRow{Year: 2025, Month: 0, ProjectName: "B"}

	err := s.Upsert(ctx, []core.LedgerRow{good, bad})
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
	assert.Equal(t, 0, s.Len())
}

func TestFetchAggregatesUsesClock(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	s := New(core.DefaultCalendar(), WithClock(func() time.Time { return clock }))

	updated := clock.Add(-24 * time.Hour)
	var rows []core.LedgerRow
	for _, m := range []int{9, 10, 11, 12} {
		rows = append(rows, core.LedgerRow{Year: 2025, Month: m, ProjectName: "A", Responsible: "Ana", IsForecast: true, UpdatedAt: &updated})
	}
	require.NoError(t, s.Upsert(ctx, rows))

	aggs, err := s.FetchAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.True(t, aggs[0].ForecastReady)

	clock = clock.Add(10 * 24 * time.Hour)
	aggs, err = s.FetchAggregates(ctx)
	require.NoError(t, err)
	assert.False(t, aggs[0].ForecastReady, "readiness ages out with time")
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()

	s, skipped, err := NewFromFile(core.DefaultCalendar(), filepath.Join(dir, "missing.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 0, s.Len())

	seed := "ano,mes,nombre_proyecto,responsable_3,monto_usd,bdgt_mes_usd,segmento,categoria\n" +
		"2025,1,A,Ana,10,10,Mining,Sustaining\n" +
		"2025,x,B,Ana,10,10,Mining,Sustaining\n" +
		"2025,1,A,Ana,20,10,Mining,Sustaining\n"
	path := filepath.Join(dir, "seed.csv")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	s, skipped, err = NewFromFile(core.DefaultCalendar(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	rows, _ := s.FetchLedgerRows(context.Background())
	require.Len(t, rows, 1)
	assert.Equal(t, 20.0, rows[0].ActualAmountUSD)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("year,month\n2025,1"), 0o600))
	_, _, err = NewFromFile(core.DefaultCalendar(), bad)
	assert.Error(t, err)
}
