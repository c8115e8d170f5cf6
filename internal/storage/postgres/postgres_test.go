package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"capex/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{dsn: "postgres://u:p@db:5432/capex?sslmode=disable", want: "pgx5://u:p@db:5432/capex?sslmode=disable"},
		{dsn: "postgresql://db/capex", want: "pgx5://db/capex"},
		{dsn: "pgx5://db/capex", want: "pgx5://db/capex"},
		{dsn: "host=db dbname=capex", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := migrationURL(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateRecordReadiness(t *testing.T) {
	ts := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := aggregateRecord{ProjectName: "A", Responsible: "Ana", FreshMonths: 4, ReadyAt: &ts, ForecastSep: 1}

	agg := rec.toAggregate(4)
	assert.Equal(t, "A|Ana", agg.ProjectKey)
	assert.True(t, agg.ForecastReady)
	assert.Equal(t, &ts, agg.ForecastReadyAt)

	rec.FreshMonths = 3
	assert.False(t, rec.toAggregate(4).ForecastReady)
}

func TestCopyValuesMatchColumns(t *testing.T) {
	assert.Len(t, copyValues(core.LedgerRow{}), len(copyColumns))
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), " ", core.DefaultCalendar())
	assert.EqualError(t, err, "missing postgres DSN")
}

// TestPostgresRoundTrip runs against a live database when
// CAPEX_TEST_POSTGRES_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("CAPEX_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("CAPEX_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	now := time.Now().UTC()
	s, err := New(ctx, dsn, core.DefaultCalendar(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = s.pool.Exec(ctx, "TRUNCATE ledger_rows")
	require.NoError(t, err)

	updated := now.Add(-time.Hour)
	var rows []core.LedgerRow
	for _, m := range []int{9, 10, 11, 12} {
		rows = append(rows, core.LedgerRow{ID: "x", Year: 2025, Month: m, ProjectName: "A", Responsible: "Ana", Segment: "Mining", ActualAmountUSD: float64(m), IsForecast: true, UpdatedAt: &updated})
	}
	require.NoError(t, s.Upsert(ctx, rows))
	rows[0].ActualAmountUSD = 1200
	require.NoError(t, s.Upsert(ctx, rows[:1]))

	got, err := s.FetchLedgerRows(ctx)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 1200.0, got[0].ActualAmountUSD)

	aggs, err := s.FetchAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.True(t, aggs[0].ForecastReady)
	assert.Equal(t, 1200.0, aggs[0].ForecastSep)
}
