// Package postgres stores the ledger in PostgreSQL through a pgx pool.
// Batches are staged with COPY into a temporary table and merged with one
// INSERT ... ON CONFLICT statement.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements ledger.Store over a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	cal    core.Calendar
	now    func() time.Time
	logger *log.StructuredLogger
}

// Ensure interface conformance
var (
	_ ledger.Store  = (*Store)(nil)
	_ ledger.Pinger = (*Store)(nil)
)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New connects to dsn, runs the migrations and returns a ready store.
func New(ctx context.Context, dsn string, cal core.Calendar, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("missing postgres DSN")
	}
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		pool:   pool,
		cal:    cal,
		now:    time.Now,
		logger: log.NewStructuredLogger(log.WithComponent(log.ComponentStorage)),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// migrationURL rewrites a postgres:// DSN for the pgx/v5 migrate driver.
func migrationURL(dsn string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("unsupported postgres DSN scheme: %q", dsn)
}

func RunMigrations(dsn string) error {
	url, err := migrationURL(dsn)
	if err != nil {
		return err
	}
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, url)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	_, err = storage.Up(m, "postgres")
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type record struct {
	Seq                   int64      `db:"seq"`
	ID                    string     `db:"id"`
	Year                  int        `db:"year"`
	Month                 int        `db:"month"`
	ProjectName           string     `db:"project_name"`
	Responsible           string     `db:"responsible"`
	Segment               string     `db:"segment"`
	Category              string     `db:"category"`
	ProjectType           string     `db:"project_type"`
	CostCenterDescription *string    `db:"cost_center_description"`
	Area                  *string    `db:"area"`
	OrderNumber           *string    `db:"order_number"`
	ActualAmountUSD       float64    `db:"actual_amount_usd"`
	BudgetAmountUSD       float64    `db:"budget_amount_usd"`
	IsForecast            bool       `db:"is_forecast"`
	UpdatedAt             *time.Time `db:"updated_at"`
}

func (r record) toRow() core.LedgerRow {
	return core.LedgerRow{
		ID:                    r.ID,
		Year:                  r.Year,
		Month:                 r.Month,
		ProjectName:           r.ProjectName,
		Responsible:           r.Responsible,
		Segment:               r.Segment,
		Category:              r.Category,
		ProjectType:           r.ProjectType,
		CostCenterDescription: r.CostCenterDescription,
		Area:                  r.Area,
		OrderNumber:           r.OrderNumber,
		ActualAmountUSD:       r.ActualAmountUSD,
		BudgetAmountUSD:       r.BudgetAmountUSD,
		IsForecast:            r.IsForecast,
		UpdatedAt:             r.UpdatedAt,
	}
}

func (s *Store) FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, year, month, project_name, responsible, segment, category,
		       project_type, cost_center_description, area, order_number,
		       actual_amount_usd, budget_amount_usd, is_forecast, updated_at
		FROM ledger_rows
		ORDER BY year, month, seq`)
	if err != nil {
		return nil, fmt.Errorf("select ledger rows: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[record])
	if err != nil {
		return nil, fmt.Errorf("scan ledger rows: %w", err)
	}
	out := make([]core.LedgerRow, len(recs))
	for i, r := range recs {
		out[i] = r.toRow()
	}
	return out, nil
}

// copyColumns is the column order of the staging COPY.
var copyColumns = []string{
	"id", "year", "month", "project_name", "responsible", "segment", "category",
	"project_type", "cost_center_description", "area", "order_number",
	"actual_amount_usd", "budget_amount_usd", "is_forecast", "updated_at",
}

func copyValues(r core.LedgerRow) []any {
	return []any{
		r.ID, r.Year, r.Month, r.ProjectName, r.Responsible, r.Segment, r.Category,
		r.ProjectType, r.CostCenterDescription, r.Area, r.OrderNumber,
		r.ActualAmountUSD, r.BudgetAmountUSD, r.IsForecast, r.UpdatedAt,
	}
}

const mergeStaged = `
	INSERT INTO ledger_rows (
		id, year, month, project_name, responsible, segment, category,
		project_type, cost_center_description, area, order_number,
		actual_amount_usd, budget_amount_usd, is_forecast, updated_at
	)
	SELECT id, year, month, project_name, responsible, segment, category,
	       project_type, cost_center_description, area, order_number,
	       actual_amount_usd, budget_amount_usd, is_forecast, updated_at
	FROM ledger_stage
	ON CONFLICT ON CONSTRAINT ledger_rows_natural_key DO UPDATE SET
		id = EXCLUDED.id,
		segment = EXCLUDED.segment,
		category = EXCLUDED.category,
		project_type = EXCLUDED.project_type,
		cost_center_description = EXCLUDED.cost_center_description,
		area = EXCLUDED.area,
		order_number = EXCLUDED.order_number,
		actual_amount_usd = EXCLUDED.actual_amount_usd,
		budget_amount_usd = EXCLUDED.budget_amount_usd,
		is_forecast = EXCLUDED.is_forecast,
		updated_at = EXCLUDED.updated_at`

// Upsert stages the batch with COPY and merges it in the same transaction.
func (s *Store) Upsert(ctx context.Context, rows []core.LedgerRow) error {
	if err := ledger.ValidateBatch(rows); err != nil {
		return err
	}
	// ON CONFLICT cannot touch the same key twice in one statement.
	rows = ledger.Dedupe(rows)
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE ledger_stage (
			id TEXT, year INTEGER, month INTEGER, project_name TEXT, responsible TEXT,
			segment TEXT, category TEXT, project_type TEXT, cost_center_description TEXT,
			area TEXT, order_number TEXT, actual_amount_usd DOUBLE PRECISION,
			budget_amount_usd DOUBLE PRECISION, is_forecast BOOLEAN, updated_at TIMESTAMPTZ
		) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = copyValues(r)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"ledger_stage"}, copyColumns, pgx.CopyFromRows(copyRows)); err != nil {
		return fmt.Errorf("stage rows: %w", err)
	}
	if _, err := tx.Exec(ctx, mergeStaged); err != nil {
		return fmt.Errorf("merge staged rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	committed = true

	s.logger.LogLedgerWrite(ctx, "postgres", len(rows), 0)
	return nil
}

type aggregateRecord struct {
	ProjectName string     `db:"project_name"`
	Responsible string     `db:"responsible"`
	FirstSeq    int64      `db:"first_seq"`
	Segment     string     `db:"segment"`
	Category    string     `db:"category"`
	RealYTD     float64    `db:"real_ytd"`
	BudgetYTD   float64    `db:"budget_ytd"`
	ForecastSep float64    `db:"forecast_sep"`
	ForecastOct float64    `db:"forecast_oct"`
	ForecastNov float64    `db:"forecast_nov"`
	ForecastDec float64    `db:"forecast_dec"`
	ReadyAt     *time.Time `db:"ready_at"`
	FreshMonths int64      `db:"fresh_months"`
}

const aggregateQuery = `
	SELECT project_name, responsible, MIN(seq) AS first_seq,
	       (array_agg(segment ORDER BY seq))[1] AS segment,
	       (array_agg(category ORDER BY seq))[1] AS category,
	       COALESCE(SUM(actual_amount_usd) FILTER (WHERE month <= $1 AND NOT is_forecast), 0) AS real_ytd,
	       COALESCE(SUM(budget_amount_usd) FILTER (WHERE month <= $1), 0) AS budget_ytd,
	       COALESCE(SUM(actual_amount_usd) FILTER (WHERE month = 9), 0) AS forecast_sep,
	       COALESCE(SUM(actual_amount_usd) FILTER (WHERE month = 10), 0) AS forecast_oct,
	       COALESCE(SUM(actual_amount_usd) FILTER (WHERE month = 11), 0) AS forecast_nov,
	       COALESCE(SUM(actual_amount_usd) FILTER (WHERE month = 12), 0) AS forecast_dec,
	       MAX(updated_at) FILTER (WHERE month = ANY($2)) AS ready_at,
	       COUNT(DISTINCT month) FILTER (WHERE month = ANY($2) AND updated_at >= $3) AS fresh_months
	FROM ledger_rows
	GROUP BY project_name, responsible
	ORDER BY first_seq`

// FetchAggregates computes the per-project view in SQL, first-seen segment
// and category included.
func (s *Store) FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error) {
	forward := make([]int32, len(s.cal.ForwardMonths))
	for i, m := range s.cal.ForwardMonths {
		forward[i] = int32(m)
	}
	cutoff := s.now().Add(-s.cal.ReadinessWindow)

	rows, err := s.pool.Query(ctx, aggregateQuery, s.cal.ReportingMonth, forward, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select aggregates: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[aggregateRecord])
	if err != nil {
		return nil, fmt.Errorf("scan aggregates: %w", err)
	}
	out := make([]core.ProjectAggregate, len(recs))
	for i, r := range recs {
		out[i] = r.toAggregate(len(forward))
	}
	return out, nil
}

func (r aggregateRecord) toAggregate(forwardMonths int) core.ProjectAggregate {
	return core.ProjectAggregate{
		ProjectKey:      ledger.ProjectKey(r.ProjectName, r.Responsible),
		NameOfProject:   r.ProjectName,
		Segment:         r.Segment,
		Category:        r.Category,
		Responsible:     r.Responsible,
		RealYTD:         r.RealYTD,
		BudgetYTD:       r.BudgetYTD,
		ForecastSep:     r.ForecastSep,
		ForecastOct:     r.ForecastOct,
		ForecastNov:     r.ForecastNov,
		ForecastDec:     r.ForecastDec,
		ForecastReadyAt: r.ReadyAt,
		ForecastReady:   int(r.FreshMonths) == forwardMonths,
	}
}
