// Package storage is the SQLite ledger store. Rows are upserted on their
// natural key and the project aggregate view is computed by one SQL query.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type SQLiteRepository struct {
	db     *sqlx.DB
	cal    core.Calendar
	now    func() time.Time
	logger *log.StructuredLogger
}

// Ensure interface conformance
var (
	_ ledger.Store  = (*SQLiteRepository)(nil)
	_ ledger.Pinger = (*SQLiteRepository)(nil)
)

type Option func(*SQLiteRepository)

func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies the embedded migrations.
func NewSQLiteRepository(dbPath string, cal core.Calendar, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return NewWithDB(db, cal, opts...), nil
}

// NewWithDB wraps an already migrated database.
func NewWithDB(db *sqlx.DB, cal core.Calendar, opts ...Option) *SQLiteRepository {
	r := &SQLiteRepository{
		db:     db,
		cal:    cal,
		now:    time.Now,
		logger: log.NewStructuredLogger(log.WithComponent(log.ComponentStorage)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type ledgerRecord struct {
	Seq                   int64          `db:"seq"`
	ID                    string         `db:"id"`
	Year                  int            `db:"year"`
	Month                 int            `db:"month"`
	ProjectName           string         `db:"project_name"`
	Responsible           string         `db:"responsible"`
	Segment               string         `db:"segment"`
	Category              string         `db:"category"`
	ProjectType           string         `db:"project_type"`
	CostCenterDescription sql.NullString `db:"cost_center_description"`
	Area                  sql.NullString `db:"area"`
	OrderNumber           sql.NullString `db:"order_number"`
	ActualAmountUSD       float64        `db:"actual_amount_usd"`
	BudgetAmountUSD       float64        `db:"budget_amount_usd"`
	IsForecast            bool           `db:"is_forecast"`
	UpdatedAt             sql.NullString `db:"updated_at"`
}

func toRecord(row core.LedgerRow) ledgerRecord {
	rec := ledgerRecord{
		ID:                    row.ID,
		Year:                  row.Year,
		Month:                 row.Month,
		ProjectName:           row.ProjectName,
		Responsible:           row.Responsible,
		Segment:               row.Segment,
		Category:              row.Category,
		ProjectType:           row.ProjectType,
		CostCenterDescription: nullString(row.CostCenterDescription),
		Area:                  nullString(row.Area),
		OrderNumber:           nullString(row.OrderNumber),
		ActualAmountUSD:       row.ActualAmountUSD,
		BudgetAmountUSD:       row.BudgetAmountUSD,
		IsForecast:            row.IsForecast,
	}
	if row.UpdatedAt != nil {
		rec.UpdatedAt = sql.NullString{String: formatTime(*row.UpdatedAt), Valid: true}
	}
	return rec
}

func (rec ledgerRecord) toRow() (core.LedgerRow, error) {
	row := core.LedgerRow{
		ID:              rec.ID,
		Year:            rec.Year,
		Month:           rec.Month,
		ProjectName:     rec.ProjectName,
		Responsible:     rec.Responsible,
		Segment:         rec.Segment,
		Category:        rec.Category,
		ProjectType:     rec.ProjectType,
		ActualAmountUSD: rec.ActualAmountUSD,
		BudgetAmountUSD: rec.BudgetAmountUSD,
		IsForecast:      rec.IsForecast,
	}
	if rec.CostCenterDescription.Valid {
		row.CostCenterDescription = &rec.CostCenterDescription.String
	}
	if rec.Area.Valid {
		row.Area = &rec.Area.String
	}
	if rec.OrderNumber.Valid {
		row.OrderNumber = &rec.OrderNumber.String
	}
	if rec.UpdatedAt.Valid {
		t, err := parseTime(rec.UpdatedAt.String)
		if err != nil {
			return core.LedgerRow{}, fmt.Errorf("row %d updated_at: %w", rec.Seq, err)
		}
		row.UpdatedAt = &t
	}
	return row, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const selectRows = `
	SELECT seq, id, year, month, project_name, responsible, segment, category,
	       project_type, cost_center_description, area, order_number,
	       actual_amount_usd, budget_amount_usd, is_forecast, updated_at
	FROM ledger_rows
	ORDER BY year, month, seq`

func (r *SQLiteRepository) FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error) {
	var recs []ledgerRecord
	if err := r.db.SelectContext(ctx, &recs, selectRows); err != nil {
		return nil, fmt.Errorf("select ledger rows: %w", err)
	}
	out := make([]core.LedgerRow, 0, len(recs))
	for _, rec := range recs {
		row, err := rec.toRow()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

const upsertRow = `
	INSERT INTO ledger_rows (
		id, year, month, project_name, responsible, segment, category,
		project_type, cost_center_description, area, order_number,
		actual_amount_usd, budget_amount_usd, is_forecast, updated_at
	) VALUES (
		:id, :year, :month, :project_name, :responsible, :segment, :category,
		:project_type, :cost_center_description, :area, :order_number,
		:actual_amount_usd, :budget_amount_usd, :is_forecast, :updated_at
	)
	ON CONFLICT (year, month, project_name, responsible) DO UPDATE SET
		id = excluded.id,
		segment = excluded.segment,
		category = excluded.category,
		project_type = excluded.project_type,
		cost_center_description = excluded.cost_center_description,
		area = excluded.area,
		order_number = excluded.order_number,
		actual_amount_usd = excluded.actual_amount_usd,
		budget_amount_usd = excluded.budget_amount_usd,
		is_forecast = excluded.is_forecast,
		updated_at = excluded.updated_at`

// Upsert writes the batch in one transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, rows []core.LedgerRow) error {
	if err := ledger.ValidateBatch(rows); err != nil {
		return err
	}
	rows = ledger.Dedupe(rows)
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertRow)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, toRecord(row)); err != nil {
			return fmt.Errorf("upsert %s: %w", row.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	r.logger.LogLedgerWrite(ctx, "sqlite", len(rows), 0)
	return nil
}

type aggregateRecord struct {
	ProjectName string         `db:"project_name"`
	Responsible string         `db:"responsible"`
	FirstSeq    int64          `db:"first_seq"`
	Segment     string         `db:"segment"`
	Category    string         `db:"category"`
	RealYTD     float64        `db:"real_ytd"`
	BudgetYTD   float64        `db:"budget_ytd"`
	ForecastSep float64        `db:"forecast_sep"`
	ForecastOct float64        `db:"forecast_oct"`
	ForecastNov float64        `db:"forecast_nov"`
	ForecastDec float64        `db:"forecast_dec"`
	ReadyAt     sql.NullString `db:"ready_at"`
	FreshMonths int            `db:"fresh_months"`
}

// Segment and category are the first-seen values of the project, read from
// its lowest-seq row.
const aggregateQuery = `
	SELECT project_name, responsible, MIN(seq) AS first_seq,
	       (SELECT f.segment FROM ledger_rows f
	         WHERE f.project_name = g.project_name AND f.responsible = g.responsible
	         ORDER BY f.seq LIMIT 1) AS segment,
	       (SELECT f.category FROM ledger_rows f
	         WHERE f.project_name = g.project_name AND f.responsible = g.responsible
	         ORDER BY f.seq LIMIT 1) AS category,
	       COALESCE(SUM(CASE WHEN month <= ? AND is_forecast = 0 THEN actual_amount_usd END), 0) AS real_ytd,
	       COALESCE(SUM(CASE WHEN month <= ? THEN budget_amount_usd END), 0) AS budget_ytd,
	       COALESCE(SUM(CASE WHEN month = 9 THEN actual_amount_usd END), 0) AS forecast_sep,
	       COALESCE(SUM(CASE WHEN month = 10 THEN actual_amount_usd END), 0) AS forecast_oct,
	       COALESCE(SUM(CASE WHEN month = 11 THEN actual_amount_usd END), 0) AS forecast_nov,
	       COALESCE(SUM(CASE WHEN month = 12 THEN actual_amount_usd END), 0) AS forecast_dec,
	       MAX(CASE WHEN month IN (?) THEN updated_at END) AS ready_at,
	       COUNT(DISTINCT CASE WHEN month IN (?) AND updated_at >= ? THEN month END) AS fresh_months
	FROM ledger_rows g
	GROUP BY project_name, responsible
	ORDER BY first_seq`

// FetchAggregates computes the per-project view in SQL. A project is forecast
// ready when each forward month has a row updated within the readiness window.
func (r *SQLiteRepository) FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error) {
	cutoff := formatTime(r.now().Add(-r.cal.ReadinessWindow))
	query, args, err := sqlx.In(aggregateQuery,
		r.cal.ReportingMonth, r.cal.ReportingMonth,
		r.cal.ForwardMonths, r.cal.ForwardMonths, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expand aggregate query: %w", err)
	}

	var recs []aggregateRecord
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select aggregates: %w", err)
	}

	out := make([]core.ProjectAggregate, 0, len(recs))
	for _, rec := range recs {
		agg := core.ProjectAggregate{
			ProjectKey:    ledger.ProjectKey(rec.ProjectName, rec.Responsible),
			NameOfProject: rec.ProjectName,
			Segment:       rec.Segment,
			Category:      rec.Category,
			Responsible:   rec.Responsible,
			RealYTD:       rec.RealYTD,
			BudgetYTD:     rec.BudgetYTD,
			ForecastSep:   rec.ForecastSep,
			ForecastOct:   rec.ForecastOct,
			ForecastNov:   rec.ForecastNov,
			ForecastDec:   rec.ForecastDec,
			ForecastReady: rec.FreshMonths == len(r.cal.ForwardMonths),
		}
		if rec.ReadyAt.Valid && strings.TrimSpace(rec.ReadyAt.String) != "" {
			t, err := parseTime(rec.ReadyAt.String)
			if err != nil {
				return nil, fmt.Errorf("aggregate %s ready_at: %w", agg.ProjectKey, err)
			}
			agg.ForecastReadyAt = &t
		}
		out = append(out, agg)
	}
	return out, nil
}
