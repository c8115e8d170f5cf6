package services

import (
	"context"
	"errors"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Snapshot is one consistent pair of ledger reads. A failed read leaves an
// empty slice and its error; the other read is unaffected.
type Snapshot struct {
	Rows         []core.LedgerRow
	Aggregates   []core.ProjectAggregate
	LedgerErr    error
	AggregateErr error
	LoadedAt     time.Time
}

// Degraded reports whether either read fell back to empty.
func (s Snapshot) Degraded() bool {
	return s.LedgerErr != nil || s.AggregateErr != nil
}

// Err joins the read errors, nil when both succeeded.
func (s Snapshot) Err() error {
	return errors.Join(s.LedgerErr, s.AggregateErr)
}

// Problems lists the failed reads as user-facing messages.
func (s Snapshot) Problems() []string {
	var out []string
	if s.LedgerErr != nil {
		out = append(out, "ledger rows unavailable: "+s.LedgerErr.Error())
	}
	if s.AggregateErr != nil {
		out = append(out, "project aggregates unavailable: "+s.AggregateErr.Error())
	}
	return out
}

// SnapshotLoader issues the ledger and aggregate reads concurrently.
type SnapshotLoader struct {
	rows    ledger.RowReader
	aggs    ledger.AggregateReader
	now     func() time.Time
	metrics *metrics.Registry
	logger  *log.Logger
}

func NewSnapshotLoader(rows ledger.RowReader, aggs ledger.AggregateReader, m *metrics.Registry) *SnapshotLoader {
	return &SnapshotLoader{
		rows:    rows,
		aggs:    aggs,
		now:     time.Now,
		metrics: m,
		logger:  log.WithComponent(log.ComponentStorage),
	}
}

// Load never fails as a whole. Neither read cancels the other; each failure
// is recorded on the snapshot and logged.
func (l *SnapshotLoader) Load(ctx context.Context) Snapshot {
	snap := Snapshot{
		Rows:       []core.LedgerRow{},
		Aggregates: []core.ProjectAggregate{},
	}

	var g errgroup.Group
	g.Go(func() error {
		rows, err := l.rows.FetchLedgerRows(ctx)
		if err != nil {
			snap.LedgerErr = err
			return nil
		}
		if rows != nil {
			snap.Rows = rows
		}
		return nil
	})
	g.Go(func() error {
		aggs, err := l.aggs.FetchAggregates(ctx)
		if err != nil {
			snap.AggregateErr = err
			return nil
		}
		if aggs != nil {
			snap.Aggregates = aggs
		}
		return nil
	})
	_ = g.Wait()

	if snap.LedgerErr != nil {
		l.metrics.RecordStoreError("fetch_ledger_rows")
		l.logger.ErrorContext(ctx, "Ledger read failed, using empty rows", log.FieldOperation, log.OpRead, log.FieldError, snap.LedgerErr)
	}
	if snap.AggregateErr != nil {
		l.metrics.RecordStoreError("fetch_aggregates")
		l.logger.ErrorContext(ctx, "Aggregate read failed, using empty aggregates", log.FieldOperation, log.OpRead, log.FieldError, snap.AggregateErr)
	}
	snap.LoadedAt = l.now()
	return snap
}
