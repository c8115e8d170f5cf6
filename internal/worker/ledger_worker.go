// Package worker consumes ledger change events outside the request path. It
// invalidates the shared read cache so every API replica re-reads, and can
// mirror changed rows from the primary store into a secondary one.
package worker

import (
	"context"
	"fmt"

	"capex/internal/amqp"
	"capex/internal/cache"
	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"
)

// LedgerWorker handles ledger.changed events.
type LedgerWorker struct {
	cache   cache.Deleter
	primary ledger.RowReader
	mirror  ledger.Upserter
	metrics *metrics.Registry
	logger  *log.Logger
}

type Option func(*LedgerWorker)

// WithMirror copies changed rows read from primary into mirror.
func WithMirror(primary ledger.RowReader, mirror ledger.Upserter) Option {
	return func(w *LedgerWorker) {
		w.primary = primary
		w.mirror = mirror
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(w *LedgerWorker) { w.metrics = m }
}

func NewLedgerWorker(d cache.Deleter, opts ...Option) *LedgerWorker {
	w := &LedgerWorker{
		cache:  d,
		logger: log.WithComponent(log.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *LedgerWorker) mirroring() bool {
	return w.primary != nil && w.mirror != nil
}

// HandleLedgerChanged processes one event. A returned error requeues it.
func (w *LedgerWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger change",
		"id", msg.ID,
		log.FieldSource, msg.Source,
		log.FieldCount, msg.Rows)

	if err := w.invalidate(ctx, core.ResourceLedger, core.ResourceAggregate); err != nil {
		return err
	}
	if !w.mirroring() || len(msg.Keys) == 0 {
		return nil
	}

	rows, err := w.primary.FetchLedgerRows(ctx)
	if err != nil {
		w.metrics.RecordStoreError("fetch_ledger_rows")
		return fmt.Errorf("read primary ledger: %w", err)
	}
	changed := selectKeys(rows, msg.Keys)
	if len(changed) == 0 {
		w.logger.WarnContext(ctx, "Changed rows not found in primary store", "id", msg.ID)
		return nil
	}
	if err := w.mirror.Upsert(ctx, changed); err != nil {
		w.metrics.RecordStoreError("mirror_upsert")
		return fmt.Errorf("mirror ledger rows: %w", err)
	}
	w.metrics.RecordUpsert("mirror", len(changed))
	w.logger.InfoContext(ctx, "Mirrored ledger rows", "id", msg.ID, log.FieldCount, len(changed))
	return nil
}

// RefreshAggregates drops the cached aggregate view. Forecast readiness moves
// with the clock, so this runs on a schedule even without writes.
func (w *LedgerWorker) RefreshAggregates(ctx context.Context) error {
	return w.invalidate(ctx, core.ResourceAggregate)
}

// SyncMirror copies every primary row into the mirror. It is a no-op without
// a mirror.
func (w *LedgerWorker) SyncMirror(ctx context.Context) error {
	if !w.mirroring() {
		return nil
	}
	rows, err := w.primary.FetchLedgerRows(ctx)
	if err != nil {
		w.metrics.RecordStoreError("fetch_ledger_rows")
		return fmt.Errorf("read primary ledger: %w", err)
	}
	if len(rows) == 0 {
		w.logger.InfoContext(ctx, "Primary ledger empty, nothing to mirror")
		return nil
	}
	if err := w.mirror.Upsert(ctx, rows); err != nil {
		w.metrics.RecordStoreError("mirror_upsert")
		return fmt.Errorf("mirror ledger rows: %w", err)
	}
	w.metrics.RecordUpsert("mirror", len(rows))
	w.logger.InfoContext(ctx, "Mirror sync completed", log.FieldCount, len(rows))
	return nil
}

// Jobs returns the scheduled jobs this worker can usefully run. The refresh
// job needs a shared cache and the sync job needs a mirror.
func (w *LedgerWorker) Jobs(refreshSchedule, mirrorSchedule string) []Job {
	var jobs []Job
	if w.cache != nil {
		jobs = append(jobs, Job{Name: "refresh-aggregates", Schedule: refreshSchedule, Run: w.RefreshAggregates})
	}
	if w.mirroring() {
		jobs = append(jobs, Job{Name: "sync-mirror", Schedule: mirrorSchedule, Run: w.SyncMirror})
	}
	return jobs
}

func (w *LedgerWorker) invalidate(ctx context.Context, resources ...core.Resource) error {
	if w.cache == nil {
		return nil
	}
	if err := cache.Invalidate(ctx, w.cache, resources...); err != nil {
		w.logger.ErrorContext(ctx, "Failed to invalidate shared cache",
			log.FieldOperation, log.OpInvalidate,
			log.FieldError, err)
		return fmt.Errorf("invalidate %v: %w", resources, err)
	}
	w.logger.DebugContext(ctx, "Invalidated shared cache", log.FieldResource, resources)
	return nil
}

// selectKeys keeps the rows whose natural key is in keys.
func selectKeys(rows []core.LedgerRow, keys []core.NaturalKey) []core.LedgerRow {
	want := make(map[core.NaturalKey]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []core.LedgerRow
	for _, r := range rows {
		if _, ok := want[r.Key()]; ok {
			out = append(out, r)
		}
	}
	return out
}
