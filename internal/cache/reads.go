package cache

import (
	"context"
	"sync"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"
)

// Reads is a read-through cache over the two ledger reads. Only successful
// reads are stored; a cache backend error falls through to the store. A load
// that overlaps an Invalidate of its resource is returned but not stored.
type Reads struct {
	rows    ledger.RowReader
	aggs    ledger.AggregateReader
	rowC    Cache[[]core.LedgerRow]
	aggC    Cache[[]core.ProjectAggregate]
	metrics *metrics.Registry
	logger  *log.Logger

	mu   sync.Mutex
	gens map[core.Resource]uint64
}

var (
	_ ledger.RowReader       = (*Reads)(nil)
	_ ledger.AggregateReader = (*Reads)(nil)
)

func NewReads(rows ledger.RowReader, aggs ledger.AggregateReader, rowC Cache[[]core.LedgerRow], aggC Cache[[]core.ProjectAggregate], m *metrics.Registry) *Reads {
	return &Reads{
		rows:    rows,
		aggs:    aggs,
		rowC:    rowC,
		aggC:    aggC,
		metrics: m,
		logger:  log.WithComponent(log.ComponentCache),
		gens:    make(map[core.Resource]uint64),
	}
}

func (r *Reads) generation(res core.Resource) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[res]
}

func (r *Reads) FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error) {
	return readThrough(ctx, r, core.ResourceLedger, r.rowC, r.rows.FetchLedgerRows)
}

func (r *Reads) FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error) {
	return readThrough(ctx, r, core.ResourceAggregate, r.aggC, r.aggs.FetchAggregates)
}

func readThrough[T any](ctx context.Context, r *Reads, res core.Resource, c Cache[T], load func(context.Context) (T, error)) (T, error) {
	key := KeyFor(res)
	if c != nil {
		v, ok, err := c.Get(ctx, key)
		if err != nil {
			r.logger.WarnContext(ctx, "Cache read failed", log.FieldResource, res, log.FieldError, err)
		}
		if ok {
			r.metrics.RecordCache(string(res), true)
			return v, nil
		}
		r.metrics.RecordCache(string(res), false)
	}

	gen := r.generation(res)
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if c != nil {
		r.store(ctx, res, gen, func() error { return c.Set(ctx, key, v) })
	}
	return v, nil
}

// store runs set only while the generation of res is still gen. Holding mu
// keeps a concurrent Invalidate from slipping between the check and the write.
func (r *Reads) store(ctx context.Context, res core.Resource, gen uint64, set func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[res] != gen {
		r.logger.DebugContext(ctx, "Discarded read overlapping an invalidation", log.FieldResource, res)
		return
	}
	if err := set(); err != nil {
		r.logger.WarnContext(ctx, "Cache write failed", log.FieldResource, res, log.FieldError, err)
	}
}

// Invalidate drops the cached reads named by resources. Both caches are
// attempted; the first error is returned.
func (r *Reads) Invalidate(ctx context.Context, resources ...core.Resource) error {
	r.mu.Lock()
	for _, res := range resources {
		r.gens[res]++
	}
	r.mu.Unlock()

	var first error
	for _, res := range resources {
		var d Deleter
		switch res {
		case core.ResourceLedger:
			if r.rowC != nil {
				d = r.rowC
			}
		case core.ResourceAggregate:
			if r.aggC != nil {
				d = r.aggC
			}
		}
		if d == nil {
			continue
		}
		if err := Invalidate(ctx, d, res); err != nil && first == nil {
			first = err
		}
	}
	if first == nil {
		r.logger.DebugContext(ctx, "Invalidated cached reads", log.FieldResource, resources)
	}
	return first
}
