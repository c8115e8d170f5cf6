package forecast

import (
	"context"
	"fmt"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"
)

// Invalidator drops cached reads after a successful write.
type Invalidator interface {
	Invalidate(ctx context.Context, resources ...core.Resource) error
}

// Publisher announces ledger changes to other processes.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, source core.ChangeSource, keys []core.NaturalKey) error
}

// CommitResult reports what a commit wrote.
type CommitResult struct {
	Rows      []core.LedgerRow `json:"rows"`
	Committed int              `json:"committed"`
}

// Manager writes session drafts back to the ledger.
type Manager struct {
	store       ledger.Upserter
	invalidator Invalidator
	publisher   Publisher
	metrics     *metrics.Registry
	cal         core.Calendar
	now         func() time.Time
	logger      *log.Logger
}

type Option func(*Manager)

func WithInvalidator(inv Invalidator) Option { return func(m *Manager) { m.invalidator = inv } }
func WithPublisher(p Publisher) Option { return func(m *Manager) { m.publisher = p } }
func WithMetrics(r *metrics.Registry) Option { return func(m *Manager) { m.metrics = r } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(store ledger.Upserter, cal core.Calendar, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		cal:    cal,
		now:    time.Now,
		logger: log.WithComponent(log.ComponentForecast),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Commit upserts one row per forward-month ledger row that has a draft. With
// nothing to write it returns without touching the store. Drafts are left in
// place so a repeated commit writes the same values again.
func (m *Manager) Commit(ctx context.Context, rows []core.LedgerRow, drafts *Drafts) (CommitResult, error) {
	if drafts == nil || drafts.Len() == 0 {
		return CommitResult{}, nil
	}
	updates := BuildUpdates(rows, drafts.Snapshot(), m.cal.ForwardMonths, m.now().UTC())
	if len(updates) == 0 {
		m.logger.DebugContext(ctx, "No drafts match ledger rows", log.FieldCount, drafts.Len())
		return CommitResult{}, nil
	}

	if err := m.store.Upsert(ctx, updates); err != nil {
		m.metrics.RecordCommit("error")
		m.metrics.RecordStoreError("upsert")
		return CommitResult{}, fmt.Errorf("commit forecast: %w", err)
	}
	m.metrics.RecordCommit("ok")
	m.metrics.RecordUpsert(string(core.SourceForecast), len(updates))
	m.logger.InfoContext(ctx, "Committed forecast drafts", log.FieldCount, len(updates))

	if m.invalidator != nil {
		if err := m.invalidator.Invalidate(ctx, core.ResourceLedger, core.ResourceAggregate); err != nil {
			m.logger.WarnContext(ctx, "Failed to invalidate cached reads", log.FieldError, err)
		}
	}
	if m.publisher != nil {
		keys := make([]core.NaturalKey, len(updates))
		for i, u := range updates {
			keys[i] = u.Key()
		}
		if err := m.publisher.PublishLedgerChanged(ctx, core.SourceForecast, keys); err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish ledger change", log.FieldError, err)
		}
	}

	return CommitResult{Rows: updates, Committed: len(updates)}, nil
}

// BuildUpdates returns a copy of each forward-month row that has a draft, with
// the draft as its actual amount, flagged as forecast and stamped with now.
// Identity and natural key are kept.
func BuildUpdates(rows []core.LedgerRow, drafts map[DraftKey]float64, forwardMonths []int, now time.Time) []core.LedgerRow {
	forward := make(map[int]bool, len(forwardMonths))
	for _, m := range forwardMonths {
		forward[m] = true
	}
	var out []core.LedgerRow
	for _, r := range rows {
		if !forward[r.Month] {
			continue
		}
		v, ok := drafts[DraftKey{Project: r.ProjectName, Month: r.Month}]
		if !ok {
			continue
		}
		u := r
		u.ActualAmountUSD = v
		u.IsForecast = true
		ts := now
		u.UpdatedAt = &ts
		out = append(out, u)
	}
	return out
}
