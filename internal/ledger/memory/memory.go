package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"capex/internal/core"
	"capex/internal/ingest"
	"capex/internal/ledger"
)

// Store keeps the ledger in process memory. Rows are replaced by natural key
// and aggregates are derived on every read.
type Store struct {
	mu    sync.Mutex
	cal   core.Calendar
	now   func() time.Time
	rows  []core.LedgerRow
	index map[core.NaturalKey]int
}

type Option func(*Store)

// WithClock replaces the wall clock used for readiness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(cal core.Calendar, opts ...Option) *Store {
	s := &Store{cal: cal, now: time.Now, index: map[core.NaturalKey]int{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromFile seeds a store from a ledger CSV file. A missing file yields an
// empty store; rows the validator rejects are skipped and counted.
func NewFromFile(cal core.Calendar, path string, opts ...Option) (*Store, int, error) {
	s := New(cal, opts...)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read seed %s: %w", path, err)
	}
	res := ingest.Validate(string(b))
	if res.SchemaRejected() {
		return nil, 0, fmt.Errorf("seed %s: %s", path, res.Errors[0])
	}
	if err := s.Upsert(context.Background(), res.Rows); err != nil {
		return nil, 0, err
	}
	return s, len(res.Errors), nil
}

// FetchLedgerRows returns a copy of every row ordered by (year, month).
func (s *Store) FetchLedgerRows(_ context.Context) ([]core.LedgerRow, error) {
	s.mu.Lock()
	out := append([]core.LedgerRow(nil), s.rows...)
	s.mu.Unlock()
	ledger.SortRows(out)
	return out, nil
}

func (s *Store) FetchAggregates(_ context.Context) ([]core.ProjectAggregate, error) {
	s.mu.Lock()
	rows := append([]core.LedgerRow(nil), s.rows...)
	s.mu.Unlock()
	return ledger.DeriveAggregates(rows, s.cal, s.now()), nil
}

// Upsert replaces rows by natural key, appending unknown keys. Nothing is
// written when any row is invalid.
func (s *Store) Upsert(_ context.Context, rows []core.LedgerRow) error {
	if err := ledger.ValidateBatch(rows); err != nil {
		return err
	}
	rows = ledger.Dedupe(rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if i, ok := s.index[r.Key()]; ok {
			s.rows[i] = r
			continue
		}
		s.index[r.Key()] = len(s.rows)
		s.rows = append(s.rows, r)
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of current rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

var (
	_ ledger.Store  = (*Store)(nil)
	_ ledger.Pinger = (*Store)(nil)
)
