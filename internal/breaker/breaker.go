// Package breaker wraps a ledger store with a circuit breaker so an
// unreachable backend fails fast instead of holding every request until it
// times out. Calls are never retried.
package breaker

import (
	"context"
	"errors"
	"time"

	"capex/internal/core"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the circuit is open or probing.
var ErrOpen = errors.New("ledger store circuit open")

// Config sets when the circuit opens. OpenTimeout is how long it stays open
// before probing; a zero Interval never resets the closed-state counts.
type Config struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Interval            time.Duration
	MaxRequests         uint32
}

func DefaultConfig() Config {
	return Config{
		Name:                "ledger",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		MaxRequests:         1,
	}
}

// Store guards every port call of the wrapped store with one breaker.
type Store struct {
	next   ledger.Store
	cb     *gobreaker.CircuitBreaker
	logger *log.Logger
}

// Ensure interface conformance
var (
	_ ledger.Store  = (*Store)(nil)
	_ ledger.Pinger = (*Store)(nil)
)

func Wrap(next ledger.Store, cfg Config, m *metrics.Registry) *Store {
	s := &Store{next: next, logger: log.WithComponent(log.ComponentBreaker)}
	if cfg.Name == "" {
		cfg.Name = "ledger"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	threshold := cfg.ConsecutiveFailures
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			m.SetBreakerState(name, int(to))
		},
		IsSuccessful: isSuccessful,
	})
	m.SetBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return s
}

// isSuccessful keeps caller mistakes and cancellations from tripping the
// circuit; only backend failures count.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var batch *ledger.BatchError
	return errors.As(err, &batch) || errors.Is(err, context.Canceled)
}

func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

func (s *Store) execute(fn func() (interface{}, error)) (interface{}, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return v, err
}

func (s *Store) FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.next.FetchLedgerRows(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.LedgerRow), nil
}

func (s *Store) FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error) {
	v, err := s.execute(func() (interface{}, error) {
		return s.next.FetchAggregates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.ProjectAggregate), nil
}

func (s *Store) Upsert(ctx context.Context, rows []core.LedgerRow) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.next.Upsert(ctx, rows)
	})
	return err
}

// Ping bypasses the breaker so readiness probes report the backend itself.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.next.(ledger.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
