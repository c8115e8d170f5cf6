// Package cache holds the read-through caches of the ledger reads and the
// per-session draft store. An in-process LRU serves single replicas; Redis is
// shared between replicas and the worker.
package cache

import (
	"context"
	"time"

	"capex/internal/core"
	"capex/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get reports a miss with ok=false; err is reserved for backend failures.
	Get(ctx context.Context, key string) (T, bool, error)

	Set(ctx context.Context, key string, data T) error

	Deleter
}

// Deleter removes keys; missing keys are not an error.
type Deleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// KeyFor is the cache key of a cached read.
func KeyFor(r core.Resource) string {
	return string(r)
}

// Invalidate deletes the cached reads of resources from d.
func Invalidate(ctx context.Context, d Deleter, resources ...core.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	keys := make([]string, len(resources))
	for i, r := range resources {
		keys[i] = KeyFor(r)
	}
	return d.Delete(ctx, keys...)
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
	logger      *log.Logger
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		logger:      log.WithComponent(log.ComponentCache),
	}
}

func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Evicted expired cache entries", log.FieldCount, n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanNow runs one cleanup pass and returns the number of evicted entries.
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup routine started by StartCleanup.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	if m.started {
		<-m.cleanupDone
	}
}
