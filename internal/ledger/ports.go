// Package ledger defines the ports to the external tabular store and the
// store-side helpers shared by the adapters that cannot push work into SQL.
package ledger

import (
	"context"
	"errors"

	"capex/internal/core"
)

var ErrNotConfigured = errors.New("ledger store not configured")

// Ports for outbound adapters.
type (
	// RowReader returns every ledger row ordered by (year, month) ascending.
	RowReader interface {
		FetchLedgerRows(ctx context.Context) ([]core.LedgerRow, error)
	}

	// AggregateReader returns the per-project aggregate view, unordered.
	AggregateReader interface {
		FetchAggregates(ctx context.Context) ([]core.ProjectAggregate, error)
	}

	// Upserter replaces rows by natural key. The batch succeeds or fails as a
	// whole.
	Upserter interface {
		Upsert(ctx context.Context, rows []core.LedgerRow) error
	}

	Store interface {
		RowReader
		AggregateReader
		Upserter
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)
