package services

import (
	"context"
	"fmt"

	"capex/internal/core"
	"capex/internal/forecast"
	"capex/internal/ingest"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"
)

// ImportResult is the validation outcome plus how many rows were written.
type ImportResult struct {
	ingest.Result
	Persisted int `json:"persisted"`
}

// ImportService validates uploaded ledger files and upserts the accepted
// rows.
type ImportService struct {
	store       ledger.Upserter
	validator   ingest.Validator
	invalidator forecast.Invalidator
	publisher   forecast.Publisher
	metrics     *metrics.Registry
	logger      *log.StructuredLogger
}

func NewImportService(store ledger.Upserter, inv forecast.Invalidator, pub forecast.Publisher, m *metrics.Registry) *ImportService {
	return &ImportService{
		store:       store,
		invalidator: inv,
		publisher:   pub,
		metrics:     m,
		logger:      log.NewStructuredLogger(log.WithComponent(log.ComponentIngest)),
	}
}

// Validate checks raw without writing anything.
func (s *ImportService) Validate(raw string) ingest.Result {
	res := s.validator.Validate(raw)
	s.metrics.RecordIngest(len(res.Rows), len(res.Errors))
	return res
}

// Import validates raw and upserts every accepted row in one call. Rejected
// lines do not block the accepted ones; a missing column persists nothing.
func (s *ImportService) Import(ctx context.Context, raw string) (ImportResult, error) {
	res := s.Validate(raw)
	out := ImportResult{Result: res}
	if res.SchemaRejected() || len(res.Rows) == 0 {
		return out, nil
	}

	if err := s.store.Upsert(ctx, res.Rows); err != nil {
		s.metrics.RecordStoreError("upsert")
		return out, fmt.Errorf("import ledger rows: %w", err)
	}
	out.Persisted = len(res.Rows)
	s.metrics.RecordUpsert(string(core.SourceImport), out.Persisted)
	s.logger.LogLedgerWrite(ctx, string(core.SourceImport), out.Persisted, len(res.Errors))

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, core.ResourceLedger, core.ResourceAggregate); err != nil {
			s.logger.LogError(ctx, "Failed to invalidate cached reads", err, log.ComponentCache, log.OpInvalidate, nil)
		}
	}
	if s.publisher != nil {
		keys := make([]core.NaturalKey, len(res.Rows))
		for i, r := range res.Rows {
			keys[i] = r.Key()
		}
		if err := s.publisher.PublishLedgerChanged(ctx, core.SourceImport, keys); err != nil {
			s.logger.LogError(ctx, "Failed to publish ledger change", err, log.ComponentAMQP, log.OpPublish, nil)
		}
	}
	return out, nil
}
