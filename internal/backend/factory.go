package backend

import (
	"context"
	"fmt"

	"capex/internal/breaker"
	"capex/internal/ledger"
	"capex/internal/ledger/google"
	"capex/internal/ledger/memory"
	"capex/internal/log"
	"capex/internal/metrics"
	"capex/internal/storage"
	"capex/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	metrics *metrics.Registry
	logger  *log.Logger
}

// NewFactory creates a new backend factory. m may be nil.
func NewFactory(m *metrics.Registry) Factory {
	return &DefaultFactory{
		metrics: m,
		logger:  log.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store   ledger.Store
		cleanup CleanupFunc
		err     error
	)
	switch config.Type {
	case MemoryBackend:
		store, err = f.createMemoryBackend(config)
	case SQLiteBackend:
		store, cleanup, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		store, cleanup, err = f.createPostgresBackend(ctx, config)
	case SheetsBackend:
		store, err = f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	guarded := breaker.Wrap(store, config.Breaker, f.metrics)
	return &BackendResult{
		Store:   guarded,
		Breaker: guarded,
		Cleanup: cleanup,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (ledger.Store, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New(config.Calendar), nil
	}

	store, skipped, err := memory.NewFromFile(config.Calendar, config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend",
		"seed_file", config.SeedFile,
		log.FieldCount, store.Len(),
		log.FieldRejected, skipped)
	return store, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (ledger.Store, CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, config.Calendar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, repo.Close, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (ledger.Store, CleanupFunc, error) {
	store, err := postgres.New(ctx, config.PostgresURL, config.Calendar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return store, func() error { store.Close(); return nil }, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (ledger.Store, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleCredentialsJSON,
		CredentialsFile: config.GoogleCredentialsFile,
	}, config.Calendar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)
	return cli, nil
}
