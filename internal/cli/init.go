// Package cli provides common start-up steps shared by cmd/capex and
// cmd/capex-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capex/internal/backend"
	"capex/internal/cache"
	"capex/internal/config"
	"capex/internal/log"
	"capex/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// SetupLogger builds the process logger at level and makes it the default,
// so every component logger picks up the same handler.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitBackend creates the ledger store described by cfg.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, m *metrics.Registry, cfg backend.Config) *backend.BackendResult {
	res, err := backend.NewFactory(m).CreateBackend(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger backend", log.FieldError, err, "backend", cfg.Type.String())
		os.Exit(1)
	}
	logger.Info("Initialized ledger backend", "backend", cfg.Type.String())
	return res
}

// InitRedis connects to url and pings it. An empty url returns nil; an
// unreachable server exits the process.
func InitRedis(ctx context.Context, logger *log.Logger, url string) *redis.Client {
	if url == "" {
		return nil
	}
	client, err := cache.NewRedisClient(url)
	if err != nil {
		logger.Error("Invalid Redis address", log.FieldError, err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("Failed to reach Redis", log.FieldError, err)
		_ = client.Close()
		os.Exit(1)
	}
	logger.Info("Connected to Redis")
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
