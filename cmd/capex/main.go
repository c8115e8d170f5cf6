package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"capex/internal/amqp"
	"capex/internal/backend"
	"capex/internal/cache"
	"capex/internal/cli"
	"capex/internal/core"
	"capex/internal/forecast"
	apphttp "capex/internal/http"
	"capex/internal/ledger"
	"capex/internal/log"
	"capex/internal/metrics"
	"capex/internal/middleware/ratelimit"
	"capex/internal/services"
)

func main() {
	logger := cli.SetupLogger("")
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()
	reg := metrics.New()
	cal := cfg.Calendar()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	store := cli.InitBackend(ctx, logger, reg, backendCfg)
	defer store.Close()

	ready := []apphttp.ReadyCheck{{Name: "ledger", Check: store.Breaker.Ping}}

	var (
		rows        ledger.RowReader       = store.Store
		aggs        ledger.AggregateReader = store.Store
		invalidator forecast.Invalidator
		publisher   forecast.Publisher
	)

	// Cached reads: Redis when configured so every replica and the worker
	// share entries, otherwise an in-process cache.
	if cfg.CacheTTL > 0 {
		var (
			rowCache cache.Cache[[]core.LedgerRow]
			aggCache cache.Cache[[]core.ProjectAggregate]
		)
		if rdb := cli.InitRedis(ctx, logger, cfg.RedisURL); rdb != nil {
			defer rdb.Close()
			rowCache = cache.NewRedisCache[[]core.LedgerRow](rdb, cache.DefaultPrefix, cfg.CacheTTL)
			aggCache = cache.NewRedisCache[[]core.ProjectAggregate](rdb, cache.DefaultPrefix, cfg.CacheTTL)
			ready = append(ready, apphttp.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		} else {
			rowCache = cache.NewLRUCache[[]core.LedgerRow](1, cfg.CacheTTL)
			aggCache = cache.NewLRUCache[[]core.ProjectAggregate](1, cfg.CacheTTL)
		}
		reads := cache.NewReads(store.Store, store.Store, rowCache, aggCache, reg)
		rows, aggs, invalidator = reads, reads, reads
		logger.Info("Ledger read cache enabled", "ttl", cfg.CacheTTL, "shared", cfg.RedisURL != "")
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Change events are best effort; writes go ahead without them.
			logger.Warn("AMQP unavailable, ledger change events disabled", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Publishing ledger change events", "exchange", cfg.AMQPExchange)
		}
	}

	managerOpts := []forecast.Option{forecast.WithMetrics(reg)}
	if invalidator != nil {
		managerOpts = append(managerOpts, forecast.WithInvalidator(invalidator))
	}
	if publisher != nil {
		managerOpts = append(managerOpts, forecast.WithPublisher(publisher))
	}

	loader := services.NewSnapshotLoader(rows, aggs, reg)
	deps := apphttp.Deps{
		Dashboard: services.NewDashboardService(loader, cal),
		Import:    services.NewImportService(store.Store, invalidator, publisher, reg),
		Forecast:  forecast.NewManager(store.Store, cal, managerOpts...),
		Calendar:  cal,
		Metrics:   reg,
		Ready:     ready,
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps, apphttp.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit,
			Burst:             cfg.RateBurst,
		},
		DraftSessions: cfg.DraftSessions,
		DraftTTL:      cfg.DraftTTL,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting capex server",
		"port", cfg.Port,
		"backend", cfg.Backend,
		"auth", cfg.AuthEnabled(),
		"reporting_month", cal.ReportingMonth,
		"forward_months", cal.ForwardMonths)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
