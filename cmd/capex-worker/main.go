package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"capex/internal/amqp"
	"capex/internal/backend"
	"capex/internal/cache"
	"capex/internal/cli"
	"capex/internal/log"
	"capex/internal/metrics"
	"capex/internal/worker"
)

const jobTimeout = 5 * time.Minute

func main() {
	logger := cli.SetupLogger("")
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)

	logger.Info("Starting capex-worker")
	if cfg.AMQPURL == "" {
		logger.Error("CAPEX_AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx := context.Background()
	reg := metrics.New()

	// The worker only deletes keys, so the value type is irrelevant. API
	// processes without Redis keep private caches the worker cannot reach.
	var deleter cache.Deleter
	if rdb := cli.InitRedis(ctx, logger, cfg.RedisURL); rdb != nil {
		defer rdb.Close()
		deleter = cache.NewRedisCache[json.RawMessage](rdb, cache.DefaultPrefix, cfg.CacheTTL)
	} else {
		logger.Warn("CAPEX_REDIS_URL not set, skipping shared cache invalidation")
	}

	opts := []worker.Option{worker.WithMetrics(reg)}
	mirrorCfg, mirroring, err := backend.MirrorFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", log.FieldError, err)
		os.Exit(1)
	}
	if mirroring {
		primaryCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			logger.Error("Invalid backend configuration", log.FieldError, err)
			os.Exit(1)
		}
		primary := cli.InitBackend(ctx, logger, reg, primaryCfg)
		defer primary.Close()
		mirror := cli.InitBackend(ctx, logger, reg, mirrorCfg)
		defer mirror.Close()
		opts = append(opts, worker.WithMirror(primary.Store, mirror.Store))
		logger.Info("Mirroring ledger", "from", cfg.Backend, "to", cfg.MirrorBackend)
	} else {
		logger.Info("Mirror disabled - no CAPEX_MIRROR_BACKEND provided")
	}
	ledgerWorker := worker.NewLedgerWorker(deleter, opts...)

	jobs := ledgerWorker.Jobs(cfg.CacheRefreshSchedule, cfg.MirrorSchedule)
	scheduler, err := worker.NewScheduler(time.Local, jobTimeout, jobs...)
	if err != nil {
		logger.Error("Failed to schedule jobs", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	runCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Scheduled jobs still running at shutdown", log.FieldError, err)
		}
	})

	// Catch up on changes missed while the worker was down.
	if mirroring {
		startupCtx, cancel := context.WithTimeout(runCtx, jobTimeout)
		if err := ledgerWorker.SyncMirror(startupCtx); err != nil {
			logger.Error("Startup mirror sync failed", log.FieldError, err)
		}
		cancel()
	}

	scheduler.Start()

	go func() {
		err := amqpClient.ConsumeLedgerChanged(runCtx, ledgerWorker.HandleLedgerChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped")
}
