package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fincore/internal/app"
	"github.com/odyssey-erp/fincore/internal/observability"
	"github.com/odyssey-erp/fincore/jobs"
)

func main() {
	if app.SkipStartup(slog.Default(), "worker") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	persistence, err := app.OpenPersistence(ctx, cfg, logger)
	if err != nil {
		logger.Error("open persistence", slog.Any("error", err))
		os.Exit(1)
	}
	defer persistence.Close()
	if persistence.Source == app.PersistenceMemory {
		logger.Warn("worker running against in-memory state; checks only see this process")
	}

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, persistence, metrics, logger)

	integrityJob := jobs.NewLedgerIntegrityJob(services.Ledger, services.Stock, logger, metrics.Jobs())
	revaluationJob := jobs.NewInventoryRevaluationJob(services.Stock, logger, metrics.Jobs())

	schedule, err := jobs.TenantSchedule(cfg.WorkerTenants)
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskInventoryRevaluation, Handler: revaluationJob.Handle},
		},
		Cron: schedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("tenants", len(cfg.WorkerTenants)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
