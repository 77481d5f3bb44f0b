package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fincore/internal/app"
	"github.com/odyssey-erp/fincore/internal/observability"
	"github.com/odyssey-erp/fincore/jobs"
)

func main() {
	if app.SkipStartup(slog.Default(), "http server") {
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
		logger.Error("open persistence", slog.String("source", cfg.DataSource), slog.Any("error", err))
		os.Exit(1)
	}
	defer persistence.Close()

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, persistence, metrics, logger)
	params := services.RouterParams(cfg, logger, metrics)

	if persistence.Source == app.PersistencePostgres {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("close inspector", slog.Any("error", err))
			}
			if err := client.Close(); err != nil {
				logger.Warn("close job client", slog.Any("error", err))
			}
		}()
		params.JobsHandler = jobs.NewHandler(inspector, client, logger)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("source", string(persistence.Source)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
