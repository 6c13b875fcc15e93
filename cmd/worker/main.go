package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alikoudar/irobot-sub000/internal/bootstrap"
	"github.com/alikoudar/irobot-sub000/internal/config"
	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/observability/logging"
	"github.com/alikoudar/irobot-sub000/internal/observability/metrics"
	"github.com/alikoudar/irobot-sub000/internal/scheduler"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.Install(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Logger:     logger,
		Registerer: workerMetrics.Registerer(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	jobs, err := scheduler.New(scheduler.Config{
		Service:        serviceName,
		PurgeSchedule:  cfg.PurgeSchedule,
		RollupSchedule: cfg.RollupSchedule,
	}, app.Cache, workerMetrics, logger)
	if err != nil {
		logger.Error("scheduler_init_failed", "error", err)
		os.Exit(1)
	}
	jobs.Start()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentEvents(ctx, func(handlerCtx context.Context, event domain.DocumentEvent) error {
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(event.OccurredAt))
		}
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessTimeout())
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		err := app.Lifecycle.HandleEvent(processCtx, event)
		workerMetrics.FinishDocument(serviceName, time.Since(start), err)
		workerMetrics.RecordEvent(serviceName, string(event.Type), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	jobs.Stop(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}
