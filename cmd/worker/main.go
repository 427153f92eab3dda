package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
	"github.com/odyssey-erp/odyssey-gl/internal/observability"
	"github.com/odyssey-erp/odyssey-gl/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.ServiceName == "odyssey-gl" {
		cfg.ServiceName = "odyssey-gl-worker"
	}
	logger := app.NewLogger(cfg)
	if cfg.Store != app.StorePostgres {
		logger.Error("worker requires the postgres store", slog.String("store", cfg.Store))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("close job client", slog.Any("error", err))
		}
	}()

	gl, err := app.BuildGL(ctx, cfg, logger, observability.NewMetrics(), jobs.NewQueueNotifier(client))
	if err != nil {
		logger.Error("build gl", slog.Any("error", err))
		os.Exit(1)
	}
	defer gl.Close()

	metrics := jobmetrics.NewMetrics(nil)
	integrityJob := jobs.NewGLIntegrityJob(gl.Journals, gl.Balances, gl.Tolerance, metrics, logger)
	notifyHandler := jobs.NewApprovalNotifyHandler(jobs.LogDeliverer{Logger: logger}, metrics)
	sweeper := jobs.NewOverdueSweeper(gl.Approvals, client, metrics, logger)

	integrityTask, err := jobs.NewGLIntegrityTask(jobs.GLIntegrityPayload{LookbackHours: cfg.IntegrityLookbackHour})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskApprovalNotify, Handler: notifyHandler.ProcessTask},
			{Type: jobs.TaskApprovalOverdue, Handler: sweeper.ProcessTask},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.ProcessTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: integrityTask},
			{Spec: cfg.OverdueCron, Task: jobs.NewApprovalOverdueTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
