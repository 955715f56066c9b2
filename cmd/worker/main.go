package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fieldvolt/fieldvolt-access/internal/app"
	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	jobmetrics "github.com/fieldvolt/fieldvolt-access/internal/jobs"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/db"
	"github.com/fieldvolt/fieldvolt-access/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditRepo := audit.NewRepository(pool)
	auditTasks := jobs.NewAuditTasks(auditRepo, logger, jobmetrics.NewMetrics(nil))

	// Retention of zero keeps audit entries forever.
	var cron []jobs.CronRegistration
	if cfg.AuditRetentionDays > 0 {
		retentionTask, err := jobs.NewRetentionTask(cfg.AuditRetentionDays)
		if err != nil {
			logger.Error("build retention task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    "45 3 * * *",
			Task:    retentionTask,
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(cfg.AuditQueue)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Queue:     cfg.AuditQueue,
		Handlers: []jobs.TaskHandler{
			{Type: audit.TaskTypeWrite, Handler: auditTasks.HandleWrite},
			{Type: jobs.TaskTypeRetention, Handler: auditTasks.HandleRetention},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
