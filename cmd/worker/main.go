package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/terojleinonen/cms-admin/internal/app"
	"github.com/terojleinonen/cms-admin/internal/authz"
	"github.com/terojleinonen/cms-admin/internal/platform/cache"
	"github.com/terojleinonen/cms-admin/jobs"
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	// The worker holds its own permission service instance: sweep and
	// invalidation events operate on this instance's cache, while the shared
	// Redis tier keeps the web instances in sync.
	var mirror *authz.RedisMirror
	if cfg.AuthzDistributed {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = redisClient.Close()
		}()
		mirror = authz.NewRedisMirror(redisClient, cfg.AuthzCacheTTL, logger)
	}
	permissions := authz.NewService(authz.Options{
		TTL:          cfg.AuthzCacheTTL,
		MaxCacheSize: cfg.AuthzCacheMaxSize,
		Mirror:       mirror,
		Logger:       logger,
	})
	invalidator := authz.NewInvalidator(permissions, nil, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzSweep, Handler: jobs.NewSweepHandler(invalidator, logger)},
			{Type: jobs.TaskAuthzInvalidate, Handler: jobs.NewInvalidateHandler(invalidator, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.SweepCron, Task: jobs.NewSweepTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
