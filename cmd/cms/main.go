package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/terojleinonen/cms-admin/internal/app"
	"github.com/terojleinonen/cms-admin/internal/auth"
	"github.com/terojleinonen/cms-admin/internal/authz"
	"github.com/terojleinonen/cms-admin/internal/observability"
	"github.com/terojleinonen/cms-admin/internal/platform/cache"
	"github.com/terojleinonen/cms-admin/internal/platform/db"
	"github.com/terojleinonen/cms-admin/internal/shared"
	"github.com/terojleinonen/cms-admin/internal/users"
	"github.com/terojleinonen/cms-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "cms_session", cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	var mirror *authz.RedisMirror
	if cfg.AuthzDistributed {
		mirror = authz.NewRedisMirror(redisClient, cfg.AuthzCacheTTL, logger)
	}
	permissions := authz.NewService(authz.Options{
		TTL:          cfg.AuthzCacheTTL,
		MaxCacheSize: cfg.AuthzCacheMaxSize,
		Mirror:       mirror,
		Logger:       logger,
		Metrics:      metrics,
	})

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	invalidator := authz.NewInvalidator(permissions, jobsClient, logger)

	usersRepo := users.NewRepository(pool)
	resolver := users.NewResolver(usersRepo)
	authzMW := authz.Middleware{Service: permissions, Users: resolver, Logger: logger}

	usersService := users.NewService(usersRepo, permissions, invalidator, logger)
	usersHandler := users.NewHandler(logger, usersService, authzMW)

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	permissionsHandler := authz.NewHandler(logger, permissions, authzMW)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
