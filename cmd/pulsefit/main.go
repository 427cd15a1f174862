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

	"github.com/pulsefit/pulsefit-iam/internal/app"
	"github.com/pulsefit/pulsefit-iam/internal/authz"
	"github.com/pulsefit/pulsefit-iam/internal/decisionlog"
	"github.com/pulsefit/pulsefit-iam/internal/permission"
	"github.com/pulsefit/pulsefit-iam/internal/platform/cache"
	"github.com/pulsefit/pulsefit-iam/internal/platform/db"
	"github.com/pulsefit/pulsefit-iam/internal/policy"
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
		logger.Warn("redis unavailable, recent-decision cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	permRepo := permission.NewPGRepository(pool)
	permService := permission.NewService(permRepo, logger)

	policyStore := policy.NewPGStore(pool)
	resolver := policy.NewResolver(nil, policyStore)
	evaluator := policy.NewEvaluator(resolver, logger)
	decisionPoint := policy.NewDecisionPoint(resolver, evaluator, logger)
	policyService := policy.NewService(policyStore, logger)

	decisionRepo := decisionlog.NewPGRepository(pool)
	decisionService := decisionlog.NewService(decisionRepo, redisClient, logger)

	pipeline, err := authz.NewValidator(logger, authz.BuiltinRules()...)
	if err != nil {
		logger.Error("build validation pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	authzService := authz.NewService(authz.ServiceParams{
		Permissions:     permRepo,
		PermissionAdmin: permService,
		Decider:         decisionPoint,
		Validator:       pipeline,
		Recorder:        decisionService,
		Logger:          logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthzHandler:      authz.NewHandler(logger, authzService),
		PermissionHandler: permission.NewHandler(logger, permService),
		PolicyHandler:     policy.NewHandler(logger, policyService),
		DecisionHandler:   decisionlog.NewHandler(logger, decisionService),
		Guard:             authz.Middleware{Service: authzService, Logger: logger},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", slog.Any("error", err))
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
