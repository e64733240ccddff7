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

	"github.com/aegis-iam/aegis/internal/app"
	"github.com/aegis-iam/aegis/internal/auth"
	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/groups"
	"github.com/aegis-iam/aegis/internal/observability"
	"github.com/aegis-iam/aegis/internal/platform/cache"
	"github.com/aegis-iam/aegis/internal/platform/db"
	"github.com/aegis-iam/aegis/internal/roles"
	"github.com/aegis-iam/aegis/internal/shared"
	"github.com/aegis-iam/aegis/internal/users"
	"github.com/aegis-iam/aegis/jobs"
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

	// Authorization core. The catalog and the endpoint metadata registry are
	// built and validated before the listener starts; an operation requiring
	// an unknown permission refuses startup.
	catalog := app.NewCatalog()
	registry := authz.NewRegistry()
	app.RegisterOperations(registry)
	if err := registry.Validate(catalog); err != nil {
		logger.Error("endpoint permission metadata invalid", slog.Any("error", err))
		os.Exit(1)
	}

	graph := authz.NewStore(pool)
	resolver := authz.NewResolver(graph, cfg.AuthzResolveTimeout)
	permCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)
	authorizer := authz.NewService(resolver, permCache, logger)

	auditLogger := shared.NewAuditLogger(pool)
	reporter := authz.NewDenialReporter(logger, auditLogger)
	metrics := observability.NewMetrics()

	gate := authz.Middleware{
		Service:   authorizer,
		Registry:  registry,
		Reporter:  reporter,
		Decisions: metrics,
		Logger:    logger,
	}
	serviceKeyGate := authz.NewServiceKeyGate(cfg.ServiceKey, logger)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	invalidator := jobs.NewInvalidator(jobsClient, permCache, logger)

	rolesService := roles.NewService(roles.NewRepository(pool), invalidator, logger)
	groupsService := groups.NewService(groups.NewRepository(pool), invalidator, logger)
	usersService := users.NewService(users.NewRepository(pool), invalidator, logger)
	authService := auth.NewService(auth.NewRepository(pool))

	// Keep the stored permission listing aligned with the catalog the gate
	// enforces.
	if err := rolesService.SyncCatalog(ctx, catalog); err != nil {
		logger.Error("sync permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "aegis_session", cfg.SessionTTL, cfg.IsProduction())

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthHandler:    auth.NewHandler(logger, authService, authorizer, sessionManager, cfg.SessionTTL),
		UsersHandler:   users.NewHandler(logger, usersService, gate),
		RolesHandler:   roles.NewHandler(logger, rolesService, gate),
		GroupsHandler:  groups.NewHandler(logger, groupsService, gate),
		Gate:           gate,
		ServiceKeyGate: serviceKeyGate,
		Authorizer:     authorizer,
		AuditLogger:    auditLogger,
		Metrics:        metrics,
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
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
