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

	"github.com/fieldvolt/fieldvolt-access/internal/app"
	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/authz"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/grants"
	"github.com/fieldvolt/fieldvolt-access/internal/observability"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/cache"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/db"
	"github.com/fieldvolt/fieldvolt-access/internal/portal"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
	"github.com/fieldvolt/fieldvolt-access/jobs"
)

// credentialSource adapts the users repository to the auth service.
type credentialSource struct {
	repo users.Repository
}

func (c credentialSource) Credentials(ctx context.Context, email string) (auth.Credentials, error) {
	user, err := c.repo.FindByEmail(ctx, email)
	if err != nil {
		return auth.Credentials{}, err
	}
	return auth.Credentials{
		UserID:       user.ID,
		PasswordHash: user.PasswordHash,
		IsActive:     user.IsActive,
	}, nil
}

// roleCatalog adapts the catalog store to the users role validator.
type roleCatalog struct {
	store *catalog.Store
}

func (r roleCatalog) Exists(name string) bool {
	_, ok := r.store.Get(name)
	return ok
}

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewQueueRecorder(asynqClient, cfg.AuditQueue)

	grantCache := authz.NewCache(redisClient, cfg.GrantCacheTTL)
	if err := grantCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	invalidate := func() {
		if err := grantCache.Bump(context.Background()); err != nil {
			logger.Warn("bump grant cache", slog.Any("error", err))
		}
	}

	roleStore := catalog.NewStore(recorder, logger)
	catalogHandler := catalog.NewHandler(logger, roleStore, invalidate)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, roleCatalog{store: roleStore}, recorder, logger, invalidate)
	usersHandler := users.NewHandler(logger, usersService)

	grantsRepo := grants.NewRepository(pool)
	grantsService := grants.NewService(grantsRepo, recorder, logger, invalidate)
	grantsHandler := grants.NewHandler(logger, grantsService)

	metrics := observability.NewMetrics()

	cachedGrants := authz.NewCachedGrants(grantsService, grantCache)
	authorizer := authz.NewService(roleStore, cachedGrants, usersService, recorder, metrics, logger)
	authzHandler := authz.NewHandler(logger, authorizer)

	sessionManager := auth.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	authService := auth.NewService(credentialSource{repo: usersRepo})
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	portalResolver := portal.NewResolver(roleStore)
	portalHandler := portal.NewHandler(logger, portalResolver, usersService)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger, cfg.AuditQueue)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Authorizer:     authorizer,
		AuthHandler:    authHandler,
		AuthzHandler:   authzHandler,
		CatalogHandler: catalogHandler,
		UsersHandler:   usersHandler,
		GrantsHandler:  grantsHandler,
		PortalHandler:  portalHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
