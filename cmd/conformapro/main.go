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

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/app"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/export"
	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/permissions"
	"github.com/conformapro/conformapro/internal/platform/cache"
	"github.com/conformapro/conformapro/internal/platform/db"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/users"
	"github.com/conformapro/conformapro/internal/view"
	"github.com/conformapro/conformapro/jobs"
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

	partition, err := cfg.Partition()
	if err != nil {
		logger.Error("staff roles", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "conformapro_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	renderer := view.Renderer{Engine: templates, CSRF: csrfManager, Logger: logger}

	verifierOpts := auth.VerifierOptions{
		Issuer:   cfg.SupabaseURL + "/auth/v1",
		Audience: cfg.SupabaseJWTAudience,
		Leeway:   cfg.JWTLeeway,
	}
	var verifier *auth.Verifier
	if cfg.SupabaseJWKSURL != "" {
		verifier, err = auth.NewJWKSVerifier(cfg.SupabaseJWKSURL, cfg.JWKSRefreshInterval, verifierOpts, logger)
		if err != nil {
			logger.Error("load jwks", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		verifier = auth.NewHMACVerifier(cfg.SupabaseJWTSecret, verifierOpts)
	}

	authService := auth.NewService(
		auth.NewGoTrueClient(cfg.SupabaseURL, cfg.SupabaseAnonKey),
		verifier,
		auth.NewRepository(dbpool),
		auth.NewStore(redisClient, cfg.SessionTTL),
		logger,
	)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if cfg.RoleResolutionAsync {
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		authService.UseQueue(jobClient)
	}
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	grantCache := permissions.NewCachedSource(
		permissions.NewRepository(dbpool),
		cfg.PermissionCacheSize,
		cfg.PermissionCacheTTL,
		metrics.Registerer(),
	)
	permissionsMiddleware := permissions.Middleware{Source: grantCache, Renderer: renderer, Logger: logger}

	sitesService := sites.NewService(sites.NewRepository(dbpool))
	sitesHandler := sites.NewHandler(logger, sitesService)
	sitesHandler.UseInvalidator(grantCache)

	exporter := export.Exporter{Logger: logger, Metrics: metrics}
	var archive export.FileWriter
	if archiveCfg, ok := cfg.Archive(); ok {
		objectArchive, err := export.NewObjectArchive(archiveCfg)
		if err != nil {
			logger.Warn("export archive disabled", slog.Any("error", err))
		} else {
			archive = objectArchive
		}
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Renderer:       renderer,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,

		Auth:        auth.Middleware{Service: authService, Partition: partition, Logger: logger},
		Access:      access.Middleware{Templates: templates, CSRF: csrfManager, Logger: logger, Metrics: metrics},
		Permissions: permissionsMiddleware,

		AuthHandler:        authHandler,
		SitesService:       sitesService,
		SitesHandler:       sitesHandler,
		PermissionsHandler: permissions.NewHandler(logger, renderer, permissionsMiddleware, exporter, archive),
		UsersHandler:       users.NewHandler(logger, users.NewService(users.NewRepository(dbpool)), renderer, exporter, archive),
		JobHandler:         jobs.NewHandler(inspector, logger),
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
