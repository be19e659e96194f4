package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/local-scope/localscope/internal/api/http"
	"github.com/local-scope/localscope/internal/api/http/handlers"
	"github.com/local-scope/localscope/internal/auth"
	"github.com/local-scope/localscope/internal/config"
	"github.com/local-scope/localscope/internal/events"
	"github.com/local-scope/localscope/internal/observability"
	"github.com/local-scope/localscope/internal/persistence"
	"github.com/local-scope/localscope/internal/repository"
	"github.com/local-scope/localscope/internal/service"
	"github.com/local-scope/localscope/internal/worker"
)

const confirmationCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.OpenPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Refresh tokens and revocations live in Redis; without it no session can be issued.
	redis, err := persistence.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pool := pg.Pool
	userRepo := repository.NewUserRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	confirmationRepo := repository.NewConfirmationRepository(pool)
	sessionRepo := repository.NewSessionRepository(redis.Client)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	stopNotifications := worker.StartNotificationWorker(notificationService)
	defer stopNotifications()
	go worker.RunConfirmationCleanup(ctx, confirmationRepo, confirmationCleanupInterval, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:         userRepo,
		ProfileRepo:      profileRepo,
		ConfirmationRepo: confirmationRepo,
		SessionRepo:      sessionRepo,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	profileService := service.NewProfileService(profileRepo, dispatcher, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), sessionRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Profiles:       handlers.NewProfilesHandler(profileService),
		AuthMiddleware: authMiddleware,
		Gatherer:       registry,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
