package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/crm-admin/internal/api/http"
	"github.com/spec-kit/crm-admin/internal/api/http/handlers"
	"github.com/spec-kit/crm-admin/internal/auth"
	"github.com/spec-kit/crm-admin/internal/config"
	"github.com/spec-kit/crm-admin/internal/events"
	"github.com/spec-kit/crm-admin/internal/observability"
	"github.com/spec-kit/crm-admin/internal/persistence"
	"github.com/spec-kit/crm-admin/internal/repository"
	"github.com/spec-kit/crm-admin/internal/service"
	"github.com/spec-kit/crm-admin/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (defaults to ./.env when present)")
	reclaimOnce := flag.Bool("reclaim-once", false, "delete expired refresh tokens once and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required: users live in postgres")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	pool := pg.PoolHandle()
	metrics := observability.NewMetrics()

	// Redis is only dialed when it backs the refresh token store.
	var (
		redisConn    *persistence.Redis
		refreshRepo  repository.RefreshTokenRepository
		readinessDep = map[string]handlers.Pinger{"postgres": pg}
	)
	switch cfg.Auth.RefreshStore {
	case config.RefreshStoreRedis:
		redisConn = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redisConn.Close()
		refreshRepo = repository.NewRedisRefreshTokenRepository(redisConn.Client, redisConn.KeyPrefix)
		readinessDep["redis"] = redisConn
	default:
		refreshRepo = repository.NewRefreshTokenRepository(pool)
	}
	logger.Info("refresh token store selected", zap.String("store", cfg.Auth.RefreshStore))

	reclaimer := worker.NewReclaimer(refreshRepo, cfg.Reclaim.Schedule, logger, metrics)
	if *reclaimOnce {
		if _, err := reclaimer.RunOnce(ctx); err != nil {
			logger.Fatal("reclamation failed", zap.Error(err))
		}
		return
	}

	userRepo := repository.NewUserRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)

	dispatcher := events.NewAsyncDispatcher(events.NewInMemoryDispatcher(logger))
	worker.StartAuditWorker(service.NewAuditService(dispatcher, historyRepo, logger))

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:         userRepo,
		RefreshTokenRepo: refreshRepo,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
	})
	userService := service.NewUserService(userRepo, historyRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.Verifier())

	if cfg.Reclaim.Enabled {
		if err := reclaimer.Start(); err != nil {
			logger.Fatal("failed to schedule reclamation", zap.Error(err))
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readinessDep),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService, authService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := reclaimer.Stop(shutdownCtx); err != nil {
		logger.Warn("reclaimer shutdown", zap.Error(err))
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("audit events still pending at shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
