package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/ratelimit"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
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

	pool := pg.PoolHandle()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(cfg.Redis, logger)
	defer redisConn.Close()

	keys, err := auth.LoadKeyMaterial(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to load key material", zap.Error(err))
	}
	defer keys.Destroy()

	refreshStore, err := newRefreshTokenStore(cfg.Auth.RefreshStore, pool, redisConn)
	if err != nil {
		logger.Fatal("failed to select refresh token store", zap.Error(err))
	}
	logger.Info("refresh token store selected", zap.String("store", cfg.Auth.RefreshStore))

	tokens := auth.NewTokenManager(keys, refreshStore, auth.TokenConfig{
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})

	hashPool, err := worker.NewHashPool(auth.NewPasswordHasher(cfg.Auth.BcryptCost), cfg.Auth.HashWorkers)
	if err != nil {
		logger.Fatal("failed to init hash pool", zap.Error(err))
	}

	var limiter service.AttemptLimiter
	if redisConn.Enabled() && cfg.Auth.LoginMaxAttempts > 0 {
		limiter = ratelimit.NewLoginLimiter(redisConn.Client(), cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow)
	} else {
		logger.Warn("login limiter disabled")
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:     repository.NewUserRepository(pool),
		TokenManager: tokens,
		Credentials:  hashPool,
		Limiter:      limiter,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	reaper := worker.NewRefreshTokenReaper(refreshStore, cfg.Auth.ReapInterval, logger)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	dependencies := map[string]handlers.Pinger{"postgres": pg}
	if redisConn.Enabled() {
		dependencies["redis"] = redisConn
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics),
		Auth: handlers.NewAuthHandler(authService, auth.CookiePolicy{
			Domain: cfg.Auth.CookieDomain,
			Secure: cfg.Auth.CookieSecure,
		}),
		JWKS:           handlers.NewJWKSHandler(keys),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	cancel()
	<-reaperDone
}

func newRefreshTokenStore(kind string, db repository.DBTX, redisConn *persistence.Redis) (repository.RefreshTokenRepository, error) {
	switch kind {
	case config.RefreshStorePostgres:
		return repository.NewRefreshTokenRepository(db), nil
	case config.RefreshStoreRedis:
		if !redisConn.Enabled() {
			return nil, errors.New("AUTH_REFRESH_STORE=redis requires REDIS_ADDR")
		}
		return repository.NewRedisRefreshTokenRepository(redisConn.Client()), nil
	case config.RefreshStoreMemory:
		return repository.NewInMemoryRefreshTokenRepository(), nil
	default:
		return nil, fmt.Errorf("unknown refresh token store %q", kind)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
