package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/bootstrap"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
)

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

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start runtime", zap.Error(err))
	}
	defer rt.Close()

	if rt.Postgres != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, rt.Postgres.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	authMiddleware := auth.NewAuthMiddleware(rt.Auth.TokenManager(), rt.Engine.Directory)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, rt.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes(rt)),
		Tickets:        handlers.NewTicketsHandler(rt.Engine, rt.HistoryLog),
		Agents:         handlers.NewAgentsHandler(rt.Engine.Directory, rt.Engine.Lifecycle),
		Groups:         handlers.NewGroupsHandler(rt.Engine.Directory, rt.Engine.Lifecycle),
		AuthMiddleware: authMiddleware,
		Metrics:        rt.Metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func probes(rt *bootstrap.Runtime) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{}
	if rt.Postgres != nil {
		deps["postgres"] = rt.Postgres
	}
	if rt.Mongo != nil {
		deps["mongo"] = rt.Mongo
	}
	if rt.Redis != nil {
		deps["redis"] = rt.Redis
	}
	return deps
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
