package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/lock"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

// Runtime holds every long-lived collaborator of a running process.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher

	Repo    repository.Repository
	History repository.TicketHistoryRepository
	Locker  lock.Locker

	Postgres *persistence.Postgres
	Mongo    *persistence.Mongo
	Redis    *persistence.Redis

	Engine        *service.Engine
	HistoryLog    *service.HistoryService
	Notifications *service.NotificationService
	Auth          *service.AuthService
}

// New opens the configured store and lock backend and wires the engine on top.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		Dispatcher: events.NewInMemoryDispatcher(logger),
	}

	base, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Repo = repository.WithRetry(base, repository.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.Initial(),
		MaxInterval:     cfg.Retry.Max(),
	}, logger, rt.Metrics.RecordRetry)

	switch cfg.Lock.Driver {
	case config.LockRedis:
		rt.Redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.Locker = lock.NewRedis(rt.Redis.Client, cfg.Lock.TTL(),
			lock.WithRenewInterval(cfg.Lock.RenewInterval()),
			lock.WithLogger(logger))
	default:
		rt.Locker = lock.NewLocal()
	}

	rt.Engine = service.NewEngine(service.Dependencies{
		Repo:       rt.Repo,
		Locker:     rt.Locker,
		Dispatcher: rt.Dispatcher,
		Metrics:    rt.Metrics,
		Logger:     logger,
	})
	rt.HistoryLog = service.NewHistoryService(rt.History, rt.Engine.Lifecycle, logger)
	rt.Notifications = service.NewNotificationService(logger, cfg.Notification)
	worker.StartEventWorkers(rt.Dispatcher, logger, map[string]worker.Subscriber{
		"history":       rt.HistoryLog,
		"notifications": rt.Notifications,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
	rt.Auth = service.NewAuthService(rt.Engine.Directory, tokens)

	logger.Info("runtime ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("lock", cfg.Lock.Driver))
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (repository.Repository, error) {
	cfg := rt.Config
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.Postgres = pg
		if pg.PoolHandle() == nil {
			return nil, errors.New("STORE_DRIVER=postgres requires POSTGRES_DSN")
		}
		rt.History = repository.NewTicketHistoryRepository(pg.PoolHandle())
		return repository.NewPostgresRepository(pg.PoolHandle()), nil

	case config.StoreMongo:
		m, err := persistence.NewMongo(ctx, cfg.Mongo, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		rt.Mongo = m
		if m.Database() == nil {
			return nil, errors.New("STORE_DRIVER=mongo requires MONGO_URI")
		}
		repo := repository.NewMongoRepository(m.Database())
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		rt.History = repository.NewMongoTicketHistoryRepository(m.Database())
		return repo, nil
	}

	rt.Logger.Warn("using in-memory store; data is lost on restart")
	rt.History = repository.NewMemoryTicketHistory()
	return repository.NewMemoryRepository(), nil
}

// Close releases backend connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	rt.Redis.Close()
	rt.Mongo.Close()
	rt.Postgres.Close()
}
