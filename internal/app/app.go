// Package app assembles the store, locks, schedule, engine and service from
// configuration. Both binaries build through it.
package app

import (
	"context"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/cache"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/config"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/dispatch"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/lock"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/queue"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/reconcile"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/scheduler"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/service"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage/memory"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage/postgres"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage/sqlite"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/webhook"
)

type App struct {
	Store     storage.Store
	Service   *service.JobService
	Scheduler *scheduler.Scheduler
	Schedule  queue.Schedule

	logger  *zap.Logger
	rdb     *r.Client
	leader  *scheduler.PGLeader
	closers []func() error
}

// New wires every component for cfg. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if cfg.RedisAddr != "" {
		a.rdb = r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "redis: ping")
		}
		a.closers = append(a.closers, a.rdb.Close)
	}

	var locks lock.Locker = lock.NewLocal()
	if cfg.LockDriver == config.LockRedis {
		locks = lock.NewRedis(a.rdb, cfg.LockTTL, lock.WithLogger(logger.Named("lock")))
	}

	// the schedule is shared through redis when there is one so that the API
	// and a separate scheduler process see the same entries
	if a.rdb != nil {
		a.Schedule = queue.New(a.rdb)
	} else {
		a.Schedule = queue.NewMemory()
	}

	c := cache.New(cfg.CacheSize)
	client := webhook.New(
		webhook.WithTimeout(cfg.StatusTimeout),
		webhook.WithLogger(logger.Named("webhook")),
	)
	engine := reconcile.New(store, store, client,
		reconcile.WithLocker(locks),
		reconcile.WithCache(c),
		reconcile.WithLogger(logger.Named("reconcile")),
	)

	a.Service = service.NewJobService(service.Deps{
		Store:      store,
		Gateway:    dispatch.NewGateway(store, client, logger.Named("dispatch")),
		Reconciler: engine,
		Schedule:   a.Schedule,
		Locks:      locks,
		Cache:      c,
		Poster:     client,
		FirstPoll:  cfg.PollInterval,
		Logger:     logger.Named("service"),
	})

	opts := []scheduler.Option{
		scheduler.WithInterval(cfg.PollInterval),
		scheduler.WithBatch(cfg.PollBatch),
		scheduler.WithConcurrency(cfg.PollConcurrency),
		scheduler.WithSweep(store, scheduler.DefaultSweepEvery),
		scheduler.WithLogger(logger.Named("scheduler")),
	}
	if pg, ok := store.(*postgres.Store); ok {
		a.leader = scheduler.NewPGLeader(pg.Pool(), scheduler.AdvisoryLockKey)
		opts = append(opts, scheduler.WithLeader(a.leader))
	}
	// the service reconciles through its own entry point so that stopped
	// jobs leave the schedule and cache the same way UI polls do
	a.Scheduler = scheduler.New(a.Schedule, a.Service, opts...)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.StoreMemory:
		return memory.New(), nil
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Close releases leadership and closes connections in reverse order.
func (a *App) Close() {
	if a.leader != nil {
		if err := a.leader.Release(context.Background()); err != nil {
			a.logger.Warn("leader release failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}
