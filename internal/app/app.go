// Package app initializes and holds the long-lived services, acting as
// a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/api"
	"github.com/spiderctl/spiderctl/internal/clock/system"
	"github.com/spiderctl/spiderctl/internal/config"
	"github.com/spiderctl/spiderctl/internal/dispatch"
	"github.com/spiderctl/spiderctl/internal/executor"
	"github.com/spiderctl/spiderctl/internal/fleet"
	"github.com/spiderctl/spiderctl/internal/id/uuid"
	"github.com/spiderctl/spiderctl/internal/runlog"
	"github.com/spiderctl/spiderctl/internal/schedule"
	"github.com/spiderctl/spiderctl/internal/signal"
	"github.com/spiderctl/spiderctl/internal/spider"
	"github.com/spiderctl/spiderctl/internal/storage/memory"
	"github.com/spiderctl/spiderctl/internal/storage/postgres"
)

// App owns every shared service: stores, the signal store, the fleet
// controller, the run state machine, the dispatcher, the scheduler, and
// the HTTP server. Built once at startup, closed once at shutdown.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool    *pgxpool.Pool
	signals *signal.RedisStore

	jobs     spider.JobStore
	services spider.ServiceStore
	runs     spider.RunLogStore

	Fleet      *fleet.Controller
	Machine    *runlog.Machine
	Dispatcher *dispatch.Orchestrator
	Scheduler  *schedule.Scheduler
	Server     *api.Server
}

// New wires the full service graph from configuration. It fails fast:
// any unreachable dependency aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	clk := system.New()
	idGen := uuid.New()

	switch cfg.Storage.Driver {
	case "postgres":
		logger.Info("connecting to postgres")
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.pool = pool
		a.jobs = postgres.NewJobStore(pool)
		a.services = postgres.NewServiceStore(pool)
		a.runs = postgres.NewRunLogStore(pool)
	case "memory":
		logger.Info("using in-memory stores; records do not survive restarts")
		a.jobs = memory.NewJobStore()
		a.services = memory.NewServiceStore()
		a.runs = memory.NewRunLogStore()
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	logger.Info("connecting to redis", zap.String("addr", cfg.Redis.Addr))
	signals, err := signal.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.signals = signals

	exec := executor.New(executor.Config{
		Command:       cfg.Executor.Command,
		StatusTimeout: time.Duration(cfg.Executor.StatusTimeoutSeconds) * time.Second,
		LaunchTimeout: time.Duration(cfg.Executor.LaunchTimeoutSeconds) * time.Second,
		LogTimeout:    time.Duration(cfg.Executor.LogTimeoutSeconds) * time.Second,
	}, logger.Named("executor"))

	a.Fleet = fleet.NewController(signals, exec, fleet.Config{
		LogWindowPerUnit: cfg.Fleet.LogWindowPerUnit,
		IdlePollInterval: time.Duration(cfg.Fleet.IdlePollIntervalSeconds) * time.Second,
		IdlePollBudget:   cfg.Fleet.IdlePollBudget,
		QueueClearPasses: cfg.Fleet.QueueClearPasses,
	}, logger.Named("fleet"))

	a.Machine = runlog.NewMachine(a.runs, a.Fleet, clk, runlog.Config{
		PollInterval: time.Duration(cfg.Runs.PollIntervalSeconds) * time.Second,
		PollBudget:   cfg.Runs.PollBudget,
	}, logger.Named("runlog"))

	a.Dispatcher = dispatch.New(a.jobs, a.services, a.runs, dispatch.Config{
		IngestURL: cfg.Ingest.BaseURL,
		Timeout:   cfg.IngestTimeout(),
	}, clk, idGen, logger.Named("dispatch"))

	a.Scheduler = schedule.New(a.Dispatcher, a.jobs, clk, logger.Named("schedule"))

	a.Server = api.NewServer(
		a.jobs, a.services, a.runs,
		a.Dispatcher, a.Machine, a.Fleet, a.Scheduler,
		idGen, clk, cfg, logger.Named("api"),
	)

	return a, nil
}

// Start registers persisted triggers and begins firing them.
func (a *App) Start(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Handler exposes the HTTP surface for the outer http.Server.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// Close shuts services down in reverse dependency order. Safe to call
// on a partially constructed App.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.signals != nil {
		if err := a.signals.Close(); err != nil {
			a.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		// Syncing stderr on shutdown commonly fails; nothing to do.
		_ = err
	}
}
