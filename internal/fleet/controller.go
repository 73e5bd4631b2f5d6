// Package fleet derives live pool status and drives pool lifecycle
// through the external executor and the signal store.
package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// Config tunes probe windows and polling behavior.
type Config struct {
	// LogWindowPerUnit sizes the idle probe's log window proportionally
	// to the pool's unit count.
	LogWindowPerUnit int
	// IdlePollInterval is the coarse interval between idle checks while
	// draining a pool for scale-down.
	IdlePollInterval time.Duration
	// IdlePollBudget bounds the number of idle checks during scale-down.
	IdlePollBudget int
	// QueueClearPasses repeats queue deletion to narrow the window for a
	// racing producer to repopulate a queue. Mitigation, not a guarantee.
	QueueClearPasses int
	// QueueClearPause separates queue clear passes.
	QueueClearPause time.Duration
}

func (c Config) withDefaults() Config {
	if c.LogWindowPerUnit <= 0 {
		c.LogWindowPerUnit = 12
	}
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = 10 * time.Second
	}
	if c.IdlePollBudget <= 0 {
		c.IdlePollBudget = 60
	}
	if c.QueueClearPasses <= 0 {
		c.QueueClearPasses = 3
	}
	if c.QueueClearPause <= 0 {
		c.QueueClearPause = time.Second
	}
	return c
}

// Controller orchestrates one or more named pools. It holds no pool
// state of its own: status is always computed fresh from the signal
// store and the executor.
type Controller struct {
	signals spider.SignalStore
	exec    spider.Executor
	cfg     Config
	logger  *zap.Logger

	// sleep is replaced in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController constructs a Controller.
func NewController(signals spider.SignalStore, exec spider.Executor, cfg Config, logger *zap.Logger) *Controller {
	return &Controller{
		signals: signals,
		exec:    exec,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status derives the live status of a pool. Precedence is fixed: no live
// units wins over everything, then the pause flag, then queue depth,
// then the idle probe; a live pool that is neither queued nor
// idle-confirmed counts as running.
func (c *Controller) Status(ctx context.Context, pool string) (spider.PoolStatus, error) {
	units, err := c.exec.PoolUnits(ctx, pool)
	if err != nil {
		return "", err
	}
	if len(units) == 0 {
		return spider.PoolStopped, nil
	}
	paused, err := c.signals.IsPaused(ctx, pool)
	if err != nil {
		return "", err
	}
	if paused {
		return spider.PoolPaused, nil
	}
	queues, err := c.signals.Queues(ctx, pool)
	if err != nil {
		return "", err
	}
	for _, q := range queues {
		depth, err := c.signals.QueueDepth(ctx, q)
		if err != nil {
			return "", err
		}
		if depth > 0 {
			return spider.PoolRunning, nil
		}
	}
	if c.poolIdle(ctx, pool, len(units)) {
		return spider.PoolDone, nil
	}
	return spider.PoolRunning, nil
}

// Launch scales a pool up to count units. Shrinking a live, non-idle
// pool is rejected with a capacity conflict unless forced, because the
// executor drops in-flight data when it kills units.
func (c *Controller) Launch(ctx context.Context, pool string, count int, force bool) error {
	units, err := c.exec.PoolUnits(ctx, pool)
	if err != nil {
		return err
	}
	if !force && len(units) >= count && !c.poolIdle(ctx, pool, len(units)) {
		return spider.NewConflict(spider.ConflictCapacity,
			"pool %s already has %d live units; pause and drain before shrinking", pool, len(units))
	}
	return c.exec.Scale(ctx, pool, count)
}

// Scale converges a pool to count units. Growth delegates to Launch;
// shrinking pauses the pool, waits for it to drain, then force-launches
// the new count and unpauses. The drain wait is bounded by the
// configured budget and cancellable through ctx.
func (c *Controller) Scale(ctx context.Context, pool string, count int) error {
	units, err := c.exec.PoolUnits(ctx, pool)
	if err != nil {
		return err
	}
	switch {
	case len(units) < count:
		return c.Launch(ctx, pool, count, false)
	case len(units) == count:
		return nil
	}

	if err := c.Pause(ctx, pool, true); err != nil {
		return err
	}
	drained := false
	for i := 0; i < c.cfg.IdlePollBudget; i++ {
		if c.poolIdle(ctx, pool, len(units)) {
			drained = true
			break
		}
		if err := c.sleep(ctx, c.cfg.IdlePollInterval); err != nil {
			return err
		}
	}
	if !drained {
		return spider.NewConflict(spider.ConflictConverging,
			"pool %s still draining after %d idle checks", pool, c.cfg.IdlePollBudget)
	}
	if err := c.Launch(ctx, pool, count, true); err != nil {
		return err
	}
	return c.Pause(ctx, pool, false)
}

// Pause toggles the pool's pause signal.
func (c *Controller) Pause(ctx context.Context, pool string, on bool) error {
	if on {
		return c.signals.SetPause(ctx, pool)
	}
	return c.signals.ClearPause(ctx, pool)
}

// Resume clears the pool's pause signal.
func (c *Controller) Resume(ctx context.Context, pool string) error {
	return c.Pause(ctx, pool, false)
}

// Stop tears down every unit in the pool.
func (c *Controller) Stop(ctx context.Context, pool string) error {
	return c.exec.Stop(ctx, pool)
}

// QueueClear deletes every work queue belonging to the pool, in repeated
// passes with a pause between them.
func (c *Controller) QueueClear(ctx context.Context, pool string) error {
	for pass := 0; pass < c.cfg.QueueClearPasses; pass++ {
		if pass > 0 {
			if err := c.sleep(ctx, c.cfg.QueueClearPause); err != nil {
				return err
			}
		}
		queues, err := c.signals.Queues(ctx, pool)
		if err != nil {
			return err
		}
		if err := c.signals.DeleteQueues(ctx, queues...); err != nil {
			return err
		}
	}
	return nil
}

// Units returns the pool's live units with per-unit status resolved from
// the signal store.
func (c *Controller) Units(ctx context.Context, pool string) ([]spider.UnitInfo, error) {
	units, err := c.exec.PoolUnits(ctx, pool)
	if err != nil {
		return nil, err
	}
	for i := range units {
		if units[i].Error != "" {
			units[i].Status = spider.UnitError
			continue
		}
		status, err := c.UnitStatus(ctx, pool, units[i].Index)
		if err != nil {
			return nil, err
		}
		units[i].Status = status
	}
	return units, nil
}

// PoolInfo enumerates every pool the executor knows about together with
// its derived status and units. Listing only; not on the reconciliation
// hot path.
func (c *Controller) PoolInfo(ctx context.Context) ([]spider.PoolInfo, error) {
	pools, err := c.exec.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]spider.PoolInfo, 0, len(pools))
	for _, pool := range pools {
		status, err := c.Status(ctx, pool)
		if err != nil {
			return nil, err
		}
		units, err := c.Units(ctx, pool)
		if err != nil {
			return nil, err
		}
		infos = append(infos, spider.PoolInfo{Name: pool, Status: status, Crawlers: units})
	}
	return infos, nil
}
