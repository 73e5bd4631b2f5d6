// Package runlog implements the state machine over persisted run
// records, reconciling stored status against live pool status.
package runlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/metrics"
	"github.com/spiderctl/spiderctl/internal/spider"
)

// PoolController is the slice of the fleet controller the state machine
// drives.
type PoolController interface {
	Status(ctx context.Context, pool string) (spider.PoolStatus, error)
	Launch(ctx context.Context, pool string, count int, force bool) error
	Pause(ctx context.Context, pool string, on bool) error
	Resume(ctx context.Context, pool string) error
	Stop(ctx context.Context, pool string) error
	QueueClear(ctx context.Context, pool string) error
}

// Config bounds the reconcile loops behind operator actions.
type Config struct {
	// PollInterval rate-limits live status re-reads inside an action.
	PollInterval time.Duration
	// PollBudget bounds re-reads before the action reports it is still
	// converging.
	PollBudget int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollBudget <= 0 {
		c.PollBudget = 30
	}
	return c
}

// Machine owns every mutation of a run record after creation.
type Machine struct {
	store  spider.RunLogStore
	pools  PoolController
	clock  spider.Clock
	cfg    Config
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewMachine constructs a Machine.
func NewMachine(store spider.RunLogStore, pools PoolController, clock spider.Clock, cfg Config, logger *zap.Logger) *Machine {
	return &Machine{
		store:  store,
		pools:  pools,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
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

func liveToRunStatus(live spider.PoolStatus) spider.RunStatus {
	switch live {
	case spider.PoolRunning:
		return spider.RunStatusRunning
	case spider.PoolPaused:
		return spider.RunStatusPaused
	case spider.PoolStopped:
		return spider.RunStatusStopped
	case spider.PoolDone:
		return spider.RunStatusDone
	}
	return spider.RunStatusRunning
}

// Reconcile is the authoritative status read path. Terminal records and
// DONE are returned unchanged from the store; otherwise live pool status
// is computed and, if it differs from the stored value, persisted before
// returning. Reaching DONE classifies the run as SUCCESS and stamps its
// end time.
func (m *Machine) Reconcile(ctx context.Context, id string) (spider.RunLog, error) {
	rl, err := m.store.GetRunLog(ctx, id)
	if err != nil {
		return spider.RunLog{}, err
	}
	if rl.Terminal() || rl.Status == spider.RunStatusDone {
		return rl, nil
	}
	live, err := m.pools.Status(ctx, rl.Spec.SpiderID)
	if err != nil {
		return spider.RunLog{}, err
	}
	status := liveToRunStatus(live)
	if status == rl.Status {
		return rl, nil
	}
	update := spider.RunLogUpdate{Status: &status}
	if status == spider.RunStatusDone {
		result := spider.RunResultSuccess
		end := m.clock.Now()
		update.Result = &result
		update.EndTime = &end
		rl.Result = result
		rl.EndTime = &end
	}
	if err := m.store.UpdateRunLog(ctx, id, update); err != nil {
		return spider.RunLog{}, err
	}
	metrics.IncReconciliation(string(status))
	rl.Status = status
	return rl, nil
}

// guard loads a run record and rejects the action when it is already
// terminal. Terminal records are immutable.
func (m *Machine) guard(ctx context.Context, id string) (spider.RunLog, error) {
	rl, err := m.store.GetRunLog(ctx, id)
	if err != nil {
		return spider.RunLog{}, err
	}
	if rl.Terminal() {
		return spider.RunLog{}, spider.NewConflict(spider.ConflictTerminal,
			"run %s is %s/%s and can no longer change", id, rl.Status, rl.Result)
	}
	return rl, nil
}

// Resume drives a paused or stopped run back to running: stopped pools
// are relaunched, the pause signal is cleared, and the freshly observed
// running status is persisted.
func (m *Machine) Resume(ctx context.Context, id string) error {
	rl, err := m.guard(ctx, id)
	if err != nil {
		return err
	}
	pool := rl.Spec.SpiderID
	for i := 0; i < m.cfg.PollBudget; i++ {
		live, err := m.pools.Status(ctx, pool)
		if err != nil {
			return err
		}
		switch live {
		case spider.PoolRunning:
			if i == 0 {
				return spider.NewConflict(spider.ConflictAlreadyInState, "run %s is already running", id)
			}
			return m.persistStatus(ctx, id, spider.RunStatusRunning)
		case spider.PoolDone:
			return spider.NewConflict(spider.ConflictIncompatible, "run %s has finished; nothing to resume", id)
		case spider.PoolStopped:
			if err := m.pools.Launch(ctx, pool, rl.CrawlerCount, false); err != nil {
				return err
			}
		case spider.PoolPaused:
			if err := m.pools.Resume(ctx, pool); err != nil {
				return err
			}
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
	return spider.NewConflict(spider.ConflictConverging, "run %s did not reach running within the retry budget", id)
}

// Pause sets the pause signal once running is observed and persists the
// resulting status. A pool observed stopped is a distinct conflict, not
// a silent success.
func (m *Machine) Pause(ctx context.Context, id string) error {
	rl, err := m.guard(ctx, id)
	if err != nil {
		return err
	}
	pool := rl.Spec.SpiderID
	for i := 0; i < m.cfg.PollBudget; i++ {
		live, err := m.pools.Status(ctx, pool)
		if err != nil {
			return err
		}
		switch live {
		case spider.PoolPaused:
			if i == 0 {
				return spider.NewConflict(spider.ConflictAlreadyInState, "run %s is already paused", id)
			}
			return m.persistStatus(ctx, id, spider.RunStatusPaused)
		case spider.PoolStopped:
			return spider.NewConflict(spider.ConflictIncompatible, "pool %s is stopped; nothing to pause", pool)
		case spider.PoolDone:
			return spider.NewConflict(spider.ConflictIncompatible, "run %s has finished; nothing to pause", id)
		case spider.PoolRunning:
			if err := m.pools.Pause(ctx, pool, true); err != nil {
				return err
			}
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
	return spider.NewConflict(spider.ConflictConverging, "run %s did not reach paused within the retry budget", id)
}

// Stop issues stop commands until the pool is observed stopped, then
// persists STOPPED. The work queues survive, so the run can be resumed.
func (m *Machine) Stop(ctx context.Context, id string) error {
	rl, err := m.guard(ctx, id)
	if err != nil {
		return err
	}
	pool := rl.Spec.SpiderID
	for i := 0; i < m.cfg.PollBudget; i++ {
		live, err := m.pools.Status(ctx, pool)
		if err != nil {
			return err
		}
		switch live {
		case spider.PoolStopped:
			if i == 0 {
				return spider.NewConflict(spider.ConflictAlreadyInState, "run %s is already stopped", id)
			}
			return m.persistStatus(ctx, id, spider.RunStatusStopped)
		case spider.PoolDone:
			return spider.NewConflict(spider.ConflictIncompatible, "run %s has finished; nothing to stop", id)
		case spider.PoolRunning, spider.PoolPaused:
			if err := m.pools.Stop(ctx, pool); err != nil {
				return err
			}
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
	return spider.NewConflict(spider.ConflictConverging, "run %s did not reach stopped within the retry budget", id)
}

// Start relaunches the pool of a stopped run, then reconciles.
func (m *Machine) Start(ctx context.Context, id string) error {
	rl, err := m.guard(ctx, id)
	if err != nil {
		return err
	}
	pool := rl.Spec.SpiderID
	live, err := m.pools.Status(ctx, pool)
	if err != nil {
		return err
	}
	if live == spider.PoolRunning {
		return spider.NewConflict(spider.ConflictAlreadyInState, "run %s is already running", id)
	}
	if live != spider.PoolStopped {
		return spider.NewConflict(spider.ConflictIncompatible, "pool %s is %s; start requires a stopped pool", pool, live)
	}
	if err := m.pools.Launch(ctx, pool, rl.CrawlerCount, false); err != nil {
		return err
	}
	_, err = m.Reconcile(ctx, id)
	return err
}

// Cancel stops the pool, clears its work queues, and persists CANCELED.
// Stop and clear failures are logged and do not prevent the record from
// reaching its terminal state: cancellation is irreversible by contract.
func (m *Machine) Cancel(ctx context.Context, id string) error {
	rl, err := m.guard(ctx, id)
	if err != nil {
		return err
	}
	pool := rl.Spec.SpiderID
	if err := m.pools.Stop(ctx, pool); err != nil {
		m.logger.Warn("stop during cancel failed", zap.String("run_id", id), zap.Error(err))
	}
	if err := m.pools.QueueClear(ctx, pool); err != nil {
		m.logger.Warn("queue clear during cancel failed", zap.String("run_id", id), zap.Error(err))
	}
	status := spider.RunStatusCanceled
	end := m.clock.Now()
	return m.store.UpdateRunLog(ctx, id, spider.RunLogUpdate{Status: &status, EndTime: &end})
}

func (m *Machine) persistStatus(ctx context.Context, id string, status spider.RunStatus) error {
	return m.store.UpdateRunLog(ctx, id, spider.RunLogUpdate{Status: &status})
}
