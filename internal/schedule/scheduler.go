// Package schedule fires dispatches for jobs with recurring cron
// descriptors or one-shot timestamps. Each job holds at most one live
// trigger; rescheduling replaces it atomically.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/metrics"
	"github.com/spiderctl/spiderctl/internal/spider"
)

// Dispatcher is the slice of the dispatch orchestrator the scheduler
// needs: fire one job now, resolving its spec at fire time.
type Dispatcher interface {
	DispatchJob(ctx context.Context, jobID string) (spider.RunLog, error)
}

// trigger is one live registration for a job.
type trigger struct {
	cronID cron.EntryID
	timer  *time.Timer
}

// Scheduler owns the trigger registry. Safe for concurrent use.
type Scheduler struct {
	dispatcher Dispatcher
	jobs       spider.JobStore
	clock      spider.Clock
	logger     *zap.Logger

	cron *cron.Cron

	mu       sync.Mutex
	triggers map[string]trigger

	// fireCtx is the context dispatches run under; it outlives any single
	// request and ends when the scheduler stops.
	fireCtx    context.Context
	cancelFire context.CancelFunc
}

// New constructs a Scheduler. Start must be called before triggers fire.
func New(dispatcher Dispatcher, jobs spider.JobStore, clock spider.Clock, logger *zap.Logger) *Scheduler {
	fireCtx, cancelFire := context.WithCancel(context.Background())
	return &Scheduler{
		dispatcher: dispatcher,
		jobs:       jobs,
		clock:      clock,
		logger:     logger,
		cron:       cron.New(cron.WithSeconds()),
		triggers:   make(map[string]trigger),
		fireCtx:    fireCtx,
		cancelFire: cancelFire,
	}
}

// Start registers triggers for every enabled scheduled job in the store
// and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	enabled := true
	jobs, _, err := s.jobs.ListJobs(ctx, spider.JobFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("load scheduled jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.Schedule(job); err != nil {
			s.logger.Warn("skipping unschedulable job",
				zap.String("job_id", job.ID), zap.String("title", job.Title), zap.Error(err))
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop cancels every trigger and waits for in-flight cron jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, tr := range s.triggers {
		if tr.timer != nil {
			tr.timer.Stop()
		}
		delete(s.triggers, id)
	}
	s.mu.Unlock()
	s.cancelFire()
	<-s.cron.Stop().Done()
}

// Schedule registers the job's trigger, replacing any existing one. A
// disabled or unscheduled job just clears the registration.
func (s *Scheduler) Schedule(job spider.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(job.ID)

	if !job.Enabled {
		return nil
	}
	switch {
	case job.Schedule.Cron != nil:
		return s.addCronLocked(job.ID, job.Schedule.Cron.Expr())
	case job.Schedule.At != nil:
		s.addDateLocked(job.ID, *job.Schedule.At)
		return nil
	}
	return nil
}

// Cancel removes the job's trigger. Unknown jobs are a no-op.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(jobID)
}

// Scheduled reports whether the job currently holds a live trigger.
func (s *Scheduler) Scheduled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[jobID]
	return ok
}

func (s *Scheduler) removeLocked(jobID string) {
	tr, ok := s.triggers[jobID]
	if !ok {
		return
	}
	if tr.timer != nil {
		tr.timer.Stop()
	} else {
		s.cron.Remove(tr.cronID)
	}
	delete(s.triggers, jobID)
}

func (s *Scheduler) addCronLocked(jobID, expr string) error {
	id, err := s.cron.AddFunc(expr, func() {
		s.fire(jobID, "cron")
	})
	if err != nil {
		return fmt.Errorf("cron expression %q: %w", expr, err)
	}
	s.triggers[jobID] = trigger{cronID: id}
	return nil
}

// addDateLocked arms a one-shot trigger. A timestamp already in the past
// fires immediately; the original intent was to run, and a restart in
// between should not silently swallow the run.
func (s *Scheduler) addDateLocked(jobID string, at time.Time) {
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	t := time.AfterFunc(delay, func() {
		s.fire(jobID, "date")
		s.Cancel(jobID)
	})
	s.triggers[jobID] = trigger{timer: t}
}

// fire re-reads the job and dispatches it, resolving the spec at fire
// time so template and parameter edits apply to the next run.
func (s *Scheduler) fire(jobID, kind string) {
	metrics.IncTriggerFiring(kind)
	job, err := s.jobs.GetJob(s.fireCtx, jobID)
	if err != nil {
		s.logger.Error("trigger fired for unloadable job",
			zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if !job.Enabled {
		s.logger.Info("trigger skipped for disabled job", zap.String("job_id", jobID))
		return
	}
	rl, err := s.dispatcher.DispatchJob(s.fireCtx, jobID)
	if err != nil {
		s.logger.Error("scheduled dispatch failed",
			zap.String("job_id", jobID), zap.String("title", job.Title), zap.Error(err))
		return
	}
	s.logger.Info("scheduled dispatch fired",
		zap.String("job_id", jobID), zap.String("run_id", rl.ID),
		zap.String("status", string(rl.Status)))
}
