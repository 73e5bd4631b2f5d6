package spider

import (
	"context"
	"time"

	"github.com/spiderctl/spiderctl/internal/spec"
)

// JobStore persists job definitions.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	GetJobByTitle(ctx context.Context, title string) (Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error)
	UpdateJob(ctx context.Context, id string, update JobUpdate) error
	DeleteJob(ctx context.Context, id string) error
}

// ServiceStore persists service definitions.
type ServiceStore interface {
	CreateService(ctx context.Context, svc Service) error
	GetService(ctx context.Context, id string) (Service, error)
	GetServiceByTitle(ctx context.Context, title string) (Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]Service, int, error)
	UpdateService(ctx context.Context, id string, update ServiceUpdate) error
	DeleteService(ctx context.Context, id string) error
}

// RunLogStore persists run records. There is deliberately no delete:
// terminal records are audit history.
type RunLogStore interface {
	CreateRunLog(ctx context.Context, rl RunLog) error
	GetRunLog(ctx context.Context, id string) (RunLog, error)
	ListRunLogs(ctx context.Context, filter RunLogFilter) ([]RunLog, int, error)
	UpdateRunLog(ctx context.Context, id string, update RunLogUpdate) error
}

// JobFilter narrows and paginates job listings.
type JobFilter struct {
	SearchKey string
	Category  JobCategory
	Enabled   *bool
	Page      int
	PageSize  int
}

// ServiceFilter narrows and paginates service listings.
type ServiceFilter struct {
	SearchKey string
	Enabled   *bool
	Page      int
	PageSize  int
}

// RunLogFilter narrows and paginates run log listings.
type RunLogFilter struct {
	SearchKey string
	Statuses  []RunStatus
	Results   []RunResult
	StartTime *time.Time
	EndTime   *time.Time
	JobID     string
	ServiceID string
	Page      int
	PageSize  int
}

// JobUpdate is an atomic partial update; nil fields are untouched.
type JobUpdate struct {
	Title         *string
	Content       *JobContent
	Schedule      *JobSchedule
	CrawlerCount  *int
	Enabled       *bool
	LastStartTime *time.Time
	LastDoneTime  *time.Time
}

// ServiceUpdate is an atomic partial update; nil fields are untouched.
type ServiceUpdate struct {
	Title         *string
	Spec          *spec.CrawlSpec
	Params        *[]spec.Param
	CrawlerCount  *int
	Enabled       *bool
	LastStartTime *time.Time
	LastDoneTime  *time.Time
}

// RunLogUpdate is an atomic partial update; nil fields are untouched.
type RunLogUpdate struct {
	Status       *RunStatus
	Result       *RunResult
	ErrorMessage *string
	EndTime      *time.Time
}

// SignalStore is the external key/value store holding per-pool pause
// flags, per-unit status markers, and per-pool work queues. It is the
// single source of truth over any cached run log field.
type SignalStore interface {
	SetPause(ctx context.Context, pool string) error
	ClearPause(ctx context.Context, pool string) error
	IsPaused(ctx context.Context, pool string) (bool, error)

	// UnitMarker returns the raw status marker for one unit, or "" when
	// absent.
	UnitMarker(ctx context.Context, pool, index string) (string, error)

	Queues(ctx context.Context, pool string) ([]string, error)
	QueueDepth(ctx context.Context, queue string) (int64, error)
	DeleteQueues(ctx context.Context, queues ...string) error
}

// Executor is the external control plane for pools and units. Every call
// is a blocking external-process invocation bounded by a timeout.
type Executor interface {
	// ListPools enumerates all pool names known to the executor.
	ListPools(ctx context.Context) ([]string, error)

	// PoolUnits returns the live units of one pool; an empty slice means
	// the pool is not running.
	PoolUnits(ctx context.Context, pool string) ([]UnitInfo, error)

	// Scale sets the desired unit count for a pool.
	Scale(ctx context.Context, pool string, count int) error

	// Stop tears down the whole pool.
	Stop(ctx context.Context, pool string) error

	// TailLogs returns the most recent lines of the pool's aggregated
	// unit logs.
	TailLogs(ctx context.Context, pool string, lines int) (string, error)

	// SuspendUnit and ResumeUnit issue targeted per-unit commands,
	// returning the captured command output.
	SuspendUnit(ctx context.Context, pool, index string) (string, error)
	ResumeUnit(ctx context.Context, pool, index string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
