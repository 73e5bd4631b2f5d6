// Package spider defines core types shared across subsystems.
package spider

import (
	"time"

	"github.com/spiderctl/spiderctl/internal/spec"
)

// RunStatus represents the lifecycle state of one dispatch attempt.
type RunStatus string

// Run status values persisted in the run log store.
const (
	RunStatusInit     RunStatus = "INIT"
	RunStatusSent     RunStatus = "SENT"
	RunStatusReady    RunStatus = "READY"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusPaused   RunStatus = "PAUSED"
	RunStatusStopped  RunStatus = "STOPPED"
	RunStatusCanceled RunStatus = "CANCELED"
	RunStatusDone     RunStatus = "DONE"
)

// RunResult classifies a finished run.
type RunResult string

// Run result values.
const (
	RunResultUnknown RunResult = "UNKNOWN"
	RunResultSuccess RunResult = "SUCCESS"
	RunResultFailure RunResult = "FAILURE"
)

// PoolStatus is the live status derived for a named pool.
type PoolStatus string

// Pool status values, never persisted as primary truth.
const (
	PoolRunning PoolStatus = "RUNNING"
	PoolPaused  PoolStatus = "PAUSED"
	PoolStopped PoolStatus = "STOPPED"
	PoolDone    PoolStatus = "DONE"
)

// UnitStatus is the live status of one crawler unit within a pool.
type UnitStatus string

// Unit status values.
const (
	UnitReady     UnitStatus = "READY"
	UnitRunning   UnitStatus = "RUNNING"
	UnitSuspended UnitStatus = "SUSPENDED"
	UnitError     UnitStatus = "ERROR"
)

// JobCategory distinguishes jobs carrying an inline spec from jobs
// invoking a stored service.
type JobCategory string

// Job categories.
const (
	JobCategoryTask    JobCategory = "TASK"
	JobCategoryService JobCategory = "SERVICE"
)

// RunCategory records which kind of source produced a run log.
type RunCategory string

// Run categories.
const (
	RunCategoryJob     RunCategory = "JOB"
	RunCategoryService RunCategory = "SERVICE"
)

// ServiceInvocation references a stored service plus the parameter values
// to substitute into its spec template at dispatch time.
type ServiceInvocation struct {
	ServiceID string            `json:"service_id"`
	Params    map[string]string `json:"params,omitempty"`
}

// JobContent is a two-variant union: an inline crawl spec (TASK) or a
// service invocation (SERVICE). Exactly one side is set; NewTaskContent
// and NewServiceContent are the only constructors.
type JobContent struct {
	Spec        *spec.CrawlSpec    `json:"spec,omitempty"`
	ServiceInst *ServiceInvocation `json:"service_inst,omitempty"`
}

// NewTaskContent builds content around an inline spec.
func NewTaskContent(s spec.CrawlSpec) JobContent {
	return JobContent{Spec: &s}
}

// NewServiceContent builds content referencing a stored service.
func NewServiceContent(serviceID string, params map[string]string) JobContent {
	return JobContent{ServiceInst: &ServiceInvocation{ServiceID: serviceID, Params: params}}
}

// Validate rejects content with both or neither variant present.
func (c JobContent) Validate() error {
	if c.Spec != nil && c.ServiceInst != nil {
		return &ValidationError{Field: "content", Msg: "spec and service_inst are mutually exclusive"}
	}
	if c.Spec == nil && c.ServiceInst == nil {
		return ErrMissingSource
	}
	return nil
}

// CronFields is the six-field cron descriptor accepted for recurring jobs.
type CronFields struct {
	Second     string `json:"second"`
	Minute     string `json:"minute"`
	Hour       string `json:"hour"`
	DayOfMonth string `json:"day_of_month"`
	Month      string `json:"month"`
	DayOfWeek  string `json:"day_of_week"`
}

// Expr renders the descriptor as a single seconds-aware cron expression.
func (c CronFields) Expr() string {
	return c.Second + " " + c.Minute + " " + c.Hour + " " + c.DayOfMonth + " " + c.Month + " " + c.DayOfWeek
}

// JobSchedule holds at most one of a one-shot timestamp or a cron
// descriptor. Setting one side clears the other; both empty means the
// job is unscheduled.
type JobSchedule struct {
	At   *time.Time  `json:"at,omitempty"`
	Cron *CronFields `json:"cron,omitempty"`
}

// SetAt activates a one-shot schedule, clearing any cron descriptor.
func (s *JobSchedule) SetAt(t time.Time) {
	s.At = &t
	s.Cron = nil
}

// SetCron activates a recurring schedule, clearing any one-shot timestamp.
func (s *JobSchedule) SetCron(c CronFields) {
	s.Cron = &c
	s.At = nil
}

// Clear removes any active schedule.
func (s *JobSchedule) Clear() {
	s.At = nil
	s.Cron = nil
}

// Validate rejects a schedule with both variants present.
func (s JobSchedule) Validate() error {
	if s.At != nil && s.Cron != nil {
		return &ValidationError{Field: "schedule", Msg: "at and cron are mutually exclusive"}
	}
	return nil
}

// Job is a stored dispatch intent: what to crawl and when.
type Job struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Category      JobCategory `json:"category"`
	Content       JobContent  `json:"content"`
	Schedule      JobSchedule `json:"schedule"`
	CrawlerCount  int         `json:"crawler_count"`
	Enabled       bool        `json:"enabled"`
	CreateTime    time.Time   `json:"create_time"`
	LastStartTime *time.Time  `json:"last_start_time,omitempty"`
	LastDoneTime  *time.Time  `json:"last_done_time,omitempty"`
}

// Validate enforces the construction invariants on a job record.
func (j Job) Validate() error {
	if j.Title == "" {
		return &ValidationError{Field: "title", Msg: "title is required"}
	}
	if j.Category != JobCategoryTask && j.Category != JobCategoryService {
		return &ValidationError{Field: "category", Msg: "category must be TASK or SERVICE"}
	}
	if err := j.Content.Validate(); err != nil {
		return err
	}
	if j.Category == JobCategoryTask && j.Content.Spec == nil {
		return &ValidationError{Field: "content", Msg: "TASK jobs require an inline spec"}
	}
	if j.Category == JobCategoryService && j.Content.ServiceInst == nil {
		return &ValidationError{Field: "content", Msg: "SERVICE jobs require a service reference"}
	}
	if err := j.Schedule.Validate(); err != nil {
		return err
	}
	if j.CrawlerCount < 1 || j.CrawlerCount > 20 {
		return &ValidationError{Field: "crawler_count", Msg: "crawler_count must be between 1 and 20"}
	}
	return nil
}

// Service is a reusable crawl spec template with declared parameters.
type Service struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Spec          spec.CrawlSpec `json:"spec"`
	Params        []spec.Param   `json:"params,omitempty"`
	CrawlerCount  int            `json:"crawler_count"`
	Enabled       bool           `json:"enabled"`
	CreateTime    time.Time      `json:"create_time"`
	LastStartTime *time.Time     `json:"last_start_time,omitempty"`
	LastDoneTime  *time.Time     `json:"last_done_time,omitempty"`
}

// Validate enforces the construction invariants on a service record.
func (s Service) Validate() error {
	if s.Title == "" {
		return &ValidationError{Field: "title", Msg: "title is required"}
	}
	if s.CrawlerCount < 1 || s.CrawlerCount > 20 {
		return &ValidationError{Field: "crawler_count", Msg: "crawler_count must be between 1 and 20"}
	}
	return nil
}

// RunLog is the persisted record of a single dispatch attempt. Created
// once by the dispatch orchestrator; every later mutation goes through
// the run state machine. Never deleted.
type RunLog struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Category     RunCategory    `json:"category"`
	JobID        string         `json:"job_id,omitempty"`
	ServiceID    string         `json:"service_id,omitempty"`
	Spec         spec.CrawlSpec `json:"spec"`
	CrawlerCount int            `json:"crawler_count"`
	InvokeTime   time.Time      `json:"invoke_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Status       RunStatus      `json:"status"`
	Result       RunResult      `json:"result"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Terminal reports whether the record may no longer be mutated by
// operator actions. CANCELED is terminal by status; SUCCESS and FAILURE
// are terminal by result regardless of the cached status.
func (r RunLog) Terminal() bool {
	return r.Status == RunStatusCanceled ||
		r.Result == RunResultSuccess ||
		r.Result == RunResultFailure
}

// UnitInfo describes one live crawler unit as reported by the fleet
// executor's status table.
type UnitInfo struct {
	ReplicaID    string     `json:"replica_id"`
	Name         string     `json:"name"`
	Image        string     `json:"image"`
	Node         string     `json:"node"`
	DesiredState string     `json:"desired_state"`
	CurrentState string     `json:"current_state"`
	Error        string     `json:"error"`
	Index        string     `json:"index"`
	Status       UnitStatus `json:"status"`
}

// PoolInfo pairs a pool name with its derived status and live units.
type PoolInfo struct {
	Name     string     `json:"spider_name"`
	Status   PoolStatus `json:"status"`
	Crawlers []UnitInfo `json:"crawlers"`
}
