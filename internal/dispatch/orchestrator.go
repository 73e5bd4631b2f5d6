// Package dispatch resolves specs and submits them to the crawl
// ingestion endpoint, creating the run record that tracks each attempt.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/metrics"
	"github.com/spiderctl/spiderctl/internal/spec"
	"github.com/spiderctl/spiderctl/internal/spider"
)

// Config points the orchestrator at the ingestion endpoint.
type Config struct {
	// IngestURL is the base URL of the crawl ingestion service.
	IngestURL string
	// Timeout bounds a single submission.
	Timeout time.Duration
}

// Orchestrator creates run records and submits resolved specs. It is
// the only component that creates run logs; all later mutations belong
// to the run state machine.
type Orchestrator struct {
	jobs     spider.JobStore
	services spider.ServiceStore
	runs     spider.RunLogStore
	client   *http.Client
	cfg      Config
	clock    spider.Clock
	idGen    spider.IDGenerator
	logger   *zap.Logger
}

// New constructs an Orchestrator.
func New(
	jobs spider.JobStore,
	services spider.ServiceStore,
	runs spider.RunLogStore,
	cfg Config,
	clock spider.Clock,
	idGen spider.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Orchestrator{
		jobs:     jobs,
		services: services,
		runs:     runs,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		clock:    clock,
		idGen:    idGen,
		logger:   logger,
	}
}

// ResolveJobSpec merges a job's stored configuration into one validated
// crawl spec. TASK jobs return their inline spec verbatim (re-validated);
// SERVICE jobs resolve the referenced service's template with the job's
// parameter map.
func (o *Orchestrator) ResolveJobSpec(ctx context.Context, job spider.Job) (spec.CrawlSpec, error) {
	if err := job.Content.Validate(); err != nil {
		return spec.CrawlSpec{}, err
	}
	if job.Content.Spec != nil {
		return spec.ResolveInline(*job.Content.Spec)
	}
	inst := job.Content.ServiceInst
	svc, err := o.services.GetService(ctx, inst.ServiceID)
	if err != nil {
		return spec.CrawlSpec{}, fmt.Errorf("load service %s: %w", inst.ServiceID, err)
	}
	return spec.ResolveTemplate(svc.Spec, svc.Params, inst.Params)
}

// DispatchJob performs immediate dispatch for a job: resolve, create the
// run record, submit. Validation failures propagate before any record is
// created; submission failures are captured into the record itself.
func (o *Orchestrator) DispatchJob(ctx context.Context, jobID string) (spider.RunLog, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return spider.RunLog{}, err
	}
	resolved, err := o.ResolveJobSpec(ctx, job)
	if err != nil {
		return spider.RunLog{}, err
	}
	rl, err := o.createRun(ctx, spider.RunLog{
		Title:        job.Title,
		Category:     spider.RunCategoryJob,
		JobID:        job.ID,
		Spec:         resolved,
		CrawlerCount: job.CrawlerCount,
	})
	if err != nil {
		return spider.RunLog{}, err
	}
	now := o.clock.Now()
	if err := o.jobs.UpdateJob(ctx, job.ID, spider.JobUpdate{LastStartTime: &now}); err != nil {
		o.logger.Warn("record job start time failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	return o.submit(ctx, rl)
}

// DispatchService performs immediate dispatch by direct service
// invocation, outside any job.
func (o *Orchestrator) DispatchService(ctx context.Context, serviceID string, params map[string]string) (spider.RunLog, error) {
	svc, err := o.services.GetService(ctx, serviceID)
	if err != nil {
		return spider.RunLog{}, err
	}
	resolved, err := spec.ResolveTemplate(svc.Spec, svc.Params, params)
	if err != nil {
		return spider.RunLog{}, err
	}
	rl, err := o.createRun(ctx, spider.RunLog{
		Title:        svc.Title,
		Category:     spider.RunCategoryService,
		ServiceID:    svc.ID,
		Spec:         resolved,
		CrawlerCount: svc.CrawlerCount,
	})
	if err != nil {
		return spider.RunLog{}, err
	}
	now := o.clock.Now()
	if err := o.services.UpdateService(ctx, svc.ID, spider.ServiceUpdate{LastStartTime: &now}); err != nil {
		o.logger.Warn("record service start time failed", zap.String("service_id", svc.ID), zap.Error(err))
	}
	return o.submit(ctx, rl)
}

func (o *Orchestrator) createRun(ctx context.Context, rl spider.RunLog) (spider.RunLog, error) {
	id, err := o.idGen.NewID()
	if err != nil {
		return spider.RunLog{}, fmt.Errorf("generate run id: %w", err)
	}
	rl.ID = id
	rl.InvokeTime = o.clock.Now()
	rl.Status = spider.RunStatusInit
	rl.Result = spider.RunResultUnknown
	if err := o.runs.CreateRunLog(ctx, rl); err != nil {
		return spider.RunLog{}, fmt.Errorf("create run log: %w", err)
	}
	return rl, nil
}

// feedResponse is the ingestion endpoint's acknowledgement.
type feedResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// submit POSTs the resolved spec to the ingestion endpoint and advances
// the record. Unreachable endpoint, non-2xx, and acknowledged failure
// all land in the record as SENT/FAILURE with the end time stamped; the
// caller sees no error because dispatch runs asynchronously from any
// single request lifetime.
func (o *Orchestrator) submit(ctx context.Context, rl spider.RunLog) (spider.RunLog, error) {
	failMsg := ""
	body, err := json.Marshal(rl.Spec)
	if err != nil {
		failMsg = fmt.Sprintf("encode spec: %v", err)
	} else {
		failMsg = o.postFeed(ctx, body)
	}

	if failMsg != "" {
		metrics.IncDispatch("failure")
		status := spider.RunStatusSent
		result := spider.RunResultFailure
		end := o.clock.Now()
		update := spider.RunLogUpdate{
			Status:       &status,
			Result:       &result,
			ErrorMessage: &failMsg,
			EndTime:      &end,
		}
		if err := o.runs.UpdateRunLog(ctx, rl.ID, update); err != nil {
			return spider.RunLog{}, fmt.Errorf("record dispatch failure: %w", err)
		}
		o.logger.Warn("dispatch submission failed",
			zap.String("run_id", rl.ID), zap.String("error", failMsg))
		rl.Status = status
		rl.Result = result
		rl.ErrorMessage = failMsg
		rl.EndTime = &end
		return rl, nil
	}

	metrics.IncDispatch("success")
	for _, status := range []spider.RunStatus{spider.RunStatusSent, spider.RunStatusReady} {
		s := status
		if err := o.runs.UpdateRunLog(ctx, rl.ID, spider.RunLogUpdate{Status: &s}); err != nil {
			return spider.RunLog{}, fmt.Errorf("advance run to %s: %w", s, err)
		}
		rl.Status = s
	}
	return rl, nil
}

// postFeed performs the HTTP submission, returning a failure message or
// "" on acknowledged success.
func (o *Orchestrator) postFeed(ctx context.Context, body []byte) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.IngestURL+"/feed", bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("build feed request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Sprintf("crawl service unreachable: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			o.logger.Debug("close feed response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("crawl service returned HTTP %d", resp.StatusCode)
	}
	var ack feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Sprintf("decode feed response: %v", err)
	}
	if ack.Status != "SUCCESS" {
		return fmt.Sprintf("crawl service rejected submission: %s", ack.Error)
	}
	return ""
}
