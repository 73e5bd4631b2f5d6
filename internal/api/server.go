// Package api exposes the HTTP interface for the fleet control plane.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/config"
	"github.com/spiderctl/spiderctl/internal/metrics"
	"github.com/spiderctl/spiderctl/internal/spider"
)

// Dispatcher is the slice of the dispatch orchestrator the API calls.
type Dispatcher interface {
	DispatchJob(ctx context.Context, jobID string) (spider.RunLog, error)
	DispatchService(ctx context.Context, serviceID string, params map[string]string) (spider.RunLog, error)
}

// RunActions is the run state machine surface behind the run endpoints.
type RunActions interface {
	Reconcile(ctx context.Context, id string) (spider.RunLog, error)
	Resume(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// Fleet is the pool controller surface behind the spider endpoints.
type Fleet interface {
	PoolInfo(ctx context.Context) ([]spider.PoolInfo, error)
	Units(ctx context.Context, pool string) ([]spider.UnitInfo, error)
	Scale(ctx context.Context, pool string, count int) error
	QueueClear(ctx context.Context, pool string) error
	SuspendUnit(ctx context.Context, pool, index string) (string, error)
	ResumeUnit(ctx context.Context, pool, index string) (string, error)
	UnitIdle(ctx context.Context, pool, index string) (bool, error)
}

// Triggers is the scheduler surface the job CRUD handlers keep in sync
// with the store.
type Triggers interface {
	Schedule(job spider.Job) error
	Cancel(jobID string)
}

// Server wires HTTP handlers to the stores, dispatcher, state machine,
// and fleet controller.
type Server struct {
	router chi.Router

	jobs       spider.JobStore
	services   spider.ServiceStore
	runStore   spider.RunLogStore
	dispatcher Dispatcher
	runs       RunActions
	fleet      Fleet
	triggers   Triggers
	idGen      spider.IDGenerator
	clock      spider.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs spider.JobStore,
	services spider.ServiceStore,
	runStore spider.RunLogStore,
	dispatcher Dispatcher,
	runs RunActions,
	fleet Fleet,
	triggers Triggers,
	idGen spider.IDGenerator,
	clock spider.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobs:       jobs,
		services:   services,
		runStore:   runStore,
		dispatcher: dispatcher,
		runs:       runs,
		fleet:      fleet,
		triggers:   triggers,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.ServerTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Patch("/", s.updateJob)
				r.Delete("/", s.deleteJob)
				r.Post("/dispatch", s.dispatchJob)
			})
		})
		r.Route("/services", func(r chi.Router) {
			r.Post("/", s.createService)
			r.Get("/", s.listServices)
			r.Route("/{service_id}", func(r chi.Router) {
				r.Get("/", s.getService)
				r.Patch("/", s.updateService)
				r.Delete("/", s.deleteService)
				r.Post("/dispatch", s.dispatchService)
			})
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Post("/resume", s.runAction("resume"))
				r.Post("/pause", s.runAction("pause"))
				r.Post("/stop", s.runAction("stop"))
				r.Post("/start", s.runAction("start"))
				r.Post("/cancel", s.runAction("cancel"))
			})
		})
		r.Route("/spiders", func(r chi.Router) {
			r.Get("/", s.listSpiders)
			r.Route("/{pool}", func(r chi.Router) {
				r.Get("/", s.getSpider)
				r.Post("/scale", s.scaleSpider)
				r.Post("/queue/clear", s.clearSpiderQueue)
				r.Get("/units/{index}/idle", s.unitIdle)
				r.Post("/units/{index}/suspend", s.suspendUnit)
				r.Post("/units/{index}/resume", s.resumeUnit)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The fleet executor is the hard dependency: if the control command
	// cannot report pools, nothing else here is actionable.
	if _, err := s.fleet.PoolInfo(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "fleet executor unavailable")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// respondError maps domain errors onto HTTP statuses. Conflicts carry
// their reason so operator tooling can branch without string matching.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var conflict *spider.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(s.logger, w, http.StatusConflict, map[string]string{
			"error":  conflict.Msg,
			"reason": string(conflict.Reason),
		})
		return
	}
	var validation *spider.ValidationError
	if errors.As(err, &validation) {
		writeError(s.logger, w, http.StatusBadRequest, validation.Error())
		return
	}
	var cmdErr *spider.CommandError
	if errors.As(err, &cmdErr) {
		status := http.StatusBadGateway
		if cmdErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		writeError(s.logger, w, status, cmdErr.Error())
		return
	}
	switch {
	case errors.Is(err, spider.ErrNotFound):
		writeError(s.logger, w, http.StatusNotFound, "not found")
	case errors.Is(err, spider.ErrAlreadyExists):
		writeError(s.logger, w, http.StatusConflict, err.Error())
	case errors.Is(err, spider.ErrMissingSource):
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(s.logger, w, http.StatusGatewayTimeout, "operation timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
