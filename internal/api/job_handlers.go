package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/spider"
)

type jobRequest struct {
	Title        string             `json:"title"`
	Category     spider.JobCategory `json:"category"`
	Content      spider.JobContent  `json:"content"`
	Schedule     spider.JobSchedule `json:"schedule"`
	CrawlerCount int                `json:"crawler_count"`
	Enabled      *bool              `json:"enabled"`
}

type jobPatch struct {
	Title        *string             `json:"title"`
	Content      *spider.JobContent  `json:"content"`
	Schedule     *spider.JobSchedule `json:"schedule"`
	CrawlerCount *int                `json:"crawler_count"`
	Enabled      *bool               `json:"enabled"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		s.respondError(w, err)
		return
	}
	job := spider.Job{
		ID:           id,
		Title:        req.Title,
		Category:     req.Category,
		Content:      req.Content,
		Schedule:     req.Schedule,
		CrawlerCount: req.CrawlerCount,
		Enabled:      true,
		CreateTime:   s.clock.Now(),
	}
	if req.CrawlerCount == 0 {
		job.CrawlerCount = 1
	}
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if err := job.Validate(); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.respondError(w, err)
		return
	}
	// Registering the trigger is where a cron descriptor is actually
	// parsed; roll the record back rather than persist an unschedulable
	// job.
	if err := s.triggers.Schedule(job); err != nil {
		if delErr := s.jobs.DeleteJob(r.Context(), job.ID); delErr != nil {
			s.logger.Warn("rollback of unschedulable job failed",
				zap.String("job_id", job.ID), zap.Error(delErr))
		}
		s.respondError(w, &spider.ValidationError{Field: "schedule", Msg: err.Error()})
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePaging(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	// Titles are unique, so an exact title lookup bypasses the filter
	// scan entirely.
	if title := r.URL.Query().Get("title"); title != "" {
		job, err := s.jobs.GetJobByTitle(r.Context(), title)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(s.logger, w, http.StatusOK, listResponse[spider.Job]{
			Items: []spider.Job{job}, Total: 1, Page: page, PageSize: pageSize,
		})
		return
	}
	enabled, err := parseBoolParam(r, "enabled")
	if err != nil {
		s.respondError(w, err)
		return
	}
	filter := spider.JobFilter{
		SearchKey: r.URL.Query().Get("search_key"),
		Category:  spider.JobCategory(r.URL.Query().Get("category")),
		Enabled:   enabled,
		Page:      page,
		PageSize:  pageSize,
	}
	jobs, total, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, listResponse[spider.Job]{
		Items: jobs, Total: total, Page: page, PageSize: pageSize,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, job)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	var patch jobPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondError(w, err)
		return
	}
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	preview := job
	if patch.Title != nil {
		preview.Title = *patch.Title
	}
	if patch.Content != nil {
		preview.Content = *patch.Content
	}
	if patch.Schedule != nil {
		preview.Schedule = *patch.Schedule
	}
	if patch.CrawlerCount != nil {
		preview.CrawlerCount = *patch.CrawlerCount
	}
	if patch.Enabled != nil {
		preview.Enabled = *patch.Enabled
	}
	if err := preview.Validate(); err != nil {
		s.respondError(w, err)
		return
	}
	// Registering the trigger is where a cron descriptor is actually
	// parsed, so sync the registry before touching the store. On
	// rejection, re-register the record as it was so neither side of the
	// patch takes effect.
	if err := s.triggers.Schedule(preview); err != nil {
		if reErr := s.triggers.Schedule(job); reErr != nil {
			s.logger.Warn("restoring trigger for rejected patch failed",
				zap.String("job_id", job.ID), zap.Error(reErr))
		}
		s.respondError(w, &spider.ValidationError{Field: "schedule", Msg: err.Error()})
		return
	}
	update := spider.JobUpdate{
		Title:        patch.Title,
		Content:      patch.Content,
		Schedule:     patch.Schedule,
		CrawlerCount: patch.CrawlerCount,
		Enabled:      patch.Enabled,
	}
	if err := s.jobs.UpdateJob(r.Context(), id, update); err != nil {
		if reErr := s.triggers.Schedule(job); reErr != nil {
			s.logger.Warn("restoring trigger for failed update failed",
				zap.String("job_id", job.ID), zap.Error(reErr))
		}
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, preview)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	s.triggers.Cancel(id)
	if err := s.jobs.DeleteJob(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatchJob(w http.ResponseWriter, r *http.Request) {
	run, err := s.dispatcher.DispatchJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, run)
}
