package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spiderctl/spiderctl/internal/spider"
)

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePaging(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		s.respondError(w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		s.respondError(w, err)
		return
	}
	filter := spider.RunLogFilter{
		SearchKey: r.URL.Query().Get("search_key"),
		StartTime: from,
		EndTime:   to,
		JobID:     r.URL.Query().Get("job_id"),
		ServiceID: r.URL.Query().Get("service_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	for _, raw := range splitParam(r, "statuses") {
		filter.Statuses = append(filter.Statuses, spider.RunStatus(raw))
	}
	for _, raw := range splitParam(r, "results") {
		filter.Results = append(filter.Results, spider.RunResult(raw))
	}
	runs, total, err := s.runStore.ListRunLogs(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, listResponse[spider.RunLog]{
		Items: runs, Total: total, Page: page, PageSize: pageSize,
	})
}

// getRun reconciles the record against the live fleet before returning
// it, so the caller always sees current truth rather than the cached
// status of the last mutation.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Reconcile(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, run)
}

func (s *Server) runAction(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "run_id")
		var err error
		switch name {
		case "resume":
			err = s.runs.Resume(r.Context(), id)
		case "pause":
			err = s.runs.Pause(r.Context(), id)
		case "stop":
			err = s.runs.Stop(r.Context(), id)
		case "start":
			err = s.runs.Start(r.Context(), id)
		case "cancel":
			err = s.runs.Cancel(r.Context(), id)
		default:
			writeError(s.logger, w, http.StatusNotFound, "unknown action")
			return
		}
		if err != nil {
			s.respondError(w, err)
			return
		}
		run, err := s.runStore.GetRunLog(r.Context(), id)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(s.logger, w, http.StatusOK, run)
	}
}
