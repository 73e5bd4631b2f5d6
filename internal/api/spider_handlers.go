package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spiderctl/spiderctl/internal/spider"
)

type scaleRequest struct {
	Count int `json:"count"`
}

func (s *Server) listSpiders(w http.ResponseWriter, r *http.Request) {
	pools, err := s.fleet.PoolInfo(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"items": pools})
}

func (s *Server) getSpider(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	units, err := s.fleet.Units(r.Context(), pool)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"spider_name": pool,
		"crawlers":    units,
	})
}

func (s *Server) scaleSpider(w http.ResponseWriter, r *http.Request) {
	var req scaleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Count < 0 {
		s.respondError(w, &spider.ValidationError{Field: "count", Msg: "must not be negative"})
		return
	}
	pool := chi.URLParam(r, "pool")
	if err := s.fleet.Scale(r.Context(), pool, req.Count); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"spider_name": pool,
		"count":       req.Count,
	})
}

func (s *Server) clearSpiderQueue(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	if err := s.fleet.QueueClear(r.Context(), pool); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) unitIdle(w http.ResponseWriter, r *http.Request) {
	pool, index := chi.URLParam(r, "pool"), chi.URLParam(r, "index")
	idle, err := s.fleet.UnitIdle(r.Context(), pool, index)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"spider_name": pool,
		"index":       index,
		"idle":        idle,
	})
}

func (s *Server) suspendUnit(w http.ResponseWriter, r *http.Request) {
	out, err := s.fleet.SuspendUnit(r.Context(), chi.URLParam(r, "pool"), chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"output": out})
}

func (s *Server) resumeUnit(w http.ResponseWriter, r *http.Request) {
	out, err := s.fleet.ResumeUnit(r.Context(), chi.URLParam(r, "pool"), chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"output": out})
}
