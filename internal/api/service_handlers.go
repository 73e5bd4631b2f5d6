package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spiderctl/spiderctl/internal/spec"
	"github.com/spiderctl/spiderctl/internal/spider"
)

type serviceRequest struct {
	Title        string         `json:"title"`
	Spec         spec.CrawlSpec `json:"spec"`
	Params       []spec.Param   `json:"params"`
	CrawlerCount int            `json:"crawler_count"`
	Enabled      *bool          `json:"enabled"`
}

type servicePatch struct {
	Title        *string         `json:"title"`
	Spec         *spec.CrawlSpec `json:"spec"`
	Params       *[]spec.Param   `json:"params"`
	CrawlerCount *int            `json:"crawler_count"`
	Enabled      *bool           `json:"enabled"`
}

type serviceDispatchRequest struct {
	Params map[string]string `json:"params"`
}

func (s *Server) createService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		s.respondError(w, err)
		return
	}
	svc := spider.Service{
		ID:           id,
		Title:        req.Title,
		Spec:         req.Spec,
		Params:       req.Params,
		CrawlerCount: req.CrawlerCount,
		Enabled:      true,
		CreateTime:   s.clock.Now(),
	}
	if req.CrawlerCount == 0 {
		svc.CrawlerCount = 1
	}
	if req.Enabled != nil {
		svc.Enabled = *req.Enabled
	}
	if err := svc.Validate(); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.services.CreateService(r.Context(), svc); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, svc)
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePaging(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if title := r.URL.Query().Get("title"); title != "" {
		svc, err := s.services.GetServiceByTitle(r.Context(), title)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(s.logger, w, http.StatusOK, listResponse[spider.Service]{
			Items: []spider.Service{svc}, Total: 1, Page: page, PageSize: pageSize,
		})
		return
	}
	enabled, err := parseBoolParam(r, "enabled")
	if err != nil {
		s.respondError(w, err)
		return
	}
	filter := spider.ServiceFilter{
		SearchKey: r.URL.Query().Get("search_key"),
		Enabled:   enabled,
		Page:      page,
		PageSize:  pageSize,
	}
	services, total, err := s.services.ListServices(r.Context(), filter)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, listResponse[spider.Service]{
		Items: services, Total: total, Page: page, PageSize: pageSize,
	})
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.services.GetService(r.Context(), chi.URLParam(r, "service_id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, svc)
}

func (s *Server) updateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "service_id")
	var patch servicePatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondError(w, err)
		return
	}
	svc, err := s.services.GetService(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	preview := svc
	if patch.Title != nil {
		preview.Title = *patch.Title
	}
	if patch.Spec != nil {
		preview.Spec = *patch.Spec
	}
	if patch.Params != nil {
		preview.Params = *patch.Params
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
	update := spider.ServiceUpdate{
		Title:        patch.Title,
		Spec:         patch.Spec,
		Params:       patch.Params,
		CrawlerCount: patch.CrawlerCount,
		Enabled:      patch.Enabled,
	}
	if err := s.services.UpdateService(r.Context(), id, update); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, preview)
}

func (s *Server) deleteService(w http.ResponseWriter, r *http.Request) {
	if err := s.services.DeleteService(r.Context(), chi.URLParam(r, "service_id")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatchService(w http.ResponseWriter, r *http.Request) {
	var req serviceDispatchRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
	}
	run, err := s.dispatcher.DispatchService(r.Context(), chi.URLParam(r, "service_id"), req.Params)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, run)
}
