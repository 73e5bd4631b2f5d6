package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// ServiceStore is an in-memory spider.ServiceStore.
type ServiceStore struct {
	mu       sync.RWMutex
	services map[string]spider.Service
}

// NewServiceStore constructs a ServiceStore.
func NewServiceStore() *ServiceStore {
	return &ServiceStore{services: make(map[string]spider.Service)}
}

// CreateService stores a new service. IDs and titles must be unique.
func (s *ServiceStore) CreateService(_ context.Context, svc spider.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; exists {
		return fmt.Errorf("service %s: %w", svc.ID, spider.ErrAlreadyExists)
	}
	for _, existing := range s.services {
		if existing.Title == svc.Title {
			return fmt.Errorf("service title %q: %w", svc.Title, spider.ErrAlreadyExists)
		}
	}
	s.services[svc.ID] = svc
	return nil
}

// GetService fetches a service by ID.
func (s *ServiceStore) GetService(_ context.Context, id string) (spider.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return spider.Service{}, spider.ErrNotFound
	}
	return svc, nil
}

// GetServiceByTitle fetches a service by its unique title.
func (s *ServiceStore) GetServiceByTitle(_ context.Context, title string) (spider.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.Title == title {
			return svc, nil
		}
	}
	return spider.Service{}, spider.ErrNotFound
}

// ListServices returns the filtered page and the total match count,
// newest first.
func (s *ServiceStore) ListServices(_ context.Context, filter spider.ServiceFilter) ([]spider.Service, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []spider.Service
	for _, svc := range s.services {
		if filter.SearchKey != "" && !strings.Contains(strings.ToLower(svc.Title), strings.ToLower(filter.SearchKey)) {
			continue
		}
		if filter.Enabled != nil && svc.Enabled != *filter.Enabled {
			continue
		}
		matched = append(matched, svc)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreateTime.After(matched[j].CreateTime)
	})
	total := len(matched)
	return paginate(matched, filter.Page, filter.PageSize), total, nil
}

// UpdateService applies the non-nil fields of update atomically.
func (s *ServiceStore) UpdateService(_ context.Context, id string, update spider.ServiceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return spider.ErrNotFound
	}
	if update.Title != nil {
		svc.Title = *update.Title
	}
	if update.Spec != nil {
		svc.Spec = *update.Spec
	}
	if update.Params != nil {
		svc.Params = *update.Params
	}
	if update.CrawlerCount != nil {
		svc.CrawlerCount = *update.CrawlerCount
	}
	if update.Enabled != nil {
		svc.Enabled = *update.Enabled
	}
	if update.LastStartTime != nil {
		t := *update.LastStartTime
		svc.LastStartTime = &t
	}
	if update.LastDoneTime != nil {
		t := *update.LastDoneTime
		svc.LastDoneTime = &t
	}
	s.services[id] = svc
	return nil
}

// DeleteService removes a service by ID.
func (s *ServiceStore) DeleteService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return spider.ErrNotFound
	}
	delete(s.services, id)
	return nil
}
