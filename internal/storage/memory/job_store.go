// Package memory provides in-memory store implementations for
// development and testing. All stores are safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// JobStore is an in-memory spider.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]spider.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]spider.Job)}
}

// CreateJob stores a new job. IDs and titles must be unique.
func (s *JobStore) CreateJob(_ context.Context, job spider.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, spider.ErrAlreadyExists)
	}
	for _, existing := range s.jobs {
		if existing.Title == job.Title {
			return fmt.Errorf("job title %q: %w", job.Title, spider.ErrAlreadyExists)
		}
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, id string) (spider.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return spider.Job{}, spider.ErrNotFound
	}
	return job, nil
}

// GetJobByTitle fetches a job by its unique title.
func (s *JobStore) GetJobByTitle(_ context.Context, title string) (spider.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Title == title {
			return job, nil
		}
	}
	return spider.Job{}, spider.ErrNotFound
}

// ListJobs returns the filtered page and the total match count, newest
// first.
func (s *JobStore) ListJobs(_ context.Context, filter spider.JobFilter) ([]spider.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []spider.Job
	for _, job := range s.jobs {
		if filter.SearchKey != "" && !strings.Contains(strings.ToLower(job.Title), strings.ToLower(filter.SearchKey)) {
			continue
		}
		if filter.Category != "" && job.Category != filter.Category {
			continue
		}
		if filter.Enabled != nil && job.Enabled != *filter.Enabled {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreateTime.After(matched[j].CreateTime)
	})
	total := len(matched)
	return paginate(matched, filter.Page, filter.PageSize), total, nil
}

// UpdateJob applies the non-nil fields of update atomically.
func (s *JobStore) UpdateJob(_ context.Context, id string, update spider.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return spider.ErrNotFound
	}
	if update.Title != nil {
		job.Title = *update.Title
	}
	if update.Content != nil {
		job.Content = *update.Content
	}
	if update.Schedule != nil {
		job.Schedule = *update.Schedule
	}
	if update.CrawlerCount != nil {
		job.CrawlerCount = *update.CrawlerCount
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastStartTime != nil {
		t := *update.LastStartTime
		job.LastStartTime = &t
	}
	if update.LastDoneTime != nil {
		t := *update.LastDoneTime
		job.LastDoneTime = &t
	}
	s.jobs[id] = job
	return nil
}

// DeleteJob removes a job by ID.
func (s *JobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return spider.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// paginate slices one page out of items. Page is 1-based; a zero or
// negative page size disables pagination.
func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
