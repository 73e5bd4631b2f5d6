package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// RunLogStore is an in-memory spider.RunLogStore.
type RunLogStore struct {
	mu   sync.RWMutex
	runs map[string]spider.RunLog
}

// NewRunLogStore constructs a RunLogStore.
func NewRunLogStore() *RunLogStore {
	return &RunLogStore{runs: make(map[string]spider.RunLog)}
}

// CreateRunLog stores a new run record.
func (s *RunLogStore) CreateRunLog(_ context.Context, rl spider.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[rl.ID]; exists {
		return fmt.Errorf("run log %s: %w", rl.ID, spider.ErrAlreadyExists)
	}
	s.runs[rl.ID] = rl
	return nil
}

// GetRunLog fetches a run record by ID.
func (s *RunLogStore) GetRunLog(_ context.Context, id string) (spider.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rl, ok := s.runs[id]
	if !ok {
		return spider.RunLog{}, spider.ErrNotFound
	}
	return rl, nil
}

// ListRunLogs returns the filtered page and the total match count,
// newest invocation first.
func (s *RunLogStore) ListRunLogs(_ context.Context, filter spider.RunLogFilter) ([]spider.RunLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []spider.RunLog
	for _, rl := range s.runs {
		if !runMatches(rl, filter) {
			continue
		}
		matched = append(matched, rl)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InvokeTime.After(matched[j].InvokeTime)
	})
	total := len(matched)
	return paginate(matched, filter.Page, filter.PageSize), total, nil
}

func runMatches(rl spider.RunLog, filter spider.RunLogFilter) bool {
	if filter.SearchKey != "" && !strings.Contains(strings.ToLower(rl.Title), strings.ToLower(filter.SearchKey)) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, rl.Status) {
		return false
	}
	if len(filter.Results) > 0 && !containsResult(filter.Results, rl.Result) {
		return false
	}
	if filter.StartTime != nil && rl.InvokeTime.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && rl.InvokeTime.After(*filter.EndTime) {
		return false
	}
	if filter.JobID != "" && rl.JobID != filter.JobID {
		return false
	}
	if filter.ServiceID != "" && rl.ServiceID != filter.ServiceID {
		return false
	}
	return true
}

func containsStatus(statuses []spider.RunStatus, s spider.RunStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func containsResult(results []spider.RunResult, r spider.RunResult) bool {
	for _, candidate := range results {
		if candidate == r {
			return true
		}
	}
	return false
}

// UpdateRunLog applies the non-nil fields of update atomically.
func (s *RunLogStore) UpdateRunLog(_ context.Context, id string, update spider.RunLogUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.runs[id]
	if !ok {
		return spider.ErrNotFound
	}
	if update.Status != nil {
		rl.Status = *update.Status
	}
	if update.Result != nil {
		rl.Result = *update.Result
	}
	if update.ErrorMessage != nil {
		rl.ErrorMessage = *update.ErrorMessage
	}
	if update.EndTime != nil {
		t := *update.EndTime
		rl.EndTime = &t
	}
	s.runs[id] = rl
	return nil
}
