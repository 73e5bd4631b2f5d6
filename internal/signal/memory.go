package signal

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory signal store for development and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	paused  map[string]bool
	markers map[string]string // "<pool>/<index>" -> marker
	queues  map[string]int64  // queue key -> depth
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		paused:  make(map[string]bool),
		markers: make(map[string]string),
		queues:  make(map[string]int64),
	}
}

// SetPause raises the pause flag for a pool.
func (s *MemoryStore) SetPause(_ context.Context, pool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[pool] = true
	return nil
}

// ClearPause removes the pause flag for a pool.
func (s *MemoryStore) ClearPause(_ context.Context, pool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, pool)
	return nil
}

// IsPaused reports whether the pause flag is set for a pool.
func (s *MemoryStore) IsPaused(_ context.Context, pool string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[pool], nil
}

// SetUnitMarker seeds a unit status marker (test helper).
func (s *MemoryStore) SetUnitMarker(pool, index, marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if marker == "" {
		delete(s.markers, pool+"/"+index)
		return
	}
	s.markers[pool+"/"+index] = marker
}

// UnitMarker returns the raw status marker for one unit, or "" if absent.
func (s *MemoryStore) UnitMarker(_ context.Context, pool, index string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[pool+"/"+index], nil
}

// SeedQueue sets the depth of a work queue (test helper).
func (s *MemoryStore) SeedQueue(queue string, depth int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = depth
}

// Queues enumerates the work queue keys belonging to a pool.
func (s *MemoryStore) Queues(_ context.Context, pool string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.queues {
		if strings.HasPrefix(k, pool+":") && strings.HasSuffix(k, ":queue") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// QueueDepth returns the number of pending items in one work queue.
func (s *MemoryStore) QueueDepth(_ context.Context, queue string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queues[queue], nil
}

// DeleteQueues removes the given work queues.
func (s *MemoryStore) DeleteQueues(_ context.Context, queues ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range queues {
		delete(s.queues, q)
	}
	return nil
}
