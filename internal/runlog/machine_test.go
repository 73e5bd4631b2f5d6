package runlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/spec"
	"github.com/spiderctl/spiderctl/internal/spider"
)

type fakeStore struct {
	mu   sync.Mutex
	runs map[string]spider.RunLog
}

func newFakeStore(runs ...spider.RunLog) *fakeStore {
	s := &fakeStore{runs: make(map[string]spider.RunLog)}
	for _, rl := range runs {
		s.runs[rl.ID] = rl
	}
	return s
}

func (s *fakeStore) CreateRunLog(_ context.Context, rl spider.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rl.ID] = rl
	return nil
}

func (s *fakeStore) GetRunLog(_ context.Context, id string) (spider.RunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.runs[id]
	if !ok {
		return spider.RunLog{}, spider.ErrNotFound
	}
	return rl, nil
}

func (s *fakeStore) ListRunLogs(context.Context, spider.RunLogFilter) ([]spider.RunLog, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) UpdateRunLog(_ context.Context, id string, update spider.RunLogUpdate) error {
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
		rl.EndTime = update.EndTime
	}
	s.runs[id] = rl
	return nil
}

func (s *fakeStore) get(id string) spider.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// fakePools replays a scripted sequence of live statuses and records the
// commands issued against it.
type fakePools struct {
	mu       sync.Mutex
	statuses []spider.PoolStatus
	launches int
	pauses   int
	resumes  int
	stops    int
	cleared  int
}

func (f *fakePools) Status(context.Context, string) (spider.PoolStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return spider.PoolStopped, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakePools) Launch(context.Context, string, int, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	return nil
}

func (f *fakePools) Pause(_ context.Context, _ string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.pauses++
	} else {
		f.resumes++
	}
	return nil
}

func (f *fakePools) Resume(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakePools) Stop(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePools) QueueClear(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testRun(status spider.RunStatus) spider.RunLog {
	return spider.RunLog{
		ID:           "run-1",
		Title:        "nightly",
		Category:     spider.RunCategoryJob,
		JobID:        "job-1",
		Spec:         spec.CrawlSpec{AppID: "x", CrawlID: "c1", SpiderID: "p1", URL: "http://e.com"},
		CrawlerCount: 2,
		Status:       status,
		Result:       spider.RunResultUnknown,
	}
}

func newTestMachine(store *fakeStore, pools *fakePools) *Machine {
	m := NewMachine(store, pools, fixedClock{now: time.Unix(1000, 0).UTC()}, Config{
		PollInterval: time.Millisecond,
		PollBudget:   5,
	}, zap.NewNop())
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func TestReconcile_TerminalShortCircuit(t *testing.T) {
	t.Parallel()

	for _, status := range []spider.RunStatus{spider.RunStatusCanceled, spider.RunStatusDone} {
		store := newFakeStore(testRun(status))
		pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
		m := newTestMachine(store, pools)

		rl, err := m.Reconcile(context.Background(), "run-1")
		require.NoError(t, err)
		require.Equal(t, status, rl.Status)
	}
}

func TestReconcile_PersistsChangedStatus(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusReady))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
	m := newTestMachine(store, pools)

	rl, err := m.Reconcile(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, spider.RunStatusRunning, rl.Status)
	require.Equal(t, spider.RunStatusRunning, store.get("run-1").Status)
}

func TestReconcile_DoneClassifiesSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolDone}}
	m := newTestMachine(store, pools)

	rl, err := m.Reconcile(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, spider.RunStatusDone, rl.Status)
	require.Equal(t, spider.RunResultSuccess, rl.Result)
	require.NotNil(t, rl.EndTime)
}

func TestOperatorActions_RejectTerminalRecords(t *testing.T) {
	t.Parallel()

	terminal := testRun(spider.RunStatusSent)
	terminal.Result = spider.RunResultFailure
	canceled := testRun(spider.RunStatusCanceled)

	for _, rl := range []spider.RunLog{terminal, canceled} {
		store := newFakeStore(rl)
		pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
		m := newTestMachine(store, pools)
		ctx := context.Background()

		require.True(t, spider.IsConflict(m.Resume(ctx, "run-1"), spider.ConflictTerminal))
		require.True(t, spider.IsConflict(m.Pause(ctx, "run-1"), spider.ConflictTerminal))
		require.True(t, spider.IsConflict(m.Stop(ctx, "run-1"), spider.ConflictTerminal))
		require.True(t, spider.IsConflict(m.Start(ctx, "run-1"), spider.ConflictTerminal))
		require.True(t, spider.IsConflict(m.Cancel(ctx, "run-1"), spider.ConflictTerminal))

		// State untouched: no command reached the pool.
		require.Zero(t, pools.stops)
		require.Zero(t, pools.launches)
		require.Equal(t, rl.Status, store.get("run-1").Status)
	}
}

func TestPause_SetsSignalWhenRunningObserved(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning, spider.PoolPaused}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Pause(context.Background(), "run-1"))
	require.Equal(t, 1, pools.pauses)
	require.Equal(t, spider.RunStatusPaused, store.get("run-1").Status)
}

func TestPause_AlreadyPausedIsConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusPaused))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolPaused}}
	m := newTestMachine(store, pools)

	err := m.Pause(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictAlreadyInState))
	require.Zero(t, pools.pauses)
}

func TestPause_StoppedPoolIsDistinctConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolStopped}}
	m := newTestMachine(store, pools)

	err := m.Pause(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictIncompatible))
	require.Equal(t, spider.RunStatusRunning, store.get("run-1").Status)
}

func TestResume_ClearsPauseAndPersistsRunning(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusPaused))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolPaused, spider.PoolRunning}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Resume(context.Background(), "run-1"))
	require.Equal(t, 1, pools.resumes)
	require.Equal(t, spider.RunStatusRunning, store.get("run-1").Status)
}

func TestResume_RelaunchesStoppedPool(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusStopped))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolStopped, spider.PoolRunning}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Resume(context.Background(), "run-1"))
	require.Equal(t, 1, pools.launches)
	require.Equal(t, spider.RunStatusRunning, store.get("run-1").Status)
}

func TestResume_AlreadyRunningIsConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
	m := newTestMachine(store, pools)

	err := m.Resume(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictAlreadyInState))
}

func TestStop_IssuesStopUntilStoppedObserved(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{
		spider.PoolRunning, spider.PoolPaused, spider.PoolStopped,
	}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Stop(context.Background(), "run-1"))
	require.Equal(t, 2, pools.stops)
	require.Equal(t, spider.RunStatusStopped, store.get("run-1").Status)
}

func TestStop_AlreadyStoppedIsConflict(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusStopped))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolStopped}}
	m := newTestMachine(store, pools)

	err := m.Stop(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictAlreadyInState))
	require.Zero(t, pools.stops)
}

func TestStop_BudgetExhaustedIsConverging(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
	m := newTestMachine(store, pools)

	err := m.Stop(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictConverging))
}

func TestStart_RequiresStoppedPool(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusStopped))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolPaused}}
	m := newTestMachine(store, pools)

	err := m.Start(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictIncompatible))
	require.Zero(t, pools.launches)
}

func TestStart_LaunchesAndReconciles(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusStopped))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolStopped, spider.PoolRunning}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Start(context.Background(), "run-1"))
	require.Equal(t, 1, pools.launches)
	require.Equal(t, spider.RunStatusRunning, store.get("run-1").Status)
}

func TestCancel_StopsClearsAndPersistsCanceled(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
	m := newTestMachine(store, pools)

	require.NoError(t, m.Cancel(context.Background(), "run-1"))
	require.Equal(t, 1, pools.stops)
	require.Equal(t, 1, pools.cleared)

	rl := store.get("run-1")
	require.Equal(t, spider.RunStatusCanceled, rl.Status)
	require.NotNil(t, rl.EndTime)

	// Irreversible: a second cancel is a terminal conflict.
	err := m.Cancel(context.Background(), "run-1")
	require.True(t, spider.IsConflict(err, spider.ConflictTerminal))
}

func TestActions_LoopIsCancellable(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testRun(spider.RunStatusRunning))
	pools := &fakePools{statuses: []spider.PoolStatus{spider.PoolRunning}}
	m := NewMachine(store, pools, fixedClock{now: time.Unix(1000, 0)}, Config{
		PollInterval: time.Hour,
		PollBudget:   10,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Stop(ctx, "run-1") }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stop loop ignored cancellation")
	}
}
