package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PauseFlagLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	paused, err := s.IsPaused(ctx, "p1")
	require.NoError(t, err)
	require.False(t, paused)

	require.NoError(t, s.SetPause(ctx, "p1"))
	paused, err = s.IsPaused(ctx, "p1")
	require.NoError(t, err)
	require.True(t, paused)

	// Pause flags are per pool.
	paused, err = s.IsPaused(ctx, "p2")
	require.NoError(t, err)
	require.False(t, paused)

	require.NoError(t, s.ClearPause(ctx, "p1"))
	paused, err = s.IsPaused(ctx, "p1")
	require.NoError(t, err)
	require.False(t, paused)

	// Clearing an absent flag is idempotent.
	require.NoError(t, s.ClearPause(ctx, "p1"))
}

func TestMemoryStore_QueueEnumerationScopedToPool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	s.SeedQueue("p1:c1:queue", 3)
	s.SeedQueue("p1:c2:queue", 0)
	s.SeedQueue("p2:c1:queue", 7)

	keys, err := s.Queues(ctx, "p1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"p1:c1:queue", "p1:c2:queue"}, keys)

	depth, err := s.QueueDepth(ctx, "p1:c1:queue")
	require.NoError(t, err)
	require.EqualValues(t, 3, depth)

	require.NoError(t, s.DeleteQueues(ctx, keys...))
	keys, err = s.Queues(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, keys)

	// Other pools untouched.
	keys, err = s.Queues(ctx, "p2")
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestMemoryStore_UnitMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	marker, err := s.UnitMarker(ctx, "p1", "1")
	require.NoError(t, err)
	require.Empty(t, marker)

	s.SetUnitMarker("p1", "1", "IM_SUSPENDED")
	marker, err = s.UnitMarker(ctx, "p1", "1")
	require.NoError(t, err)
	require.Equal(t, "IM_SUSPENDED", marker)

	s.SetUnitMarker("p1", "1", "")
	marker, err = s.UnitMarker(ctx, "p1", "1")
	require.NoError(t, err)
	require.Empty(t, marker)
}
