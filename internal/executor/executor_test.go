package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/spider"
)

const statusTable = "" +
	"ID             NAME           IMAGE                 NODE      DESIRED STATE   CURRENT STATE        ERROR\n" +
	"abc123def456   p1_crawler.1   registry/crawler:v3   node-a    Running         Running 2 hours ago\n" +
	"789ghi012jkl   p1_crawler.2   registry/crawler:v3   node-b    Running         Running 5 minutes ago\n"

func newTestCLI(run runFunc) *CLI {
	c := New(Config{Command: "/opt/fleet/control.sh"}, zap.NewNop())
	c.run = run
	return c
}

func TestPoolUnits_ParsesStatusTable(t *testing.T) {
	t.Parallel()

	var gotArgs []string
	c := newTestCLI(func(_ context.Context, name string, args ...string) (string, error) {
		require.Equal(t, "/opt/fleet/control.sh", name)
		gotArgs = args
		return statusTable, nil
	})

	units, err := c.PoolUnits(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"st", "p1"}, gotArgs)
	require.Len(t, units, 2)
	require.Equal(t, "abc123def456", units[0].ReplicaID)
	require.Equal(t, "p1_crawler.1", units[0].Name)
	require.Equal(t, "1", units[0].Index)
	require.Equal(t, "Running 5 minutes ago", units[1].CurrentState)
	require.Empty(t, units[1].Error)
}

func TestPoolUnits_NotFoundMeansNoUnits(t *testing.T) {
	t.Parallel()

	c := newTestCLI(func(context.Context, string, ...string) (string, error) {
		return "Not found: p1\n", nil
	})

	units, err := c.PoolUnits(context.Background(), "p1")
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestListPools_FirstColumnOfFleetTable(t *testing.T) {
	t.Parallel()

	c := newTestCLI(func(context.Context, string, ...string) (string, error) {
		return "NAME   REPLICAS\np1     3/3\np2     1/1\n", nil
	})

	pools, err := c.ListPools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, pools)
}

func TestListPools_EmptyOutputIsCommandError(t *testing.T) {
	t.Parallel()

	c := newTestCLI(func(context.Context, string, ...string) (string, error) {
		return "", nil
	})

	_, err := c.ListPools(context.Background())
	require.True(t, spider.IsCommandError(err))
}

func TestScale_FailureCarriesOutput(t *testing.T) {
	t.Parallel()

	c := newTestCLI(func(context.Context, string, ...string) (string, error) {
		return "no such service", errors.New("exit status 1")
	})

	err := c.Scale(context.Background(), "p1", 3)
	var cmdErr *spider.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.False(t, cmdErr.Timeout)
	require.Equal(t, "no such service", cmdErr.Output)
}

func TestInvoke_TimeoutIsDistinctFailure(t *testing.T) {
	t.Parallel()

	c := New(Config{Command: "/opt/fleet/control.sh", StatusTimeout: 10 * time.Millisecond}, zap.NewNop())
	c.run = func(ctx context.Context, _ string, _ ...string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	err := c.Stop(context.Background(), "p1")
	var cmdErr *spider.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.True(t, cmdErr.Timeout)
}

func TestStop_EmptyOutputIsCommandError(t *testing.T) {
	t.Parallel()

	c := newTestCLI(func(context.Context, string, ...string) (string, error) {
		return "\n", nil
	})

	err := c.Stop(context.Background(), "p1")
	require.True(t, spider.IsCommandError(err))
}

func TestSuspendUnit_ArgsAndTrimmedOutput(t *testing.T) {
	t.Parallel()

	var gotArgs []string
	c := newTestCLI(func(_ context.Context, _ string, args ...string) (string, error) {
		gotArgs = args
		return "suspended p1.2\n", nil
	})

	out, err := c.SuspendUnit(context.Background(), "p1", "2")
	require.NoError(t, err)
	require.Equal(t, []string{"st", "p1", "e", "spider_status", "suspend", "p1", "2"}, gotArgs)
	require.Equal(t, "suspended p1.2", out)
}
