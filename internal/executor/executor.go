// Package executor shells out to the fleet control command that scales,
// stops, and inspects crawler pools. The command is treated as a black
// box: every call is a bounded external-process invocation whose output
// is parsed, never interpreted beyond its table format.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spiderctl/spiderctl/internal/metrics"
	"github.com/spiderctl/spiderctl/internal/spider"
)

// Config controls the control command invocation.
type Config struct {
	// Command is the path of the fleet control executable.
	Command string
	// StatusTimeout bounds status listings and per-unit commands.
	StatusTimeout time.Duration
	// LaunchTimeout bounds scale commands, which roll containers and can
	// take tens of seconds.
	LaunchTimeout time.Duration
	// LogTimeout bounds log tail probes.
	LogTimeout time.Duration
}

var errEmptyOutput = errors.New("control command produced no output; check executor.command configuration")

// runFunc executes an external command and returns its combined output.
// Replaced in tests.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

// CLI implements spider.Executor over the external control command.
type CLI struct {
	cfg    Config
	run    runFunc
	logger *zap.Logger
}

// New constructs a CLI executor client.
func New(cfg Config, logger *zap.Logger) *CLI {
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 5 * time.Second
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 20 * time.Second
	}
	if cfg.LogTimeout <= 0 {
		cfg.LogTimeout = 3 * time.Second
	}
	return &CLI{cfg: cfg, run: runCommand, logger: logger}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// invoke runs one control subcommand with a timeout, mapping failures to
// CommandError so callers can tell timeouts from command failures.
func (c *CLI) invoke(ctx context.Context, timeout time.Duration, op string, args ...string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	verb := op
	if i := strings.IndexByte(op, ' '); i > 0 {
		verb = op[:i]
	}
	out, err := c.run(cmdCtx, c.cfg.Command, args...)
	if err != nil {
		metrics.IncExecutorCommand(verb, "failure")
		cmdErr := &spider.CommandError{Op: op, Output: strings.TrimSpace(out), Err: err}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			cmdErr.Timeout = true
		}
		return strings.TrimSpace(out), cmdErr
	}
	metrics.IncExecutorCommand(verb, "success")
	return out, nil
}

// ListPools enumerates pool names from the whole-fleet status table.
func (c *CLI) ListPools(ctx context.Context) ([]string, error) {
	out, err := c.invoke(ctx, c.cfg.StatusTimeout, "status", "st")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return nil, &spider.CommandError{Op: "status", Err: errEmptyOutput}
	}
	lines := tableLines(out)
	if len(lines) < 2 {
		return nil, nil
	}
	var pools []string
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			pools = append(pools, fields[0])
		}
	}
	return pools, nil
}

// PoolUnits parses the per-pool status table into unit records. A "Not
// found" response means the pool has no live units.
func (c *CLI) PoolUnits(ctx context.Context, pool string) ([]spider.UnitInfo, error) {
	out, err := c.invoke(ctx, c.cfg.StatusTimeout, "status "+pool, "st", pool)
	if err != nil {
		return nil, err
	}
	if strings.Contains(out, "Not found") {
		return nil, nil
	}
	units, err := parseUnitTable(out)
	if err != nil {
		return nil, fmt.Errorf("parse status of %s: %w", pool, err)
	}
	return units, nil
}

// Scale sets the desired unit count for a pool.
func (c *CLI) Scale(ctx context.Context, pool string, count int) error {
	out, err := c.invoke(ctx, c.cfg.LaunchTimeout, "scale "+pool, "st", pool, "d", fmt.Sprint(count))
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		return &spider.CommandError{Op: "scale " + pool, Err: errEmptyOutput}
	}
	c.logger.Debug("scale command output", zap.String("pool", pool), zap.Int("count", count), zap.String("output", strings.TrimSpace(out)))
	return nil
}

// Stop tears down the whole pool.
func (c *CLI) Stop(ctx context.Context, pool string) error {
	out, err := c.invoke(ctx, c.cfg.StatusTimeout, "stop "+pool, "st", pool, "s")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		return &spider.CommandError{Op: "stop " + pool, Err: errEmptyOutput}
	}
	return nil
}

// TailLogs returns the most recent aggregated log lines for a pool.
func (c *CLI) TailLogs(ctx context.Context, pool string, lines int) (string, error) {
	out, err := c.invoke(ctx, c.cfg.LogTimeout, "logs "+pool, "st", pool, "l", fmt.Sprint(lines))
	if err != nil {
		return out, err
	}
	return out, nil
}

// SuspendUnit issues a targeted suspend to one unit.
func (c *CLI) SuspendUnit(ctx context.Context, pool, index string) (string, error) {
	out, err := c.invoke(ctx, c.cfg.StatusTimeout, "suspend "+pool+"."+index,
		"st", pool, "e", "spider_status", "suspend", pool, index)
	if err != nil {
		return out, err
	}
	return strings.TrimSpace(out), nil
}

// ResumeUnit issues a targeted resume to one unit.
func (c *CLI) ResumeUnit(ctx context.Context, pool, index string) (string, error) {
	out, err := c.invoke(ctx, c.cfg.StatusTimeout, "resume "+pool+"."+index,
		"st", pool, "e", "spider_status", "resume", pool, index)
	if err != nil {
		return out, err
	}
	return strings.TrimSpace(out), nil
}
