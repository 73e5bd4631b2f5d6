package fleet

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Crawler units emit structured log lines of the form
// `... | {"message": "..."}`. Lines whose message is one of the known
// heartbeats carry no evidence of active work and are filtered out of
// the idle probe.
const messageMarker = `| {"message": "`

var heartbeatMarkers = []string{
	`| {"message": "pop item"`,
	`| {"message": "Current public ip:`,
	`| {"message": "Reporting self id"`,
	`| {"message": "Queue is paused`,
}

// poolIdle probes the recent log window of a pool for non-heartbeat
// activity. A failed probe with no output means the units logged nothing
// at all (idle); a failed probe with diagnostic output is a soft error
// logged and treated as not idle. The probe never propagates an error.
func (c *Controller) poolIdle(ctx context.Context, pool string, unitCount int) bool {
	return c.probeIdle(ctx, pool, unitCount, "")
}

// unitIdle is the same probe scoped to one unit's log lines.
func (c *Controller) unitIdle(ctx context.Context, pool, index string, unitCount int) bool {
	return c.probeIdle(ctx, pool, unitCount, pool+"_crawler."+index)
}

func (c *Controller) probeIdle(ctx context.Context, pool string, unitCount int, unitFilter string) bool {
	window := unitCount * c.cfg.LogWindowPerUnit
	if window <= 0 {
		window = c.cfg.LogWindowPerUnit
	}
	out, err := c.exec.TailLogs(ctx, pool, window)
	if err != nil {
		if strings.TrimSpace(out) == "" {
			return true
		}
		c.logger.Debug("idle probe failed with output",
			zap.String("pool", pool), zap.String("output", out), zap.Error(err))
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if unitFilter != "" && !strings.Contains(line, unitFilter) {
			continue
		}
		if isWorkingLine(line) {
			return false
		}
	}
	return true
}

// isWorkingLine reports whether a log line is a structured message that
// is not a known heartbeat.
func isWorkingLine(line string) bool {
	if !strings.Contains(line, messageMarker) {
		return false
	}
	for _, marker := range heartbeatMarkers {
		if strings.Contains(line, marker) {
			return false
		}
	}
	return true
}
