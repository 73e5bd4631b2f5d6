package fleet

import (
	"context"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// suspendedMarker is the sentinel a unit writes into its status marker
// while suspended.
const suspendedMarker = "IM_SUSPENDED"

// UnitStatus resolves a unit's status from its signal store marker: the
// suspend sentinel maps to SUSPENDED, any other non-empty marker to
// RUNNING, absence to READY.
func (c *Controller) UnitStatus(ctx context.Context, pool, index string) (spider.UnitStatus, error) {
	marker, err := c.signals.UnitMarker(ctx, pool, index)
	if err != nil {
		return "", err
	}
	switch {
	case marker == suspendedMarker:
		return spider.UnitSuspended, nil
	case marker != "":
		return spider.UnitRunning, nil
	default:
		return spider.UnitReady, nil
	}
}

// SuspendUnit suspends one unit, returning the command output for
// diagnostics.
func (c *Controller) SuspendUnit(ctx context.Context, pool, index string) (string, error) {
	return c.exec.SuspendUnit(ctx, pool, index)
}

// ResumeUnit resumes one unit.
func (c *Controller) ResumeUnit(ctx context.Context, pool, index string) (string, error) {
	return c.exec.ResumeUnit(ctx, pool, index)
}

// UnitIdle probes one unit's recent log lines for non-heartbeat activity.
func (c *Controller) UnitIdle(ctx context.Context, pool, index string) (bool, error) {
	units, err := c.exec.PoolUnits(ctx, pool)
	if err != nil {
		return false, err
	}
	return c.unitIdle(ctx, pool, index, len(units)), nil
}
