package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	dispatchesTotal = nil
	executorCommandsTotal = nil
	reconciliationsTotal = nil
	triggerFiringsTotal = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if dispatchesTotal == nil || executorCommandsTotal == nil ||
		reconciliationsTotal == nil || triggerFiringsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	IncDispatch("success")
	if val := testutil.ToFloat64(dispatchesTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("Expected dispatchesTotal{success} to be 1, got %f", val)
	}

	IncExecutorCommand("scale", "failure")
	if val := testutil.ToFloat64(executorCommandsTotal.WithLabelValues("scale", "failure")); val != 1 {
		t.Errorf("Expected executorCommandsTotal{scale,failure} to be 1, got %f", val)
	}

	IncTriggerFiring("cron")
	IncTriggerFiring("cron")
	if val := testutil.ToFloat64(triggerFiringsTotal.WithLabelValues("cron")); val != 2 {
		t.Errorf("Expected triggerFiringsTotal{cron} to be 2, got %f", val)
	}
}

func TestHelpersAreNoOpsBeforeInit(t *testing.T) {
	saved := reconciliationsTotal
	reconciliationsTotal = nil
	defer func() { reconciliationsTotal = saved }()

	// Must not panic when a component records before Init runs.
	IncReconciliation("RUNNING")
}
