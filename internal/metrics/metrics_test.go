package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pkt.systems/paneflow/schema"
)

func TestUpdateAdvancesCountersByDelta(t *testing.T) {
	c := NewCollector()
	snap := schema.DebugSnapshot{
		SchedulerSnapshot: schema.SchedulerSnapshot{
			PendingTotal: 2,
			ActiveTotal:  1,
			Metrics: schema.SchedulerMetrics{
				TransactionsStarted:   3,
				TransactionsCompleted: 2,
				StormEventsDetected:   1,
			},
		},
	}
	c.Update(snap, schema.WatchdogReport{Severity: schema.SeverityWarning}, schema.TierQualityReduced)

	if got := testutil.ToFloat64(c.transactions.WithLabelValues("completed")); got != 2 {
		t.Fatalf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.stormEvents); got != 1 {
		t.Fatalf("storm events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.panesPending); got != 2 {
		t.Fatalf("pending gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.watchdogSeverity); got != 1 {
		t.Fatalf("severity gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.degradationTier); got != 1 {
		t.Fatalf("tier gauge = %v, want 1", got)
	}

	// Same snapshot again: cumulative counters must not double.
	c.Update(snap, schema.WatchdogReport{Severity: schema.SeverityHealthy}, schema.TierFullQuality)
	if got := testutil.ToFloat64(c.transactions.WithLabelValues("completed")); got != 2 {
		t.Fatalf("completed after repeat = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.degradationTier); got != 0 {
		t.Fatalf("tier gauge after recovery = %v, want 0", got)
	}
}

func TestRegistryExposesAllMetrics(t *testing.T) {
	c := NewCollector()
	c.Update(schema.DebugSnapshot{}, schema.WatchdogReport{Severity: schema.SeverityHealthy}, schema.TierFullQuality)
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"paneflow_intents_suppressed_total",
		"paneflow_storm_events_total",
		"paneflow_panes_pending",
		"paneflow_watchdog_severity",
		"paneflow_frame_transactions_started",
	} {
		if !names[want] {
			t.Fatalf("metric %s not registered (have %v)", want, names)
		}
	}
}
