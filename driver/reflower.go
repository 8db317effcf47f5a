package driver

import "pkt.systems/paneflow/schema"

// PhaseResult reports one phase step performed by a Reflower.
type PhaseResult struct {
	OK bool
}

// Reflower performs the actual resize work the scheduler only
// sequences. The driver calls exactly one phase method per scheduled
// pick and reports the outcome back to the scheduler; a false result
// abandons the pick for this tick and the transaction is retried or
// superseded later. ApplySync is the legacy fallback path used when
// the ladder reaches TierEmergencyCompatibility or a suppressed submit
// asks for it.
type Reflower interface {
	Prepare(work schema.ScheduledWork) PhaseResult
	Reflow(work schema.ScheduledWork) PhaseResult
	Present(work schema.ScheduledWork) PhaseResult
	ApplySync(pane schema.PaneID, cols, rows int)
}

// NopReflower succeeds every phase instantly. Used by tests and the
// sim command when reflow cost is modeled elsewhere.
type NopReflower struct{}

// Prepare implements Reflower.
func (NopReflower) Prepare(schema.ScheduledWork) PhaseResult { return PhaseResult{OK: true} }

// Reflow implements Reflower.
func (NopReflower) Reflow(schema.ScheduledWork) PhaseResult { return PhaseResult{OK: true} }

// Present implements Reflower.
func (NopReflower) Present(schema.ScheduledWork) PhaseResult { return PhaseResult{OK: true} }

// ApplySync implements Reflower.
func (NopReflower) ApplySync(schema.PaneID, int, int) {}
