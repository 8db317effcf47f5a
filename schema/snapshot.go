package schema

import "time"

// PaneSnapshot is a read-only copy of one pane row. CompletedSeq is the
// highest sequence that reached StageCompleted; LatestSeq above it with
// no active transaction means the pane has pending work.
type PaneSnapshot struct {
	PaneID               PaneID         `json:"pane_id"`
	TabID                TabID          `json:"tab_id"`
	Domain               Domain         `json:"domain"`
	Class                WorkClass      `json:"class"`
	LatestSeq            IntentSeq      `json:"latest_seq"`
	CompletedSeq         IntentSeq      `json:"completed_seq,omitempty"`
	Cols                 int            `json:"cols,omitempty"`
	Rows                 int            `json:"rows,omitempty"`
	SubmittedAt          time.Time      `json:"submitted_at"`
	HasActive            bool           `json:"has_active,omitempty"`
	ActiveSeq            IntentSeq      `json:"active_seq,omitempty"`
	ActivePhase          LifecycleStage `json:"active_phase,omitempty"`
	PhaseStartedAt       time.Time      `json:"phase_started_at"`
	ConsecutiveDeferrals int            `json:"consecutive_deferrals,omitempty"`
}

// Pending reports whether the pane has an unclaimed latest intent and
// no transaction in flight.
func (p PaneSnapshot) Pending() bool {
	return !p.HasActive && p.LatestSeq > p.CompletedSeq
}

// SchedulerMetrics are cumulative counters since scheduler construction.
type SchedulerMetrics struct {
	SuppressedByGate      uint64 `json:"suppressed_by_gate"`
	SuppressedFrames      uint64 `json:"suppressed_frames"`
	RejectedOutOfOrder    uint64 `json:"rejected_out_of_order"`
	RejectedInvalid       uint64 `json:"rejected_invalid"`
	StormEventsDetected   uint64 `json:"storm_events_detected"`
	StormPicksThrottled   uint64 `json:"storm_picks_throttled"`
	DomainBudgetThrottled uint64 `json:"domain_budget_throttled"`
	ForcedBackgroundRuns  uint64 `json:"forced_background_runs"`
	OversubscribedPicks   uint64 `json:"oversubscribed_picks"`
	TransactionsStarted   uint64 `json:"transactions_started"`
	TransactionsCompleted uint64 `json:"transactions_completed"`
	TransactionsCancelled uint64 `json:"transactions_cancelled"`
	TransactionsFailed    uint64 `json:"transactions_failed"`
}

// GateState reports the admission gate posture.
type GateState struct {
	Active         bool `json:"active"`
	LegacyFallback bool `json:"legacy_fallback,omitempty"`
}

// SchedulerSnapshot is a point-in-time view of scheduler state. It is
// never mutated after capture and is stale after the next scheduler call.
type SchedulerSnapshot struct {
	TakenAt      time.Time        `json:"taken_at"`
	Panes        []PaneSnapshot   `json:"panes"`
	PendingTotal int              `json:"pending_total"`
	ActiveTotal  int              `json:"active_total"`
	StormTabs    int              `json:"storm_tabs,omitempty"`
	Metrics      SchedulerMetrics `json:"metrics"`
	Gate         GateState        `json:"gate"`
}

// DebugSnapshot extends SchedulerSnapshot with bounded event history.
type DebugSnapshot struct {
	SchedulerSnapshot
	Events       []LifecycleEvent `json:"events"`
	NextEventSeq EventSeq         `json:"next_event_seq"`
}
