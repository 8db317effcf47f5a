package schema

import "time"

// ResizeIntent asks the scheduler to bring one pane to a new geometry.
// Seq must be strictly increasing per pane; the admission gate is the
// sole writer of the recorded value.
type ResizeIntent struct {
	PaneID      PaneID    `json:"pane_id"`
	Seq         IntentSeq `json:"seq"`
	Class       WorkClass `json:"class"`
	Units       int       `json:"units"`
	SubmittedAt time.Time `json:"submitted_at"`
	Domain      Domain    `json:"domain"`
	TabID       TabID     `json:"tab_id"`
	Cols        int       `json:"cols,omitempty"`
	Rows        int       `json:"rows,omitempty"`
}

// SubmitStatus is the admission gate verdict for one intent.
type SubmitStatus string

const (
	// SubmitAccepted means the intent was recorded as the pane's latest.
	SubmitAccepted SubmitStatus = "accepted"
	// SubmitSuppressedByKillSwitch means the emergency gate is closed.
	SubmitSuppressedByKillSwitch SubmitStatus = "suppressed"
	// SubmitRejected means the intent violated the caller contract.
	SubmitRejected SubmitStatus = "rejected"
)

// RejectReason explains a SubmitRejected outcome.
type RejectReason string

const (
	// RejectOutOfOrder means the sequence number did not advance.
	RejectOutOfOrder RejectReason = "out_of_order"
	// RejectInvalidIntent means a required field was missing or malformed.
	RejectInvalidIntent RejectReason = "invalid_intent"
)

// SubmitOutcome reports how the admission gate handled an intent.
// LegacyFallback is meaningful only when Status is
// SubmitSuppressedByKillSwitch: it tells the caller whether to apply
// the resize through the synchronous fallback path instead.
type SubmitOutcome struct {
	Status         SubmitStatus `json:"status"`
	LegacyFallback bool         `json:"legacy_fallback,omitempty"`
	Reason         RejectReason `json:"reason,omitempty"`
}

// Accepted reports whether the intent was admitted.
func (o SubmitOutcome) Accepted() bool { return o.Status == SubmitAccepted }

// ScheduledWork is one pick emitted by a scheduling tick. StartPhase is
// the phase the transaction holds when picked; new transactions start
// in StagePreparing.
type ScheduledWork struct {
	PaneID             PaneID         `json:"pane_id"`
	Seq                IntentSeq      `json:"seq"`
	Units              int            `json:"units"`
	Cols               int            `json:"cols,omitempty"`
	Rows               int            `json:"rows,omitempty"`
	StartPhase         LifecycleStage `json:"start_phase"`
	ForcedByStarvation bool           `json:"forced_by_starvation,omitempty"`
}
