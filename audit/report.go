// Package audit checks scheduler snapshots and lifecycle event logs for
// internal consistency. Every check is a pure function over immutable
// inputs and reports violations instead of returning errors or
// panicking. The checks run in tests, fuzz harnesses, and the offline
// audit command, never on the runtime hot path.
package audit

import "pkt.systems/paneflow/schema"

// Code identifies one class of consistency violation.
type Code string

const (
	// CodePendingCountMismatch means pending_total disagrees with the rows.
	CodePendingCountMismatch Code = "pending_count_mismatch"
	// CodeActiveCountMismatch means active_total disagrees with the rows.
	CodeActiveCountMismatch Code = "active_count_mismatch"
	// CodeDuplicatePane means one pane id appears in more than one row.
	CodeDuplicatePane Code = "duplicate_pane"
	// CodeZeroLatestSeq means a row exists without an admitted intent.
	CodeZeroLatestSeq Code = "zero_latest_seq"
	// CodeActiveAheadOfLatest means active_seq exceeds latest_seq.
	CodeActiveAheadOfLatest Code = "active_ahead_of_latest"
	// CodeActiveBehindCompleted means an in-flight transaction is at or
	// behind the last committed sequence.
	CodeActiveBehindCompleted Code = "active_behind_completed"
	// CodeCompletedAheadOfLatest means completed_seq exceeds latest_seq.
	CodeCompletedAheadOfLatest Code = "completed_ahead_of_latest"
	// CodeBadActivePhase means an in-flight transaction is not in an
	// in-flight phase.
	CodeBadActivePhase Code = "bad_active_phase"
	// CodeIdleResidue means a row without a transaction still carries
	// active fields.
	CodeIdleResidue Code = "idle_residue"

	// CodeEventSeqOrder means event sequence numbers are not strictly
	// increasing.
	CodeEventSeqOrder Code = "event_seq_order"
	// CodeStageDetailMismatch means an event's stage is not the stage its
	// detail tag implies.
	CodeStageDetailMismatch Code = "stage_detail_mismatch"
	// CodeStageRegression means a transaction's events repeated a phase
	// or left forward phase order.
	CodeStageRegression Code = "stage_regression"
	// CodeEventAfterTerminal means a transaction emitted events after
	// completing or cancelling.
	CodeEventAfterTerminal Code = "event_after_terminal"
	// CodeParallelTransactions means two transactions overlapped on one
	// pane.
	CodeParallelTransactions Code = "parallel_transactions"
	// CodeBadSupersession means a cancellation does not name a strictly
	// newer superseding sequence.
	CodeBadSupersession Code = "bad_supersession"
)

// Violation is one consistency failure found by a check. PaneID, Seq,
// and EventSeq are filled when the violation is attributable.
type Violation struct {
	Code     Code             `json:"code"`
	PaneID   schema.PaneID    `json:"pane_id,omitempty"`
	Seq      schema.IntentSeq `json:"seq,omitempty"`
	EventSeq schema.EventSeq  `json:"event_seq,omitempty"`
	Detail   string           `json:"detail"`
}

// Report collects the violations from one check, in discovery order.
type Report struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Clean reports whether the check found nothing wrong.
func (r Report) Clean() bool { return len(r.Violations) == 0 }

// Merge appends another report's violations, preserving order.
func (r Report) Merge(other Report) Report {
	if len(other.Violations) == 0 {
		return r
	}
	merged := make([]Violation, 0, len(r.Violations)+len(other.Violations))
	merged = append(merged, r.Violations...)
	merged = append(merged, other.Violations...)
	return Report{Violations: merged}
}

func (r *Report) add(v Violation) { r.Violations = append(r.Violations, v) }
