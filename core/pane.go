package core

import (
	"time"

	"pkt.systems/paneflow/schema"
)

// paneRow is the live transaction record for one pane. All rows live in
// the scheduler's flat map; everything outside the scheduler sees copies.
type paneRow struct {
	id          schema.PaneID
	tabID       schema.TabID
	domain      schema.Domain
	class       schema.WorkClass
	units       int
	cols        int
	rows        int
	latestSeq   schema.IntentSeq
	submittedAt time.Time

	completedSeq schema.IntentSeq

	hasActive      bool
	activeSeq      schema.IntentSeq
	activePhase    schema.LifecycleStage
	activeForced   bool
	phaseStartedAt time.Time

	deferrals int
}

// pending reports whether the latest intent is unclaimed and nothing is
// in flight.
func (r *paneRow) pending() bool {
	return !r.hasActive && r.latestSeq > r.completedSeq
}

// superseded reports whether a newer intent arrived while a transaction
// is in flight. Such a transaction must be cancelled before its next
// phase transition is honored.
func (r *paneRow) superseded() bool {
	return r.hasActive && r.latestSeq > r.activeSeq
}

// waitingSince is the tiebreak timestamp for scheduling order.
func (r *paneRow) waitingSince() time.Time {
	if r.hasActive {
		return r.phaseStartedAt
	}
	return r.submittedAt
}

func (r *paneRow) clearActive() {
	r.hasActive = false
	r.activeSeq = 0
	r.activePhase = ""
	r.activeForced = false
	r.phaseStartedAt = time.Time{}
}

func (r *paneRow) snapshot() schema.PaneSnapshot {
	return schema.PaneSnapshot{
		PaneID:               r.id,
		TabID:                r.tabID,
		Domain:               r.domain,
		Class:                r.class,
		LatestSeq:            r.latestSeq,
		CompletedSeq:         r.completedSeq,
		Cols:                 r.cols,
		Rows:                 r.rows,
		SubmittedAt:          r.submittedAt,
		HasActive:            r.hasActive,
		ActiveSeq:            r.activeSeq,
		ActivePhase:          r.activePhase,
		PhaseStartedAt:       r.phaseStartedAt,
		ConsecutiveDeferrals: r.deferrals,
	}
}
