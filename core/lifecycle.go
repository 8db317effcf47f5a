package core

import (
	"time"

	"pkt.systems/paneflow/schema"
)

var phaseDetail = map[schema.LifecycleStage]schema.DetailKind{
	schema.StageReflowing:  schema.DetailReflowStarted,
	schema.StagePresenting: schema.DetailPresentStarted,
}

// MarkPhase advances an in-flight transaction one phase. The
// supersession check runs first: a superseded transaction is cancelled
// at this boundary and MarkPhase returns false. Otherwise the call
// succeeds only when seq matches the active transaction and target is
// the immediate successor of its current phase. Commit goes through
// Complete, never MarkPhase.
func (s *Scheduler) MarkPhase(paneID schema.PaneID, seq schema.IntentSeq, target schema.LifecycleStage, now time.Time) bool {
	row := s.panes[paneID]
	if row == nil || !row.hasActive {
		return false
	}
	if row.superseded() {
		s.cancelActive(row, now)
		return false
	}
	if seq != row.activeSeq {
		return false
	}
	if target.Terminal() || target != row.activePhase.Next() {
		return false
	}
	row.activePhase = target
	row.phaseStartedAt = now
	s.appendEvent(paneID, schema.LifecycleDetail{
		Kind: phaseDetail[target],
		Seq:  seq,
	}, now)
	return true
}

// Complete commits an in-flight transaction. The supersession check
// runs first. Commit succeeds only from StagePresenting with seq equal
// to the pane's latest sequence; anything else is a stale commit,
// recorded as a Failed lifecycle event and refused. This is the sole
// guard against committing stale geometry.
func (s *Scheduler) Complete(paneID schema.PaneID, seq schema.IntentSeq) bool {
	row := s.panes[paneID]
	if row == nil || !row.hasActive {
		return false
	}
	now := s.clock()
	if row.superseded() {
		s.cancelActive(row, now)
		return false
	}
	if row.activePhase != schema.StagePresenting || seq != row.latestSeq {
		s.metrics.TransactionsFailed++
		s.appendEvent(paneID, schema.LifecycleDetail{
			Kind: schema.DetailStaleCommitRejected,
			Seq:  seq,
		}, now)
		s.logger.Debug("stale commit rejected",
			"pane", paneID, "seq", seq, "active_seq", row.activeSeq, "phase", row.activePhase)
		return false
	}
	row.completedSeq = seq
	row.clearActive()
	row.deferrals = 0
	s.metrics.TransactionsCompleted++
	s.appendEvent(paneID, schema.LifecycleDetail{
		Kind: schema.DetailActiveCompleted,
		Seq:  seq,
	}, now)
	return true
}
