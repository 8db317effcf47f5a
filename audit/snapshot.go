package audit

import (
	"fmt"

	"pkt.systems/paneflow/schema"
)

// CheckSnapshotInvariants verifies a scheduler snapshot: pending_total
// counts exactly the rows with an unclaimed latest sequence,
// active_total counts exactly the rows with a transaction in flight,
// and every row's sequence and phase fields are mutually consistent. A
// row is never pending and active at once because pending requires no
// transaction in flight.
func CheckSnapshotInvariants(snap schema.SchedulerSnapshot) Report {
	var rep Report
	seen := make(map[schema.PaneID]bool, len(snap.Panes))
	pending, active := 0, 0
	for _, pane := range snap.Panes {
		if seen[pane.PaneID] {
			rep.add(Violation{
				Code:   CodeDuplicatePane,
				PaneID: pane.PaneID,
				Detail: "pane appears in more than one row",
			})
		}
		seen[pane.PaneID] = true
		if pane.Pending() {
			pending++
		}
		if pane.HasActive {
			active++
		}
		checkPane(&rep, pane)
	}
	if snap.PendingTotal != pending {
		rep.add(Violation{
			Code:   CodePendingCountMismatch,
			Detail: fmt.Sprintf("pending_total %d, counted %d", snap.PendingTotal, pending),
		})
	}
	if snap.ActiveTotal != active {
		rep.add(Violation{
			Code:   CodeActiveCountMismatch,
			Detail: fmt.Sprintf("active_total %d, counted %d", snap.ActiveTotal, active),
		})
	}
	return rep
}

func checkPane(rep *Report, pane schema.PaneSnapshot) {
	if pane.LatestSeq == 0 {
		rep.add(Violation{
			Code:   CodeZeroLatestSeq,
			PaneID: pane.PaneID,
			Detail: "row exists without an admitted intent",
		})
	}
	if pane.CompletedSeq > pane.LatestSeq {
		rep.add(Violation{
			Code:   CodeCompletedAheadOfLatest,
			PaneID: pane.PaneID,
			Seq:    pane.CompletedSeq,
			Detail: fmt.Sprintf("completed seq %d ahead of latest %d", pane.CompletedSeq, pane.LatestSeq),
		})
	}
	if !pane.HasActive {
		if pane.ActiveSeq != 0 || pane.ActivePhase != "" {
			rep.add(Violation{
				Code:   CodeIdleResidue,
				PaneID: pane.PaneID,
				Seq:    pane.ActiveSeq,
				Detail: fmt.Sprintf("idle row carries active seq %d phase %q", pane.ActiveSeq, pane.ActivePhase),
			})
		}
		return
	}
	if pane.ActiveSeq > pane.LatestSeq {
		rep.add(Violation{
			Code:   CodeActiveAheadOfLatest,
			PaneID: pane.PaneID,
			Seq:    pane.ActiveSeq,
			Detail: fmt.Sprintf("active seq %d ahead of latest %d", pane.ActiveSeq, pane.LatestSeq),
		})
	}
	if pane.ActiveSeq <= pane.CompletedSeq {
		rep.add(Violation{
			Code:   CodeActiveBehindCompleted,
			PaneID: pane.PaneID,
			Seq:    pane.ActiveSeq,
			Detail: fmt.Sprintf("active seq %d not ahead of completed %d", pane.ActiveSeq, pane.CompletedSeq),
		})
	}
	switch pane.ActivePhase {
	case schema.StagePreparing, schema.StageReflowing, schema.StagePresenting:
	default:
		rep.add(Violation{
			Code:   CodeBadActivePhase,
			PaneID: pane.PaneID,
			Seq:    pane.ActiveSeq,
			Detail: fmt.Sprintf("active transaction in phase %q", pane.ActivePhase),
		})
	}
}
