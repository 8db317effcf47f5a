package audit

import (
	"fmt"

	"pkt.systems/paneflow/schema"
)

type txKey struct {
	pane schema.PaneID
	seq  schema.IntentSeq
}

var stageOrder = map[schema.LifecycleStage]int{
	schema.StageQueued:     0,
	schema.StagePreparing:  1,
	schema.StageReflowing:  2,
	schema.StagePresenting: 3,
}

// CheckLifecycleInvariants verifies an event log slice: event sequence
// numbers strictly increase, every stage matches its detail tag, each
// transaction's events respect forward phase order and emit at most one
// terminal event, and transactions never overlap on one pane.
//
// Failed events record refused commits against arbitrary sequences and
// are exempt from the per-transaction checks. The slice must be a
// contiguous suffix of the log: eviction of old entries is fine, gaps
// in the middle are not.
func CheckLifecycleInvariants(events []schema.LifecycleEvent) Report {
	var rep Report
	var lastSeq schema.EventSeq
	lastStage := make(map[txKey]int)
	closed := make(map[txKey]schema.LifecycleStage)
	open := make(map[schema.PaneID]schema.IntentSeq)
	for i, ev := range events {
		if i > 0 && ev.Seq <= lastSeq {
			rep.add(Violation{
				Code:     CodeEventSeqOrder,
				PaneID:   ev.PaneID,
				EventSeq: ev.Seq,
				Detail:   fmt.Sprintf("event seq %d after %d", ev.Seq, lastSeq),
			})
		}
		lastSeq = ev.Seq
		if want := ev.Detail.Kind.Stage(); ev.Stage != want {
			rep.add(Violation{
				Code:     CodeStageDetailMismatch,
				PaneID:   ev.PaneID,
				EventSeq: ev.Seq,
				Detail:   fmt.Sprintf("stage %q, detail %q implies %q", ev.Stage, ev.Detail.Kind, want),
			})
			continue
		}
		if ev.Stage == schema.StageFailed {
			continue
		}
		key := txKey{pane: ev.PaneID, seq: ev.Detail.Seq}
		if terminal, ok := closed[key]; ok {
			rep.add(Violation{
				Code:     CodeEventAfterTerminal,
				PaneID:   ev.PaneID,
				Seq:      ev.Detail.Seq,
				EventSeq: ev.Seq,
				Detail:   fmt.Sprintf("%q event after terminal %q", ev.Stage, terminal),
			})
			continue
		}
		if ev.Stage != schema.StageQueued {
			if cur, ok := open[ev.PaneID]; ok && cur != ev.Detail.Seq {
				rep.add(Violation{
					Code:     CodeParallelTransactions,
					PaneID:   ev.PaneID,
					Seq:      ev.Detail.Seq,
					EventSeq: ev.Seq,
					Detail:   fmt.Sprintf("%q for seq %d while seq %d in flight", ev.Stage, ev.Detail.Seq, cur),
				})
			}
		}
		if ev.Stage.Terminal() {
			closed[key] = ev.Stage
			if open[ev.PaneID] == ev.Detail.Seq {
				delete(open, ev.PaneID)
			}
			if ev.Stage == schema.StageCancelled && ev.Detail.SupersededBy <= ev.Detail.Seq {
				rep.add(Violation{
					Code:     CodeBadSupersession,
					PaneID:   ev.PaneID,
					Seq:      ev.Detail.Seq,
					EventSeq: ev.Seq,
					Detail:   fmt.Sprintf("cancel of seq %d superseded by %d", ev.Detail.Seq, ev.Detail.SupersededBy),
				})
			}
			continue
		}
		order := stageOrder[ev.Stage]
		if prev, ok := lastStage[key]; ok && order <= prev {
			rep.add(Violation{
				Code:     CodeStageRegression,
				PaneID:   ev.PaneID,
				Seq:      ev.Detail.Seq,
				EventSeq: ev.Seq,
				Detail:   fmt.Sprintf("stage %q does not advance the transaction", ev.Stage),
			})
		}
		lastStage[key] = order
		if ev.Stage == schema.StagePreparing {
			open[ev.PaneID] = ev.Detail.Seq
		}
	}
	return rep
}
