package core

import (
	"testing"
	"time"

	"pkt.systems/paneflow/schema"
)

func scheduleOne(t *testing.T, s *Scheduler, pane string) schema.ScheduledWork {
	t.Helper()
	picks := s.ScheduleFrame(8)
	for _, p := range picks {
		if p.PaneID == schema.PaneID(pane) {
			return p
		}
	}
	t.Fatalf("pane %s not scheduled, picks %+v", pane, picks)
	return schema.ScheduledWork{}
}

func TestMarkPhaseRequiresImmediateSuccessor(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	clock.Advance(time.Millisecond)
	scheduleOne(t, s, "pane-1")

	if s.MarkPhase("pane-1", 1, schema.StagePresenting, clock.Now()) {
		t.Fatalf("skipping reflow phase succeeded")
	}
	if s.MarkPhase("pane-1", 1, schema.StageCompleted, clock.Now()) {
		t.Fatalf("terminal stage accepted by MarkPhase")
	}
	if !s.MarkPhase("pane-1", 1, schema.StageReflowing, clock.Now()) {
		t.Fatalf("reflow transition refused")
	}
	if s.MarkPhase("pane-1", 1, schema.StageReflowing, clock.Now()) {
		t.Fatalf("repeated phase transition succeeded")
	}
	if s.MarkPhase("pane-1", 2, schema.StagePresenting, clock.Now()) {
		t.Fatalf("wrong sequence accepted")
	}
	if !s.MarkPhase("pane-1", 1, schema.StagePresenting, clock.Now()) {
		t.Fatalf("present transition refused")
	}
}

func TestMarkPhaseCancelsSupersededTransaction(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	clock.Advance(time.Millisecond)
	scheduleOne(t, s, "pane-1")
	s.Submit(intent("pane-1", 2, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))

	if s.MarkPhase("pane-1", 1, schema.StageReflowing, clock.Now()) {
		t.Fatalf("superseded transaction advanced")
	}
	snap := s.Snapshot()
	if snap.ActiveTotal != 0 {
		t.Fatalf("active transaction survived supersession")
	}
	if snap.PendingTotal != 1 {
		t.Fatalf("pane not pending against new sequence: %+v", snap.Panes[0])
	}
	if snap.Metrics.TransactionsCancelled != 1 {
		t.Fatalf("cancelled counter = %d, want 1", snap.Metrics.TransactionsCancelled)
	}
}

func TestCompleteRefusesStaleSequence(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	s.Submit(intent("pane-1", 2, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	clock.Advance(time.Millisecond)
	scheduleOne(t, s, "pane-1")
	s.MarkPhase("pane-1", 2, schema.StageReflowing, clock.Now())
	s.MarkPhase("pane-1", 2, schema.StagePresenting, clock.Now())

	if s.Complete("pane-1", 1) {
		t.Fatalf("stale commit succeeded")
	}
	snap := s.Snapshot()
	if snap.Metrics.TransactionsFailed != 1 {
		t.Fatalf("failed counter = %d, want 1", snap.Metrics.TransactionsFailed)
	}
	if snap.ActiveTotal != 1 {
		t.Fatalf("live transaction dropped by stale commit")
	}
	var failed bool
	for _, ev := range s.LifecycleEvents(0) {
		if ev.Stage == schema.StageFailed && ev.Detail.Kind == schema.DetailStaleCommitRejected {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("no failed event recorded")
	}
	if !s.Complete("pane-1", 2) {
		t.Fatalf("valid commit refused after stale attempt")
	}
}

func TestCompleteRefusesPrematureCommit(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	clock.Advance(time.Millisecond)
	scheduleOne(t, s, "pane-1")

	if s.Complete("pane-1", 1) {
		t.Fatalf("commit succeeded from preparing phase")
	}
	if got := s.Metrics().TransactionsFailed; got != 1 {
		t.Fatalf("failed counter = %d, want 1", got)
	}
}

func TestCompleteCancelsSupersededTransaction(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	clock.Advance(time.Millisecond)
	scheduleOne(t, s, "pane-1")
	s.MarkPhase("pane-1", 1, schema.StageReflowing, clock.Now())
	s.MarkPhase("pane-1", 1, schema.StagePresenting, clock.Now())
	s.Submit(intent("pane-1", 2, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))

	if s.Complete("pane-1", 1) {
		t.Fatalf("commit succeeded after supersession")
	}
	snap := s.Snapshot()
	if snap.Metrics.TransactionsCancelled != 1 || snap.Metrics.TransactionsFailed != 0 {
		t.Fatalf("counters = %+v, want cancellation not failure", snap.Metrics)
	}
	if snap.Panes[0].CompletedSeq != 0 {
		t.Fatalf("superseded sequence recorded as completed")
	}
}

func TestOnlyLatestSequenceCompletes(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	for seq := uint64(1); seq <= 3; seq++ {
		out := s.Submit(intent("pane-1", seq, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
		if !out.Accepted() {
			t.Fatalf("submit seq %d: %+v", seq, out)
		}
		clock.Advance(time.Millisecond)
	}
	pick := scheduleOne(t, s, "pane-1")
	if pick.Seq != 3 {
		t.Fatalf("scheduled seq = %d, want coalesced latest 3", pick.Seq)
	}
	s.MarkPhase("pane-1", 3, schema.StageReflowing, clock.Now())
	s.MarkPhase("pane-1", 3, schema.StagePresenting, clock.Now())
	if !s.Complete("pane-1", 3) {
		t.Fatalf("latest commit refused")
	}
	snap := s.Snapshot()
	if snap.Panes[0].CompletedSeq != 3 {
		t.Fatalf("completed seq = %d, want 3", snap.Panes[0].CompletedSeq)
	}
	if snap.Panes[0].ConsecutiveDeferrals != 0 {
		t.Fatalf("deferrals not reset on commit")
	}
	if snap.PendingTotal != 0 {
		t.Fatalf("completed pane still pending")
	}
}

func TestMarkPhaseWithoutTransactionIsNoop(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, schema.SchedulerConfig{}, clock)
	if s.MarkPhase("ghost", 1, schema.StageReflowing, clock.Now()) {
		t.Fatalf("mark phase on unknown pane succeeded")
	}
	if s.Complete("ghost", 1) {
		t.Fatalf("complete on unknown pane succeeded")
	}
	s.Submit(intent("pane-1", 1, schema.WorkClassInteractive, 1, clock.Now(), schema.LocalDomain(), "tab-1"))
	if s.MarkPhase("pane-1", 1, schema.StageReflowing, clock.Now()) {
		t.Fatalf("mark phase succeeded before any transaction started")
	}
	if len(s.LifecycleEvents(0)) != 1 {
		t.Fatalf("no-op calls emitted events")
	}
}
