package driver

import (
	"sync"
	"testing"
	"time"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/schema"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingReflower struct {
	prepared  []schema.PaneID
	reflowed  []schema.PaneID
	presented []schema.PaneID
	synced    []schema.PaneID
	failPhase schema.LifecycleStage
}

func (r *recordingReflower) Prepare(w schema.ScheduledWork) PhaseResult {
	r.prepared = append(r.prepared, w.PaneID)
	return PhaseResult{OK: r.failPhase != schema.StagePreparing}
}

func (r *recordingReflower) Reflow(w schema.ScheduledWork) PhaseResult {
	r.reflowed = append(r.reflowed, w.PaneID)
	return PhaseResult{OK: r.failPhase != schema.StageReflowing}
}

func (r *recordingReflower) Present(w schema.ScheduledWork) PhaseResult {
	r.presented = append(r.presented, w.PaneID)
	return PhaseResult{OK: r.failPhase != schema.StagePresenting}
}

func (r *recordingReflower) ApplySync(pane schema.PaneID, cols, rows int) {
	r.synced = append(r.synced, pane)
}

func newTestDriver(t *testing.T, schedCfg schema.SchedulerConfig, cfg Config, clock *fakeClock, rf Reflower) (*Driver, *core.Scheduler) {
	t.Helper()
	sched, err := core.NewScheduler(schedCfg, core.SchedulerDeps{Clock: clock.Now})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	d, err := New(cfg, Deps{Scheduler: sched, Reflower: rf, Clock: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, sched
}

func testIntent(pane schema.PaneID, seq schema.IntentSeq, at time.Time) schema.ResizeIntent {
	return schema.ResizeIntent{
		PaneID:      pane,
		Seq:         seq,
		Class:       schema.WorkClassInteractive,
		Units:       1,
		SubmittedAt: at,
		Domain:      schema.LocalDomain(),
		TabID:       "tab-1",
		Cols:        120,
		Rows:        40,
	}
}

// One intent rides the inbox through three ticks to commit.
func TestTickRunsTransactionToCompletion(t *testing.T) {
	clock := newFakeClock()
	rf := &recordingReflower{}
	d, sched := newTestDriver(t, schema.SchedulerConfig{}, Config{FrameBudget: 4}, clock, rf)

	if !d.Offer(testIntent("pane-1", 1, clock.Now())) {
		t.Fatalf("offer rejected")
	}
	for i := 0; i < 3; i++ {
		d.Tick()
		clock.Advance(16 * time.Millisecond)
	}
	if len(rf.prepared) != 1 || len(rf.reflowed) != 1 || len(rf.presented) != 1 {
		t.Fatalf("phase calls = %d/%d/%d, want 1/1/1", len(rf.prepared), len(rf.reflowed), len(rf.presented))
	}
	m := sched.Metrics()
	if m.TransactionsCompleted != 1 {
		t.Fatalf("completed = %d, want 1", m.TransactionsCompleted)
	}
	snap := d.LatestSnapshot()
	if snap == nil || snap.ActiveTotal != 0 || snap.PendingTotal != 0 {
		t.Fatalf("snapshot = %+v, want drained", snap)
	}
}

// A failed phase leaves the transaction in place for the next tick.
func TestFailedPhaseRetriesNextTick(t *testing.T) {
	clock := newFakeClock()
	rf := &recordingReflower{failPhase: schema.StageReflowing}
	d, sched := newTestDriver(t, schema.SchedulerConfig{}, Config{FrameBudget: 4}, clock, rf)

	d.Offer(testIntent("pane-1", 1, clock.Now()))
	d.Tick() // prepare, advance to reflowing
	d.Tick() // reflow fails, no advance
	if len(rf.reflowed) != 1 {
		t.Fatalf("reflow calls = %d, want 1", len(rf.reflowed))
	}
	rf.failPhase = ""
	d.Tick() // reflow retried
	d.Tick() // present, commit
	if sched.Metrics().TransactionsCompleted != 1 {
		t.Fatalf("completed = %d, want 1", sched.Metrics().TransactionsCompleted)
	}
}

func TestOfferShedsWhenInboxFull(t *testing.T) {
	clock := newFakeClock()
	d, _ := newTestDriver(t, schema.SchedulerConfig{}, Config{InboxDepth: 2}, clock, &recordingReflower{})
	if !d.Offer(testIntent("pane-1", 1, clock.Now())) || !d.Offer(testIntent("pane-1", 2, clock.Now())) {
		t.Fatalf("offers within depth rejected")
	}
	if d.Offer(testIntent("pane-1", 3, clock.Now())) {
		t.Fatalf("offer beyond depth accepted")
	}
	if d.DroppedIntents() != 1 {
		t.Fatalf("dropped = %d, want 1", d.DroppedIntents())
	}
}

// Suppressed submits with legacy fallback go through ApplySync.
func TestKillSwitchRoutesToSyncFallback(t *testing.T) {
	clock := newFakeClock()
	rf := &recordingReflower{}
	d, _ := newTestDriver(t, schema.SchedulerConfig{
		EmergencyDisable:      true,
		LegacyFallbackEnabled: true,
	}, Config{}, clock, rf)

	d.Offer(testIntent("pane-1", 1, clock.Now()))
	d.Tick()
	if len(rf.synced) != 1 || rf.synced[0] != "pane-1" {
		t.Fatalf("synced = %v, want [pane-1]", rf.synced)
	}
	if len(rf.prepared) != 0 {
		t.Fatalf("prepared = %v, want none", rf.prepared)
	}
}

// Sustained critical stalls climb the ladder into the emergency tier,
// where stalled work resolves synchronously and the ladder recovers.
func TestLadderEscalatesAndEmergencyResolvesStalls(t *testing.T) {
	clock := newFakeClock()
	rf := &recordingReflower{failPhase: schema.StageReflowing}
	cfg := Config{
		FrameBudget:   4,
		WatchdogEvery: 1,
		Thresholds: core.WatchdogThresholds{
			Warn:     50 * time.Millisecond,
			Critical: 100 * time.Millisecond,
		},
		Ladder: core.LadderConfig{SustainedCriticalObs: 2},
	}
	d, sched := newTestDriver(t, schema.SchedulerConfig{}, cfg, clock, rf)

	d.Offer(testIntent("pane-1", 1, clock.Now()))
	d.Tick() // transaction starts, reflow blocked from here on
	for i := 0; i < 4 && d.Tier() != schema.TierEmergencyCompatibility; i++ {
		clock.Advance(150 * time.Millisecond)
		d.Tick()
	}
	if d.Tier() != schema.TierEmergencyCompatibility {
		t.Fatalf("tier = %s, want emergency", d.Tier())
	}
	rf.failPhase = ""
	d.Tick()
	if len(rf.synced) != 1 {
		t.Fatalf("synced = %v, want pane-1 once", rf.synced)
	}
	if sched.Metrics().TransactionsCompleted != 1 {
		t.Fatalf("completed = %d, want 1", sched.Metrics().TransactionsCompleted)
	}
}

// TierCorrectnessGuarded halves the budget and forces the guardrail.
func TestEffectiveBudgetPerTier(t *testing.T) {
	clock := newFakeClock()
	d, _ := newTestDriver(t, schema.SchedulerConfig{}, Config{FrameBudget: 9}, clock, &recordingReflower{})
	cases := []struct {
		tier    schema.DegradationTier
		budget  int
		backlog int
	}{
		{schema.TierFullQuality, 9, 0},
		{schema.TierQualityReduced, 6, 0},
		{schema.TierCorrectnessGuarded, 4, 1},
	}
	for _, tc := range cases {
		budget, backlog := d.effectiveBudget(tc.tier)
		if budget != tc.budget || backlog != tc.backlog {
			t.Fatalf("tier %s: got %d/%d, want %d/%d", tc.tier, budget, backlog, tc.budget, tc.backlog)
		}
	}
}

func TestSetInputBacklogClampsNegative(t *testing.T) {
	clock := newFakeClock()
	d, _ := newTestDriver(t, schema.SchedulerConfig{}, Config{}, clock, &recordingReflower{})
	d.SetInputBacklog(-3)
	if got := d.backlog.Load(); got != 0 {
		t.Fatalf("backlog = %d, want 0", got)
	}
}
