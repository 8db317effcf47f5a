package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/internal/eventbus"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Config tunes the render tick loop.
type Config struct {
	// TickInterval is the cadence of Run's tick loop.
	TickInterval time.Duration
	// FrameBudget is the work-unit budget handed to the scheduler each
	// tick, before tier adjustment.
	FrameBudget int
	// InboxDepth bounds the thread-safe intent handoff channel.
	InboxDepth int
	// WatchdogEvery is how many ticks pass between watchdog samples.
	WatchdogEvery int
	// EventLimit bounds the event tail carried by published snapshots.
	EventLimit int
	// Thresholds classify stalled transactions.
	Thresholds core.WatchdogThresholds
	// Ladder tunes degradation tier transitions.
	Ladder core.LadderConfig
}

func (c Config) normalized() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 16 * time.Millisecond
	}
	if c.FrameBudget <= 0 {
		c.FrameBudget = schema.DefaultFrameBudgetUnits
	}
	if c.InboxDepth <= 0 {
		c.InboxDepth = 1024
	}
	if c.WatchdogEvery <= 0 {
		c.WatchdogEvery = 8
	}
	if c.EventLimit <= 0 {
		c.EventLimit = 256
	}
	return c
}

// MetricsSink receives post-tick state for export.
type MetricsSink interface {
	Update(snap schema.DebugSnapshot, report schema.WatchdogReport, tier schema.DegradationTier)
}

// Deps are the driver's collaborators.
type Deps struct {
	Scheduler *core.Scheduler
	Reflower  Reflower
	Bus       *eventbus.Bus
	Metrics   MetricsSink
	Logger    pslog.Logger
	Clock     func() time.Time
}

// Driver owns one scheduler and is its only mutator. Producers on
// other goroutines hand intents off through Offer; everything else
// reads the immutable publications from LatestSnapshot, Watchdog, and
// Tier. Run and Tick must not be used concurrently: either the driver
// runs its own loop or one caller ticks it by hand.
type Driver struct {
	cfg      Config
	sched    *core.Scheduler
	reflower Reflower
	bus      *eventbus.Bus
	metrics  MetricsSink
	log      pslog.Logger
	clock    func() time.Time
	ladder   *core.DegradationLadder

	inbox   chan schema.ResizeIntent
	backlog atomic.Int64
	dropped atomic.Uint64

	snapshot atomic.Pointer[schema.DebugSnapshot]
	report   atomic.Pointer[schema.WatchdogReport]
	tier     atomic.Pointer[schema.DegradationTier]

	lastEventSeq schema.EventSeq
	appliedSync  map[schema.PaneID]schema.IntentSeq
	ticks        uint64
}

// New constructs a driver around an existing scheduler.
func New(cfg Config, deps Deps) (*Driver, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("scheduler dependency is required")
	}
	if deps.Reflower == nil {
		return nil, errors.New("reflower dependency is required")
	}
	cfg = cfg.normalized()
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	d := &Driver{
		cfg:         cfg,
		sched:       deps.Scheduler,
		reflower:    deps.Reflower,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		log:         logger,
		clock:       clock,
		ladder:      core.NewDegradationLadder(cfg.Ladder),
		inbox:       make(chan schema.ResizeIntent, cfg.InboxDepth),
		appliedSync: make(map[schema.PaneID]schema.IntentSeq),
	}
	tier := schema.TierFullQuality
	d.tier.Store(&tier)
	return d, nil
}

// Offer hands an intent to the tick loop without blocking. It is safe
// to call from any goroutine. A full inbox sheds the intent and
// returns false; the producer resubmits with a later sequence.
func (d *Driver) Offer(intent schema.ResizeIntent) bool {
	select {
	case d.inbox <- intent:
		return true
	default:
		d.dropped.Add(1)
		d.log.Trace("driver inbox full, intent shed", "pane", intent.PaneID, "seq", intent.Seq)
		return false
	}
}

// SetInputBacklog reports the depth of queued operator input. Read at
// the start of each tick to arm the input-latency guardrail.
func (d *Driver) SetInputBacklog(n int) {
	if n < 0 {
		n = 0
	}
	d.backlog.Store(int64(n))
}

// DroppedIntents counts intents shed by a full inbox.
func (d *Driver) DroppedIntents() uint64 { return d.dropped.Load() }

// LatestSnapshot returns the snapshot published after the most recent
// tick, or nil before the first tick.
func (d *Driver) LatestSnapshot() *schema.DebugSnapshot { return d.snapshot.Load() }

// Watchdog returns the most recent watchdog report.
func (d *Driver) Watchdog() schema.WatchdogReport {
	if r := d.report.Load(); r != nil {
		return *r
	}
	return schema.WatchdogReport{Severity: schema.SeverityHealthy}
}

// Tier returns the current degradation tier.
func (d *Driver) Tier() schema.DegradationTier { return *d.tier.Load() }

// Run drives the tick loop until the context is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.log.Info("driver start",
		"tick_interval", d.cfg.TickInterval,
		"frame_budget", d.cfg.FrameBudget,
		"inbox_depth", d.cfg.InboxDepth)
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("driver stop", "ticks", d.ticks, "dropped_intents", d.dropped.Load())
			return nil
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick runs one full scheduler tick: drain the inbox, schedule under
// the tier-adjusted budget, execute one phase step per pick, and
// publish the post-tick state.
func (d *Driver) Tick() {
	d.ticks++
	now := d.clock()
	d.drainInbox(now)

	tier := *d.tier.Load()
	if tier == schema.TierEmergencyCompatibility {
		d.applySyncFallback()
	} else {
		budget, backlog := d.effectiveBudget(tier)
		picks := d.sched.ScheduleFrameWithBacklog(budget, backlog)
		for _, work := range picks {
			d.step(work)
		}
	}

	debug := d.sched.DebugSnapshot(d.cfg.EventLimit)
	d.snapshot.Store(&debug)
	if d.bus != nil {
		d.bus.OnSnapshot(debug.SchedulerSnapshot)
		if fresh := d.sched.LifecycleEvents(d.lastEventSeq); len(fresh) > 0 {
			d.lastEventSeq = fresh[len(fresh)-1].Seq
			d.bus.OnLifecycle(fresh)
		}
	}
	if d.ticks%uint64(d.cfg.WatchdogEvery) == 0 {
		d.sample(debug, now)
	}
}

func (d *Driver) drainInbox(now time.Time) {
	for {
		select {
		case intent := <-d.inbox:
			if intent.SubmittedAt.IsZero() {
				intent.SubmittedAt = now
			}
			out := d.sched.Submit(intent)
			if out.Status == schema.SubmitSuppressedByKillSwitch && out.LegacyFallback {
				d.reflower.ApplySync(intent.PaneID, intent.Cols, intent.Rows)
			}
		default:
			return
		}
	}
}

// effectiveBudget applies the tier's budget haircut before the
// scheduler's own input guardrail runs.
func (d *Driver) effectiveBudget(tier schema.DegradationTier) (int, int) {
	budget := d.cfg.FrameBudget
	backlog := int(d.backlog.Load())
	switch tier {
	case schema.TierQualityReduced:
		budget = (budget*2 + 2) / 3
	case schema.TierCorrectnessGuarded:
		budget /= 2
		if budget < 1 {
			budget = 1
		}
		// Force the guardrail on: any backlog at all protects input echo.
		if backlog == 0 {
			backlog = 1
		}
	}
	return budget, backlog
}

// step executes the work of the pick's current phase and reports the
// advance. Each transaction therefore takes one pick per phase.
func (d *Driver) step(work schema.ScheduledWork) {
	now := d.clock()
	switch work.StartPhase {
	case schema.StagePreparing:
		if d.reflower.Prepare(work).OK {
			d.sched.MarkPhase(work.PaneID, work.Seq, schema.StageReflowing, d.clock())
		}
	case schema.StageReflowing:
		if d.reflower.Reflow(work).OK {
			d.sched.MarkPhase(work.PaneID, work.Seq, schema.StagePresenting, d.clock())
		}
	case schema.StagePresenting:
		if d.reflower.Present(work).OK {
			d.sched.Complete(work.PaneID, work.Seq)
		}
	default:
		d.log.Warn("driver pick in unexpected phase", "pane", work.PaneID, "phase", work.StartPhase, "at", now)
	}
}

// applySyncFallback resizes panes synchronously, bypassing frame
// scheduling. Each latest sequence is applied at most once. In-flight
// transactions are then stepped straight through to commit so their
// stall ages clear and the ladder can recover; panes that were still
// pending stay pending and reschedule normally once the tier improves.
func (d *Driver) applySyncFallback() {
	snap := d.sched.Snapshot()
	applied := 0
	for _, pane := range snap.Panes {
		if pane.LatestSeq > pane.CompletedSeq && d.appliedSync[pane.PaneID] < pane.LatestSeq {
			d.reflower.ApplySync(pane.PaneID, pane.Cols, pane.Rows)
			d.appliedSync[pane.PaneID] = pane.LatestSeq
			applied++
		}
		if pane.HasActive {
			d.resolveActive(pane)
		}
	}
	if applied > 0 {
		d.log.Warn("emergency fallback applied resizes", "panes", applied)
	}
}

// resolveActive walks an in-flight transaction through its remaining
// phases and commits it. A superseded transaction cancels at the first
// MarkPhase boundary instead; its pane is picked up next tick.
func (d *Driver) resolveActive(pane schema.PaneSnapshot) {
	phase := pane.ActivePhase
	for phase != schema.StagePresenting {
		next := phase.Next()
		if next == "" || !d.sched.MarkPhase(pane.PaneID, pane.ActiveSeq, next, d.clock()) {
			return
		}
		phase = next
	}
	d.sched.Complete(pane.PaneID, pane.ActiveSeq)
}

func (d *Driver) sample(debug schema.DebugSnapshot, now time.Time) {
	report := core.EvaluateWatchdog(debug.SchedulerSnapshot, now, d.cfg.Thresholds)
	prev := *d.tier.Load()
	tier := d.ladder.Observe(schema.DegradationSignals{
		Severity:    report.Severity,
		StormActive: debug.StormTabs > 0,
		KillSwitch:  !debug.Gate.Active,
	})
	d.report.Store(&report)
	d.tier.Store(&tier)
	if tier != prev {
		d.log.Warn("degradation tier changed", "from", prev, "to", tier, "severity", report.Severity)
	}
	if d.bus != nil {
		d.bus.OnWatchdog(report, tier)
	}
	if d.metrics != nil {
		d.metrics.Update(debug, report, tier)
	}
}
