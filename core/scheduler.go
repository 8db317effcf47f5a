package core

import (
	"context"
	"sort"
	"time"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Scheduler coordinates resize work across panes: it admits and
// coalesces intents, allocates a per-tick work budget across panes,
// domains, and tabs, and tracks each transaction through its lifecycle.
//
// A Scheduler is single-threaded cooperative. It holds no locks and is
// owned by exactly one control loop, which calls Submit, ScheduleFrame,
// MarkPhase, and Complete synchronously within a tick. Snapshots are
// copies and safe to hand to other goroutines.
type Scheduler struct {
	cfg    schema.SchedulerConfig
	logger pslog.Logger
	clock  func() time.Time

	panes  map[schema.PaneID]*paneRow
	storms *stormTracker
	events *eventLog

	nextEventSeq schema.EventSeq
	metrics      schema.SchedulerMetrics
}

// NewScheduler constructs a scheduler from a normalized config.
func NewScheduler(cfg schema.SchedulerConfig, deps SchedulerDeps) (*Scheduler, error) {
	normalized, err := schema.NormalizeSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		panes:  make(map[schema.PaneID]*paneRow),
		storms: newStormTracker(cfg.StormWindow, cfg.StormThresholdIntents),
		events: newEventLog(cfg.MaxLifecycleEvents),
	}, nil
}

// Config returns the normalized scheduler config.
func (s *Scheduler) Config() schema.SchedulerConfig { return s.cfg }

// Submit records a resize intent as the pane's latest request. It never
// starts work; scheduling decides when a transaction begins. The gate
// is the sole writer of latest sequence numbers.
func (s *Scheduler) Submit(intent schema.ResizeIntent) schema.SubmitOutcome {
	if s.cfg.EmergencyDisable {
		s.metrics.SuppressedByGate++
		return schema.SubmitOutcome{
			Status:         schema.SubmitSuppressedByKillSwitch,
			LegacyFallback: s.cfg.LegacyFallbackEnabled,
		}
	}
	if intent.PaneID == "" || intent.Seq == 0 || intent.Units <= 0 {
		s.metrics.RejectedInvalid++
		return schema.SubmitOutcome{Status: schema.SubmitRejected, Reason: schema.RejectInvalidIntent}
	}
	if intent.Class == "" {
		intent.Class = schema.WorkClassBackground
	}
	if intent.SubmittedAt.IsZero() {
		intent.SubmittedAt = s.clock()
	}
	row := s.panes[intent.PaneID]
	if row != nil && intent.Seq <= row.latestSeq {
		s.metrics.RejectedOutOfOrder++
		return schema.SubmitOutcome{Status: schema.SubmitRejected, Reason: schema.RejectOutOfOrder}
	}
	if row == nil {
		row = &paneRow{id: intent.PaneID}
		s.panes[intent.PaneID] = row
	}
	row.tabID = intent.TabID
	row.domain = intent.Domain
	row.class = intent.Class
	row.units = intent.Units
	row.cols = intent.Cols
	row.rows = intent.Rows
	row.latestSeq = intent.Seq
	row.submittedAt = intent.SubmittedAt
	s.storms.record(intent.TabID, intent.SubmittedAt)
	s.appendEvent(intent.PaneID, schema.LifecycleDetail{
		Kind: schema.DetailIntentQueued,
		Seq:  intent.Seq,
	}, intent.SubmittedAt)
	return schema.SubmitOutcome{Status: schema.SubmitAccepted}
}

// Snapshot captures a point-in-time copy of all pane rows, aggregate
// counts, cumulative metrics, and the gate state.
func (s *Scheduler) Snapshot() schema.SchedulerSnapshot {
	now := s.clock()
	panes := make([]schema.PaneSnapshot, 0, len(s.panes))
	pending, active := 0, 0
	for _, row := range s.panes {
		snap := row.snapshot()
		if snap.Pending() {
			pending++
		}
		if snap.HasActive {
			active++
		}
		panes = append(panes, snap)
	}
	sort.Slice(panes, func(i, j int) bool { return panes[i].PaneID < panes[j].PaneID })
	return schema.SchedulerSnapshot{
		TakenAt:      now,
		Panes:        panes,
		PendingTotal: pending,
		ActiveTotal:  active,
		StormTabs:    s.storms.active(now),
		Metrics:      s.metrics,
		Gate: schema.GateState{
			Active:         !s.cfg.EmergencyDisable,
			LegacyFallback: s.cfg.LegacyFallbackEnabled,
		},
	}
}

// DebugSnapshot extends Snapshot with the newest limit lifecycle
// events; limit <= 0 returns everything still retained.
func (s *Scheduler) DebugSnapshot(limit int) schema.DebugSnapshot {
	return schema.DebugSnapshot{
		SchedulerSnapshot: s.Snapshot(),
		Events:            s.events.tail(limit),
		NextEventSeq:      s.nextEventSeq + 1,
	}
}

// LifecycleEvents returns retained events with sequence numbers greater
// than since.
func (s *Scheduler) LifecycleEvents(since schema.EventSeq) []schema.LifecycleEvent {
	return s.events.since(since)
}

// Metrics returns the cumulative counters.
func (s *Scheduler) Metrics() schema.SchedulerMetrics { return s.metrics }

func (s *Scheduler) appendEvent(pane schema.PaneID, detail schema.LifecycleDetail, at time.Time) {
	s.nextEventSeq++
	s.events.append(schema.LifecycleEvent{
		Seq:    s.nextEventSeq,
		PaneID: pane,
		Stage:  detail.Kind.Stage(),
		Detail: detail,
		At:     at,
	})
}

// cancelActive cancels a superseded transaction at a phase boundary and
// returns the pane to pending against its latest sequence.
func (s *Scheduler) cancelActive(row *paneRow, at time.Time) {
	s.appendEvent(row.id, schema.LifecycleDetail{
		Kind:         schema.DetailActiveCancelledBySupersession,
		Seq:          row.activeSeq,
		SupersededBy: row.latestSeq,
	}, at)
	s.metrics.TransactionsCancelled++
	s.logger.Debug("resize transaction superseded",
		"pane", row.id, "cancelled_seq", row.activeSeq, "latest_seq", row.latestSeq)
	row.clearActive()
}
