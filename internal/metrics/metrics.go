// Package metrics exports scheduler state as Prometheus metrics. The
// scheduler's counters are cumulative already, so the collector tracks
// the last-seen snapshot and advances Prometheus counters by delta.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"pkt.systems/paneflow/schema"
)

// Collector bridges debug snapshots into a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	intentsSuppressed    prometheus.Counter
	framesSuppressed     prometheus.Counter
	intentsRejected      prometheus.Counter
	stormEvents          prometheus.Counter
	stormPicksThrottled  prometheus.Counter
	domainPicksThrottled prometheus.Counter
	forcedBackgroundRuns prometheus.Counter
	oversubscribedPicks  prometheus.Counter
	transactions         *prometheus.CounterVec

	panesPending     prometheus.Gauge
	panesActive      prometheus.Gauge
	stormTabs        prometheus.Gauge
	watchdogSeverity prometheus.Gauge
	degradationTier  prometheus.Gauge

	framePicks prometheus.Histogram

	mu   sync.Mutex
	last schema.SchedulerMetrics
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		intentsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_intents_suppressed_total",
			Help: "Intents suppressed by the emergency kill switch",
		}),
		framesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_frames_suppressed_total",
			Help: "Scheduling ticks suppressed by the emergency kill switch",
		}),
		intentsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_intents_rejected_total",
			Help: "Intents rejected for caller-contract violations",
		}),
		stormEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_storm_events_total",
			Help: "Tabs newly entering the stormed state",
		}),
		stormPicksThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_storm_picks_throttled_total",
			Help: "Picks suppressed by per-tab storm caps",
		}),
		domainPicksThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_domain_picks_throttled_total",
			Help: "Picks deferred by per-domain budget shares",
		}),
		forcedBackgroundRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_forced_background_runs_total",
			Help: "Starved panes force-admitted past throttles",
		}),
		oversubscribedPicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paneflow_oversubscribed_picks_total",
			Help: "Picks admitted past the frame budget to avoid livelock",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paneflow_transactions_total",
			Help: "Resize transactions by terminal outcome",
		}, []string{"outcome"}),
		panesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneflow_panes_pending",
			Help: "Panes with an unclaimed latest intent",
		}),
		panesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneflow_panes_active",
			Help: "Panes with a transaction in flight",
		}),
		stormTabs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneflow_storm_tabs",
			Help: "Tabs currently over the storm threshold",
		}),
		watchdogSeverity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneflow_watchdog_severity",
			Help: "Watchdog severity rank (0 healthy .. 3 safe mode)",
		}),
		degradationTier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneflow_degradation_tier",
			Help: "Degradation tier rank (0 full quality .. 3 emergency)",
		}),
		framePicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paneflow_frame_transactions_started",
			Help:    "Transactions started per watchdog sampling interval",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		}),
	}
	c.registry.MustRegister(
		c.intentsSuppressed, c.framesSuppressed, c.intentsRejected,
		c.stormEvents, c.stormPicksThrottled, c.domainPicksThrottled,
		c.forcedBackgroundRuns, c.oversubscribedPicks, c.transactions,
		c.panesPending, c.panesActive, c.stormTabs,
		c.watchdogSeverity, c.degradationTier, c.framePicks,
	)
	return c
}

// Registry returns the private registry for promhttp export.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Update absorbs one post-tick publication. Counters in the snapshot
// are monotonic, so each call adds only what grew since the last one.
func (c *Collector) Update(snap schema.DebugSnapshot, report schema.WatchdogReport, tier schema.DegradationTier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := snap.Metrics
	c.intentsSuppressed.Add(delta(m.SuppressedByGate, c.last.SuppressedByGate))
	c.framesSuppressed.Add(delta(m.SuppressedFrames, c.last.SuppressedFrames))
	c.intentsRejected.Add(delta(m.RejectedOutOfOrder+m.RejectedInvalid, c.last.RejectedOutOfOrder+c.last.RejectedInvalid))
	c.stormEvents.Add(delta(m.StormEventsDetected, c.last.StormEventsDetected))
	c.stormPicksThrottled.Add(delta(m.StormPicksThrottled, c.last.StormPicksThrottled))
	c.domainPicksThrottled.Add(delta(m.DomainBudgetThrottled, c.last.DomainBudgetThrottled))
	c.forcedBackgroundRuns.Add(delta(m.ForcedBackgroundRuns, c.last.ForcedBackgroundRuns))
	c.oversubscribedPicks.Add(delta(m.OversubscribedPicks, c.last.OversubscribedPicks))
	c.transactions.WithLabelValues("completed").Add(delta(m.TransactionsCompleted, c.last.TransactionsCompleted))
	c.transactions.WithLabelValues("cancelled").Add(delta(m.TransactionsCancelled, c.last.TransactionsCancelled))
	c.transactions.WithLabelValues("failed").Add(delta(m.TransactionsFailed, c.last.TransactionsFailed))
	c.framePicks.Observe(delta(m.TransactionsStarted, c.last.TransactionsStarted))
	c.last = m

	c.panesPending.Set(float64(snap.PendingTotal))
	c.panesActive.Set(float64(snap.ActiveTotal))
	c.stormTabs.Set(float64(snap.StormTabs))
	c.watchdogSeverity.Set(float64(report.Severity.Rank()))
	c.degradationTier.Set(float64(tier.Rank()))
}

func delta(now, then uint64) float64 {
	if now <= then {
		return 0
	}
	return float64(now - then)
}
