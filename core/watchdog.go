package core

import (
	"sort"
	"time"

	"pkt.systems/paneflow/schema"
)

// WatchdogThresholds classify transaction stall ages.
type WatchdogThresholds struct {
	// Warn is the phase age at which a pane counts as stalled.
	Warn time.Duration
	// Critical is the phase age at which a single pane escalates severity.
	Critical time.Duration
	// CriticalWarnCount is the number of warning panes treated as critical.
	CriticalWarnCount int
}

const (
	// DefaultWatchdogWarn is the default warn stall age.
	DefaultWatchdogWarn = 2 * time.Second
	// DefaultWatchdogCritical is the default critical stall age.
	DefaultWatchdogCritical = 10 * time.Second
	// DefaultCriticalWarnCount is the default warning-pane count treated as critical.
	DefaultCriticalWarnCount = 4
	// DefaultSustainedCriticalObs is the default sustained-critical evaluation count.
	DefaultSustainedCriticalObs = 3
	// DefaultLadderWorsenStreak is the default streak before a tier worsens.
	DefaultLadderWorsenStreak = 2
	// DefaultLadderRecoverStreak is the default streak before a tier recovers.
	DefaultLadderRecoverStreak = 2
)

func (t WatchdogThresholds) normalized() WatchdogThresholds {
	if t.Warn <= 0 {
		t.Warn = DefaultWatchdogWarn
	}
	if t.Critical <= 0 {
		t.Critical = DefaultWatchdogCritical
	}
	if t.Critical < t.Warn {
		t.Critical = t.Warn
	}
	if t.CriticalWarnCount <= 0 {
		t.CriticalWarnCount = DefaultCriticalWarnCount
	}
	return t
}

// EvaluateWatchdog classifies scheduler health from a snapshot. It is a
// pure function: same snapshot, same now, same report. A closed gate
// reports SeveritySafeModeActive regardless of stalls.
func EvaluateWatchdog(snap schema.SchedulerSnapshot, now time.Time, thr WatchdogThresholds) schema.WatchdogReport {
	thr = thr.normalized()
	var stalls []schema.PaneStall
	warnCount, criticalCount := 0, 0
	for _, pane := range snap.Panes {
		if !pane.HasActive {
			continue
		}
		age := now.Sub(pane.PhaseStartedAt)
		if age < thr.Warn {
			continue
		}
		stall := schema.PaneStall{
			PaneID: pane.PaneID,
			Phase:  pane.ActivePhase,
			Age:    age,
		}
		if age >= thr.Critical {
			stall.Critical = true
			criticalCount++
		} else {
			warnCount++
		}
		stalls = append(stalls, stall)
	}
	sort.Slice(stalls, func(i, j int) bool { return stalls[i].Age > stalls[j].Age })

	severity := schema.SeverityHealthy
	switch {
	case !snap.Gate.Active:
		severity = schema.SeveritySafeModeActive
	case criticalCount > 0 || warnCount >= thr.CriticalWarnCount:
		severity = schema.SeverityCritical
	case warnCount > 0:
		severity = schema.SeverityWarning
	}
	return schema.WatchdogReport{
		Severity:    severity,
		Stalls:      stalls,
		EvaluatedAt: now,
	}
}

// LadderConfig tunes degradation tier transitions.
type LadderConfig struct {
	// WorsenStreak is how many consecutive evaluations must target a
	// worse tier before the ladder moves. Escalation to
	// TierEmergencyCompatibility applies immediately.
	WorsenStreak int
	// RecoverStreak is the equivalent for moves toward full quality.
	RecoverStreak int
	// SustainedCriticalObs is how many consecutive critical evaluations
	// count as sustained, entering safe mode.
	SustainedCriticalObs int
}

func (c LadderConfig) normalized() LadderConfig {
	if c.WorsenStreak <= 0 {
		c.WorsenStreak = DefaultLadderWorsenStreak
	}
	if c.RecoverStreak <= 0 {
		c.RecoverStreak = DefaultLadderRecoverStreak
	}
	if c.SustainedCriticalObs <= 0 {
		c.SustainedCriticalObs = DefaultSustainedCriticalObs
	}
	return c
}

// DegradationLadder maps watchdog severity and auxiliary signals onto
// an operating tier. The target tier is a pure function of the current
// signals; a short streak requirement keeps the ladder from flapping
// when signals oscillate around a threshold.
type DegradationLadder struct {
	cfg         LadderConfig
	tier        schema.DegradationTier
	pending     schema.DegradationTier
	streak      int
	criticalRun int
}

// NewDegradationLadder starts a ladder at TierFullQuality.
func NewDegradationLadder(cfg LadderConfig) *DegradationLadder {
	return &DegradationLadder{cfg: cfg.normalized(), tier: schema.TierFullQuality}
}

// Tier returns the current operating tier.
func (l *DegradationLadder) Tier() schema.DegradationTier { return l.tier }

// Observe feeds one evaluation into the ladder and returns the tier the
// render loop should operate at.
func (l *DegradationLadder) Observe(sig schema.DegradationSignals) schema.DegradationTier {
	if sig.Severity == schema.SeverityCritical {
		l.criticalRun++
	} else {
		l.criticalRun = 0
	}
	target := baseTier(sig)
	if sig.Severity == schema.SeverityCritical && l.criticalRun >= l.cfg.SustainedCriticalObs {
		target = schema.TierEmergencyCompatibility
	}
	if target == l.tier {
		l.pending = ""
		l.streak = 0
		return l.tier
	}
	if target == schema.TierEmergencyCompatibility && target.Rank() > l.tier.Rank() {
		l.apply(target)
		return l.tier
	}
	if l.pending == target {
		l.streak++
	} else {
		l.pending = target
		l.streak = 1
	}
	need := l.cfg.WorsenStreak
	if target.Rank() < l.tier.Rank() {
		need = l.cfg.RecoverStreak
	}
	if l.streak >= need {
		l.apply(target)
	}
	return l.tier
}

func (l *DegradationLadder) apply(target schema.DegradationTier) {
	l.tier = target
	l.pending = ""
	l.streak = 0
}

func baseTier(sig schema.DegradationSignals) schema.DegradationTier {
	switch {
	case sig.KillSwitch || sig.Severity == schema.SeveritySafeModeActive:
		return schema.TierEmergencyCompatibility
	case sig.Severity == schema.SeverityCritical:
		return schema.TierCorrectnessGuarded
	case sig.Severity == schema.SeverityWarning || sig.StormActive:
		return schema.TierQualityReduced
	default:
		return schema.TierFullQuality
	}
}
