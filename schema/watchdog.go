package schema

import "time"

// WatchdogSeverity classifies scheduler health by transaction stall age.
type WatchdogSeverity string

const (
	// SeverityHealthy means every pane is within the warn threshold.
	SeverityHealthy WatchdogSeverity = "healthy"
	// SeverityWarning means at least one pane exceeded the warn threshold.
	SeverityWarning WatchdogSeverity = "warning"
	// SeverityCritical means a pane exceeded the critical threshold or
	// too many panes are warning.
	SeverityCritical WatchdogSeverity = "critical"
	// SeveritySafeModeActive means the gate is closed or critical persisted.
	SeveritySafeModeActive WatchdogSeverity = "safe_mode_active"
)

var severityRank = map[WatchdogSeverity]int{
	SeverityHealthy:        0,
	SeverityWarning:        1,
	SeverityCritical:       2,
	SeveritySafeModeActive: 3,
}

// Rank orders severities from healthy to safe mode.
func (s WatchdogSeverity) Rank() int { return severityRank[s] }

// PaneStall describes one pane exceeding a watchdog threshold.
type PaneStall struct {
	PaneID   PaneID         `json:"pane_id"`
	Phase    LifecycleStage `json:"phase"`
	Age      time.Duration  `json:"age"`
	Critical bool           `json:"critical,omitempty"`
}

// WatchdogReport is the result of one watchdog evaluation.
type WatchdogReport struct {
	Severity    WatchdogSeverity `json:"severity"`
	Stalls      []PaneStall      `json:"stalls,omitempty"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

// DegradationTier is an operating mode consulted by the render loop.
// Each tier is strictly more conservative than the one before it.
type DegradationTier string

const (
	// TierFullQuality runs the scheduler with the full frame budget.
	TierFullQuality DegradationTier = "full_quality"
	// TierQualityReduced shrinks the frame budget to shed reflow work.
	TierQualityReduced DegradationTier = "quality_reduced"
	// TierCorrectnessGuarded halves the budget and prioritizes input echo.
	TierCorrectnessGuarded DegradationTier = "correctness_guarded"
	// TierEmergencyCompatibility bypasses the scheduler for synchronous
	// fallback resizes.
	TierEmergencyCompatibility DegradationTier = "emergency_compatibility"
)

var tierRank = map[DegradationTier]int{
	TierFullQuality:            0,
	TierQualityReduced:         1,
	TierCorrectnessGuarded:     2,
	TierEmergencyCompatibility: 3,
}

// Rank orders tiers from least to most conservative.
func (t DegradationTier) Rank() int { return tierRank[t] }

// DegradationSignals are the inputs to one ladder evaluation.
type DegradationSignals struct {
	Severity    WatchdogSeverity `json:"severity"`
	StormActive bool             `json:"storm_active,omitempty"`
	KillSwitch  bool             `json:"kill_switch,omitempty"`
}
