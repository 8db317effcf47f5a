package schema

import (
	"errors"
	"strings"
	"time"
)

// SchedulerConfig defines limits and policy for one scheduler instance.
// It is immutable once the scheduler is constructed.
type SchedulerConfig struct {
	// FrameBudgetUnits is the default per-tick work budget.
	FrameBudgetUnits int
	// DomainBudgetEnabled splits the budget proportionally across domains.
	DomainBudgetEnabled bool
	// StormWindow is the sliding window for per-tab storm detection.
	StormWindow time.Duration
	// StormThresholdIntents is the arrival count above which a tab storms.
	StormThresholdIntents int
	// MaxStormPicksPerTab caps picks for a stormed tab within one tick.
	MaxStormPicksPerTab int
	// AllowSingleOversubscription admits one over-budget pick when it is
	// the only candidate left, so an isolated large item cannot livelock.
	AllowSingleOversubscription bool
	// MaxDeferralsBeforeForce is the consecutive-deferral count at which
	// a pane is force-admitted past storm and domain throttles.
	MaxDeferralsBeforeForce int
	// InputGuardrailEnabled reserves budget for input echo under backlog.
	InputGuardrailEnabled bool
	// InputBacklogThreshold is the backlog depth that trips the guardrail.
	InputBacklogThreshold int
	// InputReserveUnits is subtracted from the budget while tripped.
	InputReserveUnits int
	// MaxLifecycleEvents bounds the in-memory event log.
	MaxLifecycleEvents int
	// EmergencyDisable closes the admission gate entirely.
	EmergencyDisable bool
	// LegacyFallbackEnabled tells suppressed callers to resize synchronously.
	LegacyFallbackEnabled bool
}

// Scheduler config defaults.
const (
	DefaultFrameBudgetUnits      = 8
	DefaultStormWindow           = 250 * time.Millisecond
	DefaultStormThresholdIntents = 12
	DefaultMaxStormPicksPerTab   = 2
	DefaultMaxDeferralsBefore    = 3
	DefaultInputBacklogThreshold = 4
	DefaultInputReserveUnits     = 2
	DefaultMaxLifecycleEvents    = 4096
)

// NormalizeSchedulerConfig applies defaults and validates the config.
func NormalizeSchedulerConfig(cfg SchedulerConfig) (SchedulerConfig, error) {
	if cfg.FrameBudgetUnits <= 0 {
		cfg.FrameBudgetUnits = DefaultFrameBudgetUnits
	}
	if cfg.StormWindow <= 0 {
		cfg.StormWindow = DefaultStormWindow
	}
	if cfg.StormThresholdIntents <= 0 {
		cfg.StormThresholdIntents = DefaultStormThresholdIntents
	}
	if cfg.MaxStormPicksPerTab <= 0 {
		cfg.MaxStormPicksPerTab = DefaultMaxStormPicksPerTab
	}
	if cfg.MaxDeferralsBeforeForce <= 0 {
		cfg.MaxDeferralsBeforeForce = DefaultMaxDeferralsBefore
	}
	if cfg.InputBacklogThreshold <= 0 {
		cfg.InputBacklogThreshold = DefaultInputBacklogThreshold
	}
	if cfg.InputReserveUnits <= 0 {
		cfg.InputReserveUnits = DefaultInputReserveUnits
	}
	if cfg.MaxLifecycleEvents <= 0 {
		cfg.MaxLifecycleEvents = DefaultMaxLifecycleEvents
	}
	if cfg.InputGuardrailEnabled && cfg.InputReserveUnits >= cfg.FrameBudgetUnits {
		return SchedulerConfig{}, errors.New("input reserve must be smaller than the frame budget")
	}
	return cfg, nil
}

// ValidateOperatorID ensures an operator id matches [a-z0-9._-] with no
// normalization.
func ValidateOperatorID(id OperatorID) error {
	raw := string(id)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidOperator
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidOperator
	}
	return nil
}
