package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Scheduler     SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Driver        DriverConfig    `mapstructure:"driver" yaml:"driver"`
	Console       ConsoleConfig   `mapstructure:"console" yaml:"console"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Auth          AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Sim           SimConfig       `mapstructure:"sim" yaml:"sim"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// SchedulerConfig controls admission and frame scheduling policy.
type SchedulerConfig struct {
	FrameBudgetUnits            int  `mapstructure:"frame_budget_units" yaml:"frame_budget_units"`
	DomainBudgetEnabled         bool `mapstructure:"domain_budget_enabled" yaml:"domain_budget_enabled"`
	StormWindowMillis           int  `mapstructure:"storm_window_ms" yaml:"storm_window_ms"`
	StormThresholdIntents       int  `mapstructure:"storm_threshold_intents" yaml:"storm_threshold_intents"`
	MaxStormPicksPerTab         int  `mapstructure:"max_storm_picks_per_tab" yaml:"max_storm_picks_per_tab"`
	AllowSingleOversubscription bool `mapstructure:"allow_single_oversubscription" yaml:"allow_single_oversubscription"`
	MaxDeferralsBeforeForce     int  `mapstructure:"max_deferrals_before_force" yaml:"max_deferrals_before_force"`
	InputGuardrailEnabled       bool `mapstructure:"input_guardrail_enabled" yaml:"input_guardrail_enabled"`
	InputBacklogThreshold       int  `mapstructure:"input_backlog_threshold" yaml:"input_backlog_threshold"`
	InputReserveUnits           int  `mapstructure:"input_reserve_units" yaml:"input_reserve_units"`
	MaxLifecycleEvents          int  `mapstructure:"max_lifecycle_events" yaml:"max_lifecycle_events"`
	EmergencyDisable            bool `mapstructure:"emergency_disable" yaml:"emergency_disable"`
	LegacyFallbackEnabled       bool `mapstructure:"legacy_fallback_enabled" yaml:"legacy_fallback_enabled"`
}

// DriverConfig controls the render tick loop and its watchdog.
type DriverConfig struct {
	TickIntervalMillis     int `mapstructure:"tick_interval_ms" yaml:"tick_interval_ms"`
	InboxDepth             int `mapstructure:"inbox_depth" yaml:"inbox_depth"`
	WatchdogWarnMillis     int `mapstructure:"watchdog_warn_ms" yaml:"watchdog_warn_ms"`
	WatchdogCriticalMillis int `mapstructure:"watchdog_critical_ms" yaml:"watchdog_critical_ms"`
	CriticalWarnCount      int `mapstructure:"critical_warn_count" yaml:"critical_warn_count"`
	LadderWorsenStreak     int `mapstructure:"ladder_worsen_streak" yaml:"ladder_worsen_streak"`
	LadderRecoverStreak    int `mapstructure:"ladder_recover_streak" yaml:"ladder_recover_streak"`
	SustainedCriticalObs   int `mapstructure:"sustained_critical_obs" yaml:"sustained_critical_obs"`
}

// ConsoleConfig configures the SSH operator console.
type ConsoleConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath string `mapstructure:"host_key_path" yaml:"host_key_path"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AuthConfig configures operator storage and seed accounts.
type AuthConfig struct {
	OperatorFile  string         `mapstructure:"operator_file" yaml:"operator_file"`
	SeedOperators []SeedOperator `mapstructure:"seed_operators" yaml:"seed_operators"`
}

// SeedOperator seeds an operator record in the auth store.
type SeedOperator struct {
	Name          string `mapstructure:"name" yaml:"name"`
	PasswordHash  string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret    string `mapstructure:"totp_secret" yaml:"totp_secret"`
	AuthorizedKey string `mapstructure:"authorized_key" yaml:"authorized_key"`
}

// SimConfig carries defaults for the sim command.
type SimConfig struct {
	Scenario string `mapstructure:"scenario" yaml:"scenario"`
	Seed     int64  `mapstructure:"seed" yaml:"seed"`
	Ticks    int    `mapstructure:"ticks" yaml:"ticks"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".paneflow", "state"),
		Scheduler: SchedulerConfig{
			FrameBudgetUnits:            schema.DefaultFrameBudgetUnits,
			DomainBudgetEnabled:         true,
			StormWindowMillis:           int(schema.DefaultStormWindow / time.Millisecond),
			StormThresholdIntents:       schema.DefaultStormThresholdIntents,
			MaxStormPicksPerTab:         schema.DefaultMaxStormPicksPerTab,
			AllowSingleOversubscription: true,
			MaxDeferralsBeforeForce:     schema.DefaultMaxDeferralsBefore,
			InputGuardrailEnabled:       true,
			InputBacklogThreshold:       schema.DefaultInputBacklogThreshold,
			InputReserveUnits:           schema.DefaultInputReserveUnits,
			MaxLifecycleEvents:          schema.DefaultMaxLifecycleEvents,
			EmergencyDisable:            false,
			LegacyFallbackEnabled:       true,
		},
		Driver: DriverConfig{
			TickIntervalMillis:     16,
			InboxDepth:             1024,
			WatchdogWarnMillis:     int(core.DefaultWatchdogWarn / time.Millisecond),
			WatchdogCriticalMillis: int(core.DefaultWatchdogCritical / time.Millisecond),
			CriticalWarnCount:      core.DefaultCriticalWarnCount,
			LadderWorsenStreak:     core.DefaultLadderWorsenStreak,
			LadderRecoverStreak:    core.DefaultLadderRecoverStreak,
			SustainedCriticalObs:   core.DefaultSustainedCriticalObs,
		},
		Console: ConsoleConfig{
			Addr:        ":27522",
			HostKeyPath: filepath.Join(home, ".paneflow", "ssh_host_key"),
		},
		HTTP: HTTPConfig{
			Addr: ":27580",
		},
		Auth: AuthConfig{
			OperatorFile:  filepath.Join(home, ".paneflow", "operators.json"),
			SeedOperators: []SeedOperator{},
		},
		Sim: SimConfig{
			Scenario: "local-drag",
			Seed:     1,
			Ticks:    600,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".paneflow", "config.yaml"), nil
}
