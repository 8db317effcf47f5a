package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty,
// uses DefaultConfigPath. A missing file yields the defaults; a present
// file must carry the supported config_version.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("scheduler.frame_budget_units", cfg.Scheduler.FrameBudgetUnits)
	v.SetDefault("scheduler.domain_budget_enabled", cfg.Scheduler.DomainBudgetEnabled)
	v.SetDefault("scheduler.storm_window_ms", cfg.Scheduler.StormWindowMillis)
	v.SetDefault("scheduler.storm_threshold_intents", cfg.Scheduler.StormThresholdIntents)
	v.SetDefault("scheduler.max_storm_picks_per_tab", cfg.Scheduler.MaxStormPicksPerTab)
	v.SetDefault("scheduler.allow_single_oversubscription", cfg.Scheduler.AllowSingleOversubscription)
	v.SetDefault("scheduler.max_deferrals_before_force", cfg.Scheduler.MaxDeferralsBeforeForce)
	v.SetDefault("scheduler.input_guardrail_enabled", cfg.Scheduler.InputGuardrailEnabled)
	v.SetDefault("scheduler.input_backlog_threshold", cfg.Scheduler.InputBacklogThreshold)
	v.SetDefault("scheduler.input_reserve_units", cfg.Scheduler.InputReserveUnits)
	v.SetDefault("scheduler.max_lifecycle_events", cfg.Scheduler.MaxLifecycleEvents)
	v.SetDefault("scheduler.emergency_disable", cfg.Scheduler.EmergencyDisable)
	v.SetDefault("scheduler.legacy_fallback_enabled", cfg.Scheduler.LegacyFallbackEnabled)
	v.SetDefault("driver.tick_interval_ms", cfg.Driver.TickIntervalMillis)
	v.SetDefault("driver.inbox_depth", cfg.Driver.InboxDepth)
	v.SetDefault("driver.watchdog_warn_ms", cfg.Driver.WatchdogWarnMillis)
	v.SetDefault("driver.watchdog_critical_ms", cfg.Driver.WatchdogCriticalMillis)
	v.SetDefault("driver.critical_warn_count", cfg.Driver.CriticalWarnCount)
	v.SetDefault("driver.ladder_worsen_streak", cfg.Driver.LadderWorsenStreak)
	v.SetDefault("driver.ladder_recover_streak", cfg.Driver.LadderRecoverStreak)
	v.SetDefault("driver.sustained_critical_obs", cfg.Driver.SustainedCriticalObs)
	v.SetDefault("console.addr", cfg.Console.Addr)
	v.SetDefault("console.host_key_path", cfg.Console.HostKeyPath)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("auth.operator_file", cfg.Auth.OperatorFile)
	v.SetDefault("auth.seed_operators", cfg.Auth.SeedOperators)
	v.SetDefault("sim.scenario", cfg.Sim.Scenario)
	v.SetDefault("sim.seed", cfg.Sim.Seed)
	v.SetDefault("sim.ticks", cfg.Sim.Ticks)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateSchedulerConfig(cfg.Scheduler); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateSchedulerConfig(cfg SchedulerConfig) error {
	if cfg.InputGuardrailEnabled && cfg.InputReserveUnits >= cfg.FrameBudgetUnits {
		return fmt.Errorf("scheduler.input_reserve_units must be smaller than scheduler.frame_budget_units")
	}
	if cfg.MaxStormPicksPerTab < 0 || cfg.StormThresholdIntents < 0 {
		return fmt.Errorf("scheduler storm settings must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Console.HostKeyPath = expandEnv(cfg.Console.HostKeyPath)
	cfg.Auth.OperatorFile = expandEnv(cfg.Auth.OperatorFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
