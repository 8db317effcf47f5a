package appconfig

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsSelfConsistent(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("config_version = %d, want %d", cfg.ConfigVersion, CurrentConfigVersion)
	}
	if err := validateSchedulerConfig(cfg.Scheduler); err != nil {
		t.Fatalf("default scheduler config invalid: %v", err)
	}
	if cfg.Driver.TickIntervalMillis <= 0 {
		t.Fatalf("tick interval = %d", cfg.Driver.TickIntervalMillis)
	}
	if cfg.Driver.WatchdogCriticalMillis <= cfg.Driver.WatchdogWarnMillis {
		t.Fatalf("critical threshold %dms not above warn %dms",
			cfg.Driver.WatchdogCriticalMillis, cfg.Driver.WatchdogWarnMillis)
	}
	if cfg.Console.Addr == "" || cfg.HTTP.Addr == "" {
		t.Fatalf("listen addrs missing: console %q http %q", cfg.Console.Addr, cfg.HTTP.Addr)
	}
}

func TestDefaultConfigPathsUnderHome(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	for name, path := range map[string]string{
		"state_dir":     cfg.StateDir,
		"host_key_path": cfg.Console.HostKeyPath,
		"operator_file": cfg.Auth.OperatorFile,
	} {
		if !strings.Contains(path, ".paneflow") {
			t.Fatalf("%s = %q, expected a .paneflow path", name, path)
		}
	}
}

func TestDefaultSimConfigNamesKnownScenario(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Sim.Scenario == "" || cfg.Sim.Ticks <= 0 {
		t.Fatalf("sim defaults incomplete: %+v", cfg.Sim)
	}
}
