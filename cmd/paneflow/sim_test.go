package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/paneflow/schema"
)

func TestSimRunsScenarioCleanly(t *testing.T) {
	cfgPath := writeTestConfig(t)
	eventsPath := filepath.Join(t.TempDir(), "events.jsonl")

	cmd := newSimCmd()
	var out bytes.Buffer
	cmd.SetArgs([]string{
		"-c", cfgPath,
		"--scenario", "local-drag",
		"--seed", "7",
		"--ticks", "120",
		"--events-out", eventsPath,
	})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("sim: %v", err)
	}

	var snap schema.SchedulerSnapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot output: %v", err)
	}
	if snap.Metrics.TransactionsCompleted == 0 {
		t.Fatalf("scenario completed no transactions: %+v", snap.Metrics)
	}
	if snap.PendingTotal != 0 || snap.ActiveTotal != 0 {
		t.Fatalf("scenario did not drain: pending %d active %d", snap.PendingTotal, snap.ActiveTotal)
	}

	data, err := os.ReadFile(eventsPath)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("events file is empty")
	}
}

func TestSimRejectsUnknownScenario(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newSimCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "--scenario", "bogus"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("unknown scenario accepted")
	}
}
