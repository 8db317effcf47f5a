package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/paneflow/schema"
)

func writeEventsFile(t *testing.T, events []schema.LifecycleEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			t.Fatalf("encode event: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write events: %v", err)
	}
	return path
}

func TestAuditAcceptsCleanLog(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	path := writeEventsFile(t, []schema.LifecycleEvent{
		{Seq: 1, PaneID: "pane-a", Stage: schema.StageQueued, Detail: schema.LifecycleDetail{Kind: schema.DetailIntentQueued, Seq: 1}, At: now},
		{Seq: 2, PaneID: "pane-a", Stage: schema.StagePreparing, Detail: schema.LifecycleDetail{Kind: schema.DetailPrepareStarted, Seq: 1}, At: now},
		{Seq: 3, PaneID: "pane-a", Stage: schema.StageReflowing, Detail: schema.LifecycleDetail{Kind: schema.DetailReflowStarted, Seq: 1}, At: now},
		{Seq: 4, PaneID: "pane-a", Stage: schema.StagePresenting, Detail: schema.LifecycleDetail{Kind: schema.DetailPresentStarted, Seq: 1}, At: now},
		{Seq: 5, PaneID: "pane-a", Stage: schema.StageCompleted, Detail: schema.LifecycleDetail{Kind: schema.DetailActiveCompleted, Seq: 1}, At: now},
	})

	cmd := newAuditCmd()
	cmd.SetArgs([]string{path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func TestAuditFlagsViolations(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	path := writeEventsFile(t, []schema.LifecycleEvent{
		{Seq: 2, PaneID: "pane-a", Stage: schema.StagePreparing, Detail: schema.LifecycleDetail{Kind: schema.DetailPrepareStarted, Seq: 1}, At: now},
		// Out-of-order event sequence and a stage regression.
		{Seq: 1, PaneID: "pane-a", Stage: schema.StagePreparing, Detail: schema.LifecycleDetail{Kind: schema.DetailPrepareStarted, Seq: 1}, At: now},
	})

	cmd := newAuditCmd()
	var out bytes.Buffer
	cmd.SetArgs([]string{path})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("violating log accepted")
	}
	if !bytes.Contains(out.Bytes(), []byte("event_seq_order")) {
		t.Fatalf("report missing violation code:\n%s", out.String())
	}
}

func TestAuditRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o600); err != nil {
		t.Fatalf("write events: %v", err)
	}

	cmd := newAuditCmd()
	cmd.SetArgs([]string{path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("malformed line accepted")
	}
}
