package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/paneflow/audit"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

func newAuditCmd() *cobra.Command {
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "audit <events.jsonl>",
		Short: "Check a lifecycle event log for consistency violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			events, err := readEventsJSONL(args[0])
			if err != nil {
				return err
			}
			report := audit.CheckLifecycleInvariants(events)

			if snapshotPath != "" {
				snap, err := readSnapshotJSON(snapshotPath)
				if err != nil {
					return err
				}
				report = report.Merge(audit.CheckSnapshotInvariants(snap))
			}

			if report.Clean() {
				logger.Info("audit clean", "events", len(events))
				return nil
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			return fmt.Errorf("audit found %d violations", len(report.Violations))
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "also check a scheduler snapshot JSON file")
	return cmd
}

func readEventsJSONL(path string) ([]schema.LifecycleEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var events []schema.LifecycleEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event schema.LifecycleEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func readSnapshotJSON(path string) (schema.SchedulerSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.SchedulerSnapshot{}, err
	}
	var snap schema.SchedulerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return schema.SchedulerSnapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}
