package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/paneflow/audit"
	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/driver"
	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/internal/loadgen"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// drainTicks bounds the extra ticks run after the scenario script ends
// so in-flight and pending work can settle.
const drainTicks = 64

func newSimCmd() *cobra.Command {
	var cfgPath string
	var scenarioName string
	var seed int64
	var ticks int
	var eventsOut string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a deterministic resize-storm scenario against the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if scenarioName == "" {
				scenarioName = cfg.Sim.Scenario
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Sim.Seed
			}
			if ticks <= 0 {
				ticks = cfg.Sim.Ticks
			}

			scenario, err := loadgen.Named(scenarioName)
			if err != nil {
				return err
			}
			gen := loadgen.New(scenario, seed)
			reflower := loadgen.NewCostReflower(gen)

			tickInterval := time.Duration(cfg.Driver.TickIntervalMillis) * time.Millisecond
			if tickInterval <= 0 {
				tickInterval = 16 * time.Millisecond
			}
			// A scripted clock keeps stall ages and storm windows
			// identical across runs with the same seed.
			now := time.Unix(1_700_000_000, 0)
			clock := func() time.Time { return now }

			schedCfg := toSchedulerConfig(cfg.Scheduler)
			// The audit needs the full event stream, not a bounded tail.
			schedCfg.MaxLifecycleEvents = ticks*16 + 4096
			sched, err := core.NewScheduler(schedCfg, core.SchedulerDeps{Logger: logger, Clock: clock})
			if err != nil {
				return err
			}

			drvCfg := toDriverConfig(cfg.Driver, cfg.Scheduler)
			drvCfg.EventLimit = schedCfg.MaxLifecycleEvents
			drv, err := driver.New(drvCfg, driver.Deps{
				Scheduler: sched,
				Reflower:  reflower,
				Logger:    logger,
				Clock:     clock,
			})
			if err != nil {
				return err
			}

			logger.Info("sim start",
				"scenario", scenario.Name,
				"run_id", scenario.RunID,
				"seed", seed,
				"ticks", ticks,
				"panes", len(scenario.Steps))

			scriptTicks := scenario.Ticks
			if ticks < scriptTicks {
				scriptTicks = ticks
			}
			for tick := 0; tick < scriptTicks; tick++ {
				for _, intent := range gen.IntentsForTick(tick, now) {
					drv.Offer(intent)
				}
				drv.Tick()
				now = now.Add(tickInterval)
			}
			for extra := 0; extra < drainTicks; extra++ {
				snap := drv.LatestSnapshot()
				if snap != nil && snap.PendingTotal == 0 && snap.ActiveTotal == 0 {
					break
				}
				drv.Tick()
				now = now.Add(tickInterval)
			}

			snap := drv.LatestSnapshot()
			if snap == nil {
				return errors.New("simulation produced no snapshot")
			}
			if eventsOut != "" {
				if err := writeEventsJSONL(eventsOut, snap.Events); err != nil {
					return err
				}
				logger.Info("sim events written", "path", eventsOut, "events", len(snap.Events))
			}

			report := audit.CheckSnapshotInvariants(snap.SchedulerSnapshot).
				Merge(audit.CheckLifecycleInvariants(snap.Events))

			m := snap.Metrics
			logger.Info("sim done",
				"scenario", scenario.Name,
				"run_id", scenario.RunID,
				"completed", m.TransactionsCompleted,
				"cancelled", m.TransactionsCancelled,
				"failed", m.TransactionsFailed,
				"forced", m.ForcedBackgroundRuns,
				"storm_events", m.StormEventsDetected,
				"dropped_intents", drv.DroppedIntents(),
				"work_units", reflower.WorkDone,
				"tier", drv.Tier())

			out := cmd.OutOrStdout()
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(snap.SchedulerSnapshot); err != nil {
				return err
			}

			if !report.Clean() {
				for _, violation := range report.Violations {
					logger.Error("sim audit violation",
						"code", violation.Code,
						"pane", violation.PaneID,
						"seq", violation.Seq,
						"event_seq", violation.EventSeq,
						"detail", violation.Detail)
				}
				return fmt.Errorf("audit found %d violations", len(report.Violations))
			}
			logger.Info("sim audit clean", "events", len(snap.Events))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&scenarioName, "scenario", "", "scenario name (local-drag, ssh-jitter-storm, mux-burst, mixed)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "deterministic generation seed")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "maximum scripted ticks to run")
	cmd.Flags().StringVar(&eventsOut, "events-out", "", "write the lifecycle event log as JSONL")
	return cmd
}

func writeEventsJSONL(path string, events []schema.LifecycleEvent) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			_ = file.Close()
			return err
		}
	}
	return file.Close()
}
