package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/paneflow"
	"pkt.systems/paneflow/console"
	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/driver"
	"pkt.systems/paneflow/httpapi"
	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noConsole bool
	var noHTTP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the paneflow scheduler and its operator surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			serverCfg := paneflow.ServerConfig{
				Scheduler: toSchedulerConfig(cfg.Scheduler),
				Driver:    toDriverConfig(cfg.Driver, cfg.Scheduler),
				Console:   toConsoleConfig(cfg.Console),
				HTTP:      toHTTPConfig(cfg.HTTP),
				Auth:      toAuthConfig(cfg.Auth),
			}
			opts := make([]paneflow.ServerOption, 0, 2)
			if !noConsole {
				opts = append(opts, paneflow.WithConsole())
			}
			if !noHTTP {
				opts = append(opts, paneflow.WithHTTP())
			}
			server, err := paneflow.New(serverCfg, paneflow.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if !noConsole {
				logger.Info("console listening", "addr", serverCfg.Console.Addr)
			}
			if !noHTTP {
				logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			}
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "disable the SSH ops console")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the HTTP debug API")
	return cmd
}

func toSchedulerConfig(cfg appconfig.SchedulerConfig) schema.SchedulerConfig {
	return schema.SchedulerConfig{
		FrameBudgetUnits:            cfg.FrameBudgetUnits,
		DomainBudgetEnabled:         cfg.DomainBudgetEnabled,
		StormWindow:                 time.Duration(cfg.StormWindowMillis) * time.Millisecond,
		StormThresholdIntents:       cfg.StormThresholdIntents,
		MaxStormPicksPerTab:         cfg.MaxStormPicksPerTab,
		AllowSingleOversubscription: cfg.AllowSingleOversubscription,
		MaxDeferralsBeforeForce:     cfg.MaxDeferralsBeforeForce,
		InputGuardrailEnabled:       cfg.InputGuardrailEnabled,
		InputBacklogThreshold:       cfg.InputBacklogThreshold,
		InputReserveUnits:           cfg.InputReserveUnits,
		MaxLifecycleEvents:          cfg.MaxLifecycleEvents,
		EmergencyDisable:            cfg.EmergencyDisable,
		LegacyFallbackEnabled:       cfg.LegacyFallbackEnabled,
	}
}

func toDriverConfig(cfg appconfig.DriverConfig, sched appconfig.SchedulerConfig) driver.Config {
	return driver.Config{
		TickInterval: time.Duration(cfg.TickIntervalMillis) * time.Millisecond,
		FrameBudget:  sched.FrameBudgetUnits,
		InboxDepth:   cfg.InboxDepth,
		Thresholds: core.WatchdogThresholds{
			Warn:              time.Duration(cfg.WatchdogWarnMillis) * time.Millisecond,
			Critical:          time.Duration(cfg.WatchdogCriticalMillis) * time.Millisecond,
			CriticalWarnCount: cfg.CriticalWarnCount,
		},
		Ladder: core.LadderConfig{
			WorsenStreak:         cfg.LadderWorsenStreak,
			RecoverStreak:        cfg.LadderRecoverStreak,
			SustainedCriticalObs: cfg.SustainedCriticalObs,
		},
	}
}

func toConsoleConfig(cfg appconfig.ConsoleConfig) console.Config {
	return console.Config{
		Addr:        cfg.Addr,
		HostKeyPath: cfg.HostKeyPath,
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr: cfg.Addr,
	}
}

func toAuthConfig(cfg appconfig.AuthConfig) paneflow.AuthConfig {
	seeds := make([]paneflow.SeedOperator, 0, len(cfg.SeedOperators))
	for _, seed := range cfg.SeedOperators {
		seeds = append(seeds, paneflow.SeedOperator{
			Name:          seed.Name,
			PasswordHash:  seed.PasswordHash,
			TOTPSecret:    seed.TOTPSecret,
			AuthorizedKey: seed.AuthorizedKey,
		})
	}
	return paneflow.AuthConfig{
		OperatorFile:  cfg.OperatorFile,
		SeedOperators: seeds,
	}
}
