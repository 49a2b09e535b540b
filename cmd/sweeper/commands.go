package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	staleAfter time.Duration
	schedule   string
}

func newRootCmd(deps sweepDeps) *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "sweeper",
		Short:         "Abandon activity sessions that stopped reporting progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&opts.staleAfter, "stale-after", 0, "idle time before a session is abandoned (default SESSION_STALE_AFTER)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sw, cfgSchedule, cleanup, err := setup(deps, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			schedule := cfgSchedule
			if opts.schedule != "" {
				schedule = opts.schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := cron.New()
			if _, err := c.AddFunc(schedule, func() { _, _ = sw.sweepOnce(ctx) }); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
			c.Start()
			sw.log.Info("sweeper started", zap.String("schedule", schedule), zap.Duration("stale_after", sw.staleAfter))

			<-ctx.Done()
			<-c.Stop().Done()
			sw.log.Info("sweeper stopped")
			return nil
		},
	}
	runCmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron expression (default SWEEP_SCHEDULE)")

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sw, _, cleanup, err := setup(deps, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := sw.sweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("abandoned %d sessions\n", n)
			return nil
		},
	}

	root.AddCommand(runCmd, onceCmd)
	return root
}

func setup(deps sweepDeps, opts options) (*sweeper, string, func(), error) {
	cfg := deps.loadConfig()

	logger, err := deps.newLogger(cfg)
	if err != nil {
		return nil, "", nil, fmt.Errorf("build logger: %w", err)
	}

	staleAfter := cfg.SessionStaleAfter
	if opts.staleAfter != 0 {
		staleAfter = opts.staleAfter
	}
	// the cutoff must lie in the past
	if staleAfter <= 0 {
		return nil, "", nil, fmt.Errorf("stale-after must be positive, got %s", staleAfter)
	}

	sessions, closeTracker, err := deps.openTracker(cfg, logger)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open session store: %w", err)
	}

	cleanup := func() {
		closeTracker()
		_ = logger.Sync()
	}
	return &sweeper{sessions: sessions, staleAfter: staleAfter, now: time.Now, log: logger}, cfg.SweepSchedule, cleanup, nil
}
