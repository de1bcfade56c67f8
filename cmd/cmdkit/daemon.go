package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:         "daemon",
	Short:       "Run scheduled workflows until interrupted",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotStdio: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		ctx := cmd.Context()

		sched := scheduler.NewScheduler(app.store, app.workflows, app.logger, scheduler.WithInterval(interval))
		if err := sched.RecoverMissed(ctx); err != nil {
			app.logger.Warn("missed job recovery failed", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		app.logger.Info("daemon running", "db", app.cfg.DBPath)

		<-ctx.Done()
		return sched.Stop()
	},
}

func init() {
	daemonCmd.Flags().Duration("interval", scheduler.DefaultInterval, "how often to check for due jobs")
}
