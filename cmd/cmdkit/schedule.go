package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run workflows on a cron schedule (executed by cmdkit daemon)",
}

func newScheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(app.store, app.workflows, app.logger)
}

var scheduleAddCmd = &cobra.Command{
	Use:   `add WORKFLOW "CRON"`,
	Short: "Schedule a workflow with a 5-field cron expression",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		varSpec, _ := cmd.Flags().GetString("vars")
		vars, err := varsFlag(varSpec)
		if err != nil {
			return err
		}
		job, err := newScheduler().AddJob(cmd.Context(), args[0], args[1], vars)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s scheduled, next run %s\n", job.ID, formatTime(job.NextRunAt))
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		workflow, _ := cmd.Flags().GetString("workflow")
		jobs, err := newScheduler().ListJobs(cmd.Context(), workflow)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), jobs)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tWORKFLOW\tCRON\tENABLED\tNEXT RUN\tLAST STATUS")
		for _, j := range jobs {
			status := j.LastRunStatus
			if status == "" {
				status = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", j.ID, j.Workflow, j.CronExpression, j.Enabled,
				formatTime(j.NextRunAt), status)
		}
		return tw.Flush()
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete a scheduled job",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newScheduler().RemoveJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s removed\n", args[0])
		return nil
	},
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause ID",
	Short: "Disable a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newScheduler().SetEnabled(cmd.Context(), args[0], false)
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume ID",
	Short: "Re-enable a scheduled job from its next cron time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newScheduler().SetEnabled(cmd.Context(), args[0], true)
	},
}

func init() {
	scheduleAddCmd.Flags().String("vars", "", "variable overrides as key=value,key2=value2")
	scheduleListCmd.Flags().String("workflow", "", "only jobs of this workflow")
	scheduleListCmd.Flags().Bool("json", false, "print as JSON")

	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd,
		schedulePauseCmd, scheduleResumeCmd)
}
