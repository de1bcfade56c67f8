package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/pkg/schema"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the to-do list",
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		desc, _ := f.GetString("description")
		priority, _ := f.GetInt("priority")
		due, _ := f.GetString("due")

		task := &store.Task{Title: args[0], Description: desc, Priority: priority}
		if due != "" {
			t, err := parseDue(due)
			if err != nil {
				return err
			}
			task.DueAt = &t
		}
		if err := app.store.CreateTask(cmd.Context(), task); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %d added (priority %d)\n", task.ID, task.Priority)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, highest priority first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		all, _ := f.GetBool("all")
		var filter store.TaskFilter
		filter.MaxPriority, _ = f.GetInt("max-priority")
		filter.Limit, _ = f.GetInt("limit")
		if !all {
			pending := false
			filter.Done = &pending
		}

		tasks, err := app.store.ListTasks(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if asJSON, _ := f.GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), tasks)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tP\tDONE\tDUE\tTITLE")
		for _, t := range tasks {
			done := " "
			if t.Done {
				done = "x"
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", t.ID, t.Priority, done, formatTime(t.DueAt), truncate(t.Title, 60))
		}
		return tw.Flush()
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		done := true
		if err := app.store.UpdateTask(cmd.Context(), id, store.TaskUpdate{Done: &done}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %d done\n", id)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		if err := app.store.DeleteTask(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %d removed\n", id)
		return nil
	},
}

func init() {
	f := taskAddCmd.Flags()
	f.StringP("description", "d", "", "task description")
	f.IntP("priority", "p", store.DefaultPriority, "priority 1 (highest) to 5")
	f.String("due", "", "due date, YYYY-MM-DD or RFC 3339")

	f = taskListCmd.Flags()
	f.Bool("all", false, "include done tasks")
	f.Int("max-priority", 0, "only tasks at this priority or higher")
	f.Int("limit", 0, "maximum number of tasks")
	f.Bool("json", false, "print as JSON")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskRemoveCmd)
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid task id %q", s)
	}
	return id, nil
}

// parseDue accepts a calendar date, taken as local midnight, or an RFC 3339
// timestamp.
func parseDue(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid due date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}
