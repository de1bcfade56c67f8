package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/diagram"
	"github.com/rendis/cmdkit/internal/engine"
	"github.com/rendis/cmdkit/internal/store"
	"github.com/rendis/cmdkit/internal/workflows"
	"github.com/rendis/cmdkit/pkg/schema"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Manage and run multi-command workflows",
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create NAME -c COMMAND [-c COMMAND...]",
	Short: "Save a new workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		cmds, _ := f.GetStringArray("command")
		desc, _ := f.GetString("description")
		parallel, _ := f.GetBool("parallel")
		coe, _ := f.GetBool("continue-on-error")
		varSpec, _ := f.GetString("vars")

		vars, err := varsFlag(varSpec)
		if err != nil {
			return err
		}
		wf := &schema.Workflow{
			Name:            args[0],
			Description:     desc,
			Commands:        cmds,
			Parallel:        parallel,
			ContinueOnError: coe,
			Variables:       vars,
		}
		result, err := app.workflows.Create(cmd.Context(), wf)
		printWarnings(cmd.ErrOrStderr(), result)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %q saved (%d commands)\n", wf.Name, len(wf.Commands))
		return nil
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run NAME [--vars key=value,...]",
	Short: "Run a workflow and print its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		varSpec, _ := cmd.Flags().GetString("vars")
		asJSON, _ := cmd.Flags().GetBool("json")
		overrides, err := varsFlag(varSpec)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		wf, err := app.workflows.Get(ctx, args[0])
		if err != nil {
			return err
		}
		// Parallel runs only report once every command has settled.
		stop := func() {}
		if !wf.Parallel {
			if stop, err = followProgress(ctx, app.hub, wf.Name, len(wf.Commands), cmd.ErrOrStderr()); err != nil {
				return err
			}
		}
		report, err := app.workflows.Run(ctx, wf.Name, overrides, store.TriggerCLI)
		stop()
		if report == nil {
			return err
		}
		if asJSON {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
		if err != nil {
			return err
		}
		if report.Status != schema.RunStatusSuccess {
			return fmt.Errorf("workflow %q finished with status %s", report.Workflow, report.Status)
		}
		return nil
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		var opts workflows.ListOptions
		opts.Filter, _ = f.GetString("filter")
		opts.Lang, _ = f.GetString("lang")
		opts.Limit, _ = f.GetInt("limit")
		opts.Offset, _ = f.GetInt("offset")
		asJSON, _ := f.GetBool("json")

		list, err := app.workflows.List(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printWorkflows(cmd.OutOrStdout(), list)
		return nil
	},
}

var workflowShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := app.workflows.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), wf)
		}
		w := cmd.OutOrStdout()
		mode := "sequential"
		if wf.Parallel {
			mode = "parallel"
		}
		fmt.Fprintf(w, "Name:        %s\n", wf.Name)
		if wf.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", wf.Description)
		}
		fmt.Fprintf(w, "Mode:        %s (continue on error: %t)\n", mode, wf.ContinueOnError)
		fmt.Fprintf(w, "Executions:  %d (last %s)\n", wf.ExecutionCount, formatTime(wf.LastExecuted))
		fmt.Fprintln(w, "Commands:")
		for i, c := range wf.Commands {
			fmt.Fprintf(w, "  %d. %s\n", i+1, c)
		}
		if len(wf.Variables) > 0 {
			fmt.Fprintln(w, "Variables:")
			tw := newTable(w)
			for _, k := range sortedKeys(wf.Variables) {
				fmt.Fprintf(tw, "  %s\t= %s\n", k, wf.Variables[k])
			}
			return tw.Flush()
		}
		return nil
	},
}

var workflowRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Delete a workflow",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.workflows.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %q removed\n", args[0])
		return nil
	},
}

var workflowSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search workflows by name, description or command text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := app.workflows.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWorkflows(cmd.OutOrStdout(), found)
		return nil
	},
}

var workflowDuplicateCmd = &cobra.Command{
	Use:   "duplicate SOURCE TARGET",
	Short: "Copy a workflow under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := app.workflows.Duplicate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %q copied to %q\n", args[0], wf.Name)
		return nil
	},
}

var workflowExportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Write a workflow as a portable JSON or YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		formatFlag, _ := cmd.Flags().GetString("format")

		format, err := workflows.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		if out != "" && !cmd.Flags().Changed("format") {
			format = workflows.FormatFromPath(out)
		}

		data, err := app.workflows.Export(cmd.Context(), args[0], format)
		if err != nil {
			return err
		}
		if out == "" || out == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "workflow %q exported to %s\n", args[0], out)
		return nil
	},
}

var workflowImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a workflow document (- reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		var (
			data   []byte
			err    error
			format = workflows.FormatFromPath(args[0])
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
		if cmd.Flags().Changed("format") {
			if format, err = workflows.ParseFormat(formatFlag); err != nil {
				return err
			}
		}

		wf, err := app.workflows.Import(cmd.Context(), data, format, overwrite)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %q imported (%d commands)\n", wf.Name, len(wf.Commands))
		return nil
	},
}

var workflowHistoryCmd = &cobra.Command{
	Use:   "history NAME",
	Short: "Show recent runs of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := app.workflows.History(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tOK/FAILED\tDURATION")
		for _, r := range runs {
			failed := 0
			for _, o := range r.Outcomes {
				if o.Failed() {
					failed++
				}
			}
			started := r.StartedAt
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%dms\n", formatTime(&started), r.Trigger, r.Status,
				len(r.Outcomes)-failed, failed, r.DurationMs)
		}
		return tw.Flush()
	},
}

var workflowDiagramCmd = &cobra.Command{
	Use:   "diagram NAME",
	Short: "Draw a workflow, optionally colored by its last run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		format, _ := f.GetString("format")
		withRun, _ := f.GetBool("last-run")
		out, _ := f.GetString("output")
		ctx := cmd.Context()

		wf, err := app.workflows.Get(ctx, args[0])
		if err != nil {
			return err
		}
		var run *store.Run
		if withRun {
			runs, err := app.workflows.History(ctx, wf.Name, 1)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q has no recorded runs", wf.Name)
			}
			run = runs[0]
		}

		model, err := diagram.Build(wf, run)
		if err != nil {
			return err
		}

		var data []byte
		switch strings.ToLower(format) {
		case "ascii":
			data = []byte(diagram.RenderASCIIAuto(ctx, model))
		case "mermaid":
			data = []byte(diagram.RenderMermaid(model))
		case "png", "svg":
			if out == "" {
				return fmt.Errorf("--format %s needs --output", format)
			}
			if data, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(strings.ToLower(format))); err != nil {
				return err
			}
		default:
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q; use ascii, mermaid, png or svg", format)
		}

		if out == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write diagram: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "diagram written to %s\n", out)
		return nil
	},
}

func init() {
	f := workflowCreateCmd.Flags()
	f.StringArrayP("command", "c", nil, "command to run (repeatable, in order)")
	f.StringP("description", "d", "", "workflow description")
	f.Bool("parallel", false, "run all commands concurrently")
	f.Bool("continue-on-error", false, "keep going after a failed command (sequential mode)")
	f.String("vars", "", "default variables as key=value,key2=value2")
	_ = workflowCreateCmd.MarkFlagRequired("command")

	workflowRunCmd.Flags().String("vars", "", "variable overrides as key=value,key2=value2")
	workflowRunCmd.Flags().Bool("strict", false, "fail when a ${name} placeholder has no value")
	workflowRunCmd.Flags().Bool("json", false, "print the report as JSON")

	f = workflowListCmd.Flags()
	f.String("filter", "", "predicate over each workflow as item, e.g. item.parallel")
	f.String("lang", "expr", "filter language: expr, cel or jq")
	f.Int("limit", 0, "maximum number of workflows")
	f.Int("offset", 0, "number of workflows to skip")
	f.Bool("json", false, "print as JSON")

	workflowShowCmd.Flags().Bool("json", false, "print as JSON")

	workflowExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	workflowExportCmd.Flags().String("format", "json", "document format: json or yaml")

	workflowImportCmd.Flags().String("format", "", "document format (default from file extension)")
	workflowImportCmd.Flags().Bool("overwrite", false, "replace an existing workflow of the same name")

	f = workflowDiagramCmd.Flags()
	f.String("format", "ascii", "ascii, mermaid, png or svg")
	f.Bool("last-run", false, "color commands by the outcome of the most recent run")
	f.StringP("output", "o", "", "write to file instead of stdout")

	workflowHistoryCmd.Flags().Int("limit", 10, "number of runs")
	workflowHistoryCmd.Flags().Bool("json", false, "print as JSON")

	workflowCmd.AddCommand(workflowCreateCmd, workflowRunCmd, workflowListCmd, workflowShowCmd,
		workflowRemoveCmd, workflowSearchCmd, workflowDuplicateCmd, workflowExportCmd,
		workflowImportCmd, workflowHistoryCmd, workflowDiagramCmd)
}

func printWorkflows(w io.Writer, list []*schema.Workflow) {
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tMODE\tCOMMANDS\tRUNS\tLAST RUN\tDESCRIPTION")
	for _, wf := range list {
		mode := "seq"
		if wf.Parallel {
			mode = "par"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", wf.Name, mode, len(wf.Commands),
			wf.ExecutionCount, formatTime(wf.LastExecuted), truncate(wf.Description, 40))
	}
	_ = tw.Flush()
}

// printReport writes one line per command outcome followed by a summary.
func printReport(w io.Writer, r *engine.Report) {
	for _, o := range r.Outcomes {
		mark := "ok"
		if o.Failed() {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%d] %-4s %s (%dms)\n", o.Index+1, mark, o.ResolvedCommand, o.DurationMs)
		if o.Failed() && o.ErrorDetail != "" {
			for _, line := range strings.Split(o.ErrorDetail, "\n") {
				fmt.Fprintf(w, "         %s\n", line)
			}
		}
	}
	ok, failed := r.Counts()
	fmt.Fprintf(w, "%s: %d succeeded, %d failed in %dms", r.Status, ok, failed, r.DurationMs)
	if r.HaltedEarly {
		fmt.Fprint(w, " (halted early)")
	}
	fmt.Fprintln(w)
}
