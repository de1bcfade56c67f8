package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/cmdkit/internal/commands"
	"github.com/rendis/cmdkit/internal/store"
)

var commandCmd = &cobra.Command{
	Use:     "cmd",
	Aliases: []string{"command"},
	Short:   "Manage and run saved one-line commands",
}

var commandSaveCmd = &cobra.Command{
	Use:   "save NAME COMMAND",
	Short: "Save or replace a command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		c := &store.Command{Name: args[0], Command: args[1], Description: desc, Tags: tags}
		if err := app.commands.Save(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "command %q saved\n", c.Name)
		return nil
	},
}

var commandListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		var opts commands.ListOptions
		opts.Tag, _ = f.GetString("tag")
		opts.Limit, _ = f.GetInt("limit")
		opts.Filter, _ = f.GetString("filter")
		opts.Lang, _ = f.GetString("lang")

		list, err := app.commands.List(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if asJSON, _ := f.GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printCommands(cmd.OutOrStdout(), list)
		return nil
	},
}

var commandShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a saved command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := app.commands.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	},
}

var commandRunCmd = &cobra.Command{
	Use:   "run NAME [--vars key=value,...]",
	Short: "Run a saved command, streaming its output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		varSpec, _ := cmd.Flags().GetString("vars")
		vars, err := varsFlag(varSpec)
		if err != nil {
			return err
		}
		res, err := app.commands.Run(cmd.Context(), args[0], vars, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if res.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
		}
		if !res.Success() {
			return fmt.Errorf("command %q exited with status %d", res.Name, res.ExitCode)
		}
		return nil
	},
}

var commandRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Delete a saved command",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.commands.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "command %q removed\n", args[0])
		return nil
	},
}

var commandSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search commands by name, text or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := app.commands.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printCommands(cmd.OutOrStdout(), found)
		return nil
	},
}

func init() {
	commandSaveCmd.Flags().StringP("description", "d", "", "command description")
	commandSaveCmd.Flags().StringSliceP("tag", "t", nil, "tag (repeatable or comma separated)")

	f := commandListCmd.Flags()
	f.String("tag", "", "only commands with this tag")
	f.Int("limit", 0, "maximum number of commands")
	f.String("filter", "", "predicate over each command as item, e.g. item.use_count > 3")
	f.String("lang", "expr", "filter language: expr, cel or jq")
	f.Bool("json", false, "print as JSON")

	commandRunCmd.Flags().String("vars", "", "variables as key=value,key2=value2")
	commandRunCmd.Flags().Bool("strict", false, "fail when a ${name} placeholder has no value")

	commandCmd.AddCommand(commandSaveCmd, commandListCmd, commandShowCmd, commandRunCmd,
		commandRemoveCmd, commandSearchCmd)
}

func printCommands(w io.Writer, list []*store.Command) {
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tUSES\tLAST USED\tCOMMAND")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Name, c.UseCount, formatTime(c.LastUsedAt), truncate(c.Command, 60))
	}
	_ = tw.Flush()
}
