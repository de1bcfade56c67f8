package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Run built-in kubectl, docker and aws command templates",
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tool, _ := cmd.Flags().GetString("tool")
		reg := app.skills.Registry()

		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "SKILL\tTOOL\tPARAMS\tDESCRIPTION")
		for _, info := range reg.List(tool) {
			s, err := reg.Get(info.Name)
			if err != nil {
				return err
			}
			params := make([]string, 0, len(s.Params))
			for _, p := range s.Params {
				if p.Required {
					params = append(params, p.Name+"*")
					continue
				}
				params = append(params, p.Name)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Tool, strings.Join(params, ","), info.Description)
		}
		return tw.Flush()
	},
}

var skillRunCmd = &cobra.Command{
	Use:   "run SKILL [-p key=value...]",
	Short: "Run a skill with parameters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringToString("param")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if dryRun {
			_, line, err := app.skills.Resolve(args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		}

		inv, err := app.skills.Run(cmd.Context(), args[0], params, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if inv.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), inv.Stderr)
		}
		if !inv.Success() {
			return fmt.Errorf("skill %s exited with status %d", inv.Skill, inv.ExitCode)
		}
		return nil
	},
}

func init() {
	skillListCmd.Flags().String("tool", "", "only skills using this tool (kubectl, docker, aws)")
	skillRunCmd.Flags().StringToStringP("param", "p", nil, "skill parameter as key=value (repeatable)")
	skillRunCmd.Flags().Bool("dry-run", false, "print the resolved command without running it")

	skillCmd.AddCommand(skillListCmd, skillRunCmd)
}
