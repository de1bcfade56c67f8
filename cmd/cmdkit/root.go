package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Annotation keys read by setup.
const (
	// annotNoApp marks commands that run without opening the store.
	annotNoApp = "cmdkit/no-app"
	// annotStdio marks commands that own stdout, so workflow output must not
	// be streamed to it.
	annotStdio = "cmdkit/stdio"
)

var (
	cfgFile string
	v       = viper.New()
	app     *application
)

var rootCmd = &cobra.Command{
	Use:   "cmdkit",
	Short: "Save shell commands and run them as workflows",
	Long: `cmdkit keeps a local library of shell commands and multi-command
workflows. Workflows run sequentially or in parallel, with ${name}
variables filled from stored defaults and --vars overrides, and every run
is recorded with a per-command report.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil && err == nil {
		err = cerr
		rootCmd.PrintErrln("Error:", cerr)
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cmdkit/config.{json,yaml})")
	pf.String("db", "", "database path")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.Int("max-parallel", 0, "bound on concurrent commands of a parallel workflow (0 = all)")

	_ = v.BindPFlag("db_path", pf.Lookup("db"))
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log_format", pf.Lookup("log-format"))
	_ = v.BindPFlag("max_parallel", pf.Lookup("max-parallel"))

	rootCmd.AddCommand(workflowCmd, commandCmd, taskCmd, scheduleCmd,
		daemonCmd, serveCmd, skillCmd, k8sCmd, versionCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotNoApp] == "true" || !needsApp(cmd) {
		return nil
	}
	cfg, err := loadConfig(v, cfgFile)
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("strict"); f != nil && f.Changed {
		cfg.StrictVars, _ = cmd.Flags().GetBool("strict")
	}

	live := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		live = cmd.ErrOrStderr()
	}
	if cmd.Annotations[annotStdio] == "true" {
		live = nil
	}
	live = console(live)
	app, err = newApplication(cmd.Context(), cfg, live)
	return err
}

// closeApp releases the store opened by setup.
func closeApp() error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

// needsApp is false for cobra's generated help and completion commands.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}
