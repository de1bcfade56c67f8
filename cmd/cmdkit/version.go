package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/cmdkit/
var version = "dev"

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the cmdkit version",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotNoApp: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}
