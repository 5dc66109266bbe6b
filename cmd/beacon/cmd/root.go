// Package cmd contains the CLI commands for beacon.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	configFile string
	verbose    bool
	output     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - alerting and notification dispatch",
	Long: `Beacon turns application errors into alerts and delivers them
over email, chat, SMS, webhooks and the system log.

Features:
  - Event templates with throttling and escalation
  - Rule evaluation with frequency windows and expressions
  - Per-channel priority filtering, retries and health checks
  - HTTP management API and NATS event ingest

Examples:
  # Run the service
  beacon serve -c beacon.yaml

  # Check a configuration file
  beacon validate -c beacon.yaml

  # Raise an alert through a running server
  beacon raise system.error code=DB_TIMEOUT component=billing`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
