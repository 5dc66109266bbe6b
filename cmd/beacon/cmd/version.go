package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/beacon/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of beacon.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := config.GetBuildInfo()
		if output == "json" {
			data, _ := json.MarshalIndent(info, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), info)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
