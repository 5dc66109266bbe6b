package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/beacon/internal/alerting"
	"github.com/good-yellow-bee/beacon/internal/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration, templates and rules and report the first error.
Exits non-zero when the configuration is invalid.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	_ = validateCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	rules, err := cfg.LoadAllRules(alerting.NewDefaultRegistry())
	if err != nil {
		return err
	}
	if err := alerting.ValidateRules(rules, alerting.NewDefaultRegistry()); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	cat, err := catalog.New(cfg.Templates)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d channels, %d templates, %d rules)\n",
		configFile, len(cfg.Channels), len(cat.EventTypes()), len(rules))
	return nil
}
