package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/beacon/internal/api/alerts"
	"github.com/good-yellow-bee/beacon/internal/models"
)

var (
	raisePriority   string
	raiseChannels   []string
	raiseMessage    string
	raiseEscalation string
)

var raiseCmd = &cobra.Command{
	Use:   "raise EVENT_TYPE [key=value...]",
	Short: "Raise an alert on a running server",
	Long: `Raise an alert for a template event type. Each key=value pair becomes
a data field; numbers and booleans are sent as JSON values.`,
	Example: `  beacon raise system.error code=DB_TIMEOUT component=billing message="query timed out"
  beacon raise billing.quota_exceeded company=Acme quota=100 --priority critical`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseKeyValues(args[1:])
		if err != nil {
			return err
		}

		req := alerts.RaiseRequest{
			EventType:  args[0],
			Data:       data,
			Priority:   raisePriority,
			Channels:   raiseChannels,
			Message:    raiseMessage,
			Escalation: raiseEscalation,
		}

		var raw map[string]any
		status, err := newAPIClient().do(cmd.Context(), http.MethodPost, "/api/v1/alerts", req, &raw)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), raw)
		}
		if status == http.StatusOK {
			fmt.Fprintf(cmd.OutOrStdout(), "suppressed: %s is inside its throttle window\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "raised %v (%v)\n", raw["id"], raw["title"])
		return nil
	},
}

// parseKeyValues converts key=value arguments into a data map.
func parseKeyValues(args []string) (map[string]any, error) {
	data := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", arg)
		}
		data[key] = parseValue(value)
	}
	return data, nil
}

func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func init() {
	addClientFlags(raiseCmd)
	raiseCmd.Flags().StringVar(&raisePriority, "priority", "", "override the template priority")
	raiseCmd.Flags().StringSliceVar(&raiseChannels, "channels", nil, "override the template channels")
	raiseCmd.Flags().StringVar(&raiseMessage, "message", "", "override the rendered body")
	raiseCmd.Flags().StringVar(&raiseEscalation, "escalation", "", "override the escalation delay (e.g. 30m)")
	raiseCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if raisePriority != "" {
			if _, err := models.ParsePriority(raisePriority); err != nil {
				return errors.New("--priority must be low, medium, high or critical")
			}
		}
		return nil
	}
	rootCmd.AddCommand(raiseCmd)
}
