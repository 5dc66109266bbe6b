package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/beacon/internal/api/alerts"
	"github.com/good-yellow-bee/beacon/internal/models"
)

var (
	listEventType string
	listPriority  string
	listOpen      bool
	listOffset    int
	listLimit     int

	actor   string
	comment string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Query and update alerts on a running server",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if listEventType != "" {
			q.Set("event_type", listEventType)
		}
		if listPriority != "" {
			q.Set("priority", listPriority)
		}
		if listOpen {
			q.Set("resolved", "false")
		}
		q.Set("offset", strconv.Itoa(listOffset))
		q.Set("limit", strconv.Itoa(listLimit))

		var resp alerts.ListResponse
		if _, err := newAPIClient().do(cmd.Context(), http.MethodGet, "/api/v1/alerts?"+q.Encode(), nil, &resp); err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tPRIORITY\tEVENT\tSTATE\tTITLE")
		for _, a := range resp.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.CreatedAt.Format("2006-01-02 15:04:05"), a.Priority, a.EventType, alertState(a), a.Title)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d alerts (offset %d)\n", len(resp.Items), resp.Total, resp.Offset)
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack ID",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "acknowledge", alerts.AcknowledgeRequest{Actor: actor, Note: comment})
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "resolve", alerts.ResolveRequest{Actor: actor, Solution: comment})
	},
}

func transition(cmd *cobra.Command, id, action string, body any) error {
	var alert models.Alert
	path := "/api/v1/alerts/" + url.PathEscape(id) + "/" + action
	if _, err := newAPIClient().do(cmd.Context(), http.MethodPost, path, body, &alert); err != nil {
		return err
	}
	if output == "json" {
		return printJSON(cmd.OutOrStdout(), alert)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", alert.ID, alertState(alert))
	return nil
}

func alertState(a models.Alert) string {
	switch {
	case a.IsResolved():
		return "resolved"
	case a.IsAcknowledged():
		return "acknowledged"
	default:
		return "open"
	}
}

func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "beacon server URL")
	cmd.PersistentFlags().StringVar(&apiToken, "token", "", "bearer token (default $"+TokenEnv+")")
}

func init() {
	addClientFlags(alertsCmd)

	alertsListCmd.Flags().StringVar(&listEventType, "event-type", "", "filter by event type")
	alertsListCmd.Flags().StringVar(&listPriority, "priority", "", "filter by priority")
	alertsListCmd.Flags().BoolVar(&listOpen, "open", false, "only unresolved alerts")
	alertsListCmd.Flags().IntVar(&listOffset, "offset", 0, "number of alerts to skip")
	alertsListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum alerts to return")

	for _, c := range []*cobra.Command{alertsAckCmd, alertsResolveCmd} {
		c.Flags().StringVar(&actor, "actor", "", "who is acting (default: token subject)")
	}
	alertsAckCmd.Flags().StringVar(&comment, "note", "", "acknowledgement note")
	alertsResolveCmd.Flags().StringVar(&comment, "solution", "", "what fixed it")

	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd, alertsResolveCmd)
	rootCmd.AddCommand(alertsCmd)
}
