package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// smsMaxLength is the length of a single SMS segment.
const smsMaxLength = 160

// SMSSender posts alerts to an HTTP SMS gateway.
//
// Settings: gateway_url, api_key and to (comma separated numbers), all required.
type SMSSender struct {
	*httpTransport
}

// NewSMSSender creates an SMS gateway sender.
func NewSMSSender(breaker BreakerConfig) *SMSSender {
	return &SMSSender{httpTransport: newHTTPTransport(breaker)}
}

// Kind returns models.ChannelSMS.
func (s *SMSSender) Kind() models.ChannelKind {
	return models.ChannelSMS
}

type smsRequest struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

// Send posts a single-segment text message to the gateway.
func (s *SMSSender) Send(ctx context.Context, alert *models.Alert, ch channels.Channel) error {
	target, apiKey, to, err := s.settings(ch)
	if err != nil {
		return err
	}

	payload := smsRequest{To: to, Message: smsText(alert)}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := s.postJSON(ctx, ch.Name, target, payload, headers); err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	return nil
}

// Check validates settings and the breaker state.
func (s *SMSSender) Check(_ context.Context, ch channels.Channel) error {
	if _, _, _, err := s.settings(ch); err != nil {
		return err
	}
	return s.check(ch)
}

func (s *SMSSender) settings(ch channels.Channel) (string, string, []string, error) {
	target, err := requireURL(ch, "gateway_url")
	if err != nil {
		return "", "", nil, err
	}
	apiKey := ch.Setting("api_key")
	if apiKey == "" {
		return "", "", nil, misconfigured("channel %q: api_key is required", ch.Name)
	}
	to := splitList(ch.Setting("to"))
	if len(to) == 0 {
		return "", "", nil, misconfigured("channel %q: at least one recipient is required", ch.Name)
	}
	return target, apiKey, to, nil
}

// smsText condenses an alert into one SMS segment.
func smsText(alert *models.Alert) string {
	text := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Priority)), alert.Title)
	if alert.Body != "" {
		text += ": " + strings.Join(strings.Fields(alert.Body), " ")
	}
	return truncate(text, smsMaxLength)
}
