package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// Chat webhook formats.
const (
	ChatFormatSlack = "slack"
	ChatFormatTeams = "teams"
)

// ChatSender posts alerts to a Slack-compatible or Teams incoming webhook.
//
// Settings: webhook_url (required), format (slack or teams, default slack).
type ChatSender struct {
	*httpTransport
}

// NewChatSender creates a chat webhook sender.
func NewChatSender(breaker BreakerConfig) *ChatSender {
	return &ChatSender{httpTransport: newHTTPTransport(breaker)}
}

// Kind returns models.ChannelChat.
func (s *ChatSender) Kind() models.ChannelKind {
	return models.ChannelChat
}

// Send posts the alert to the channel's webhook.
func (s *ChatSender) Send(ctx context.Context, alert *models.Alert, ch channels.Channel) error {
	target, format, err := s.settings(ch)
	if err != nil {
		return err
	}

	var payload any
	switch format {
	case ChatFormatTeams:
		payload = buildTeamsPayload(alert)
	default:
		payload = buildSlackPayload(alert)
	}

	if err := s.postJSON(ctx, ch.Name, target, payload, nil); err != nil {
		return fmt.Errorf("%s webhook: %w", format, err)
	}
	return nil
}

// Check validates settings and the breaker state.
func (s *ChatSender) Check(_ context.Context, ch channels.Channel) error {
	if _, _, err := s.settings(ch); err != nil {
		return err
	}
	return s.check(ch)
}

func (s *ChatSender) settings(ch channels.Channel) (string, string, error) {
	target, err := requireURL(ch, "webhook_url")
	if err != nil {
		return "", "", err
	}

	format := strings.ToLower(ch.Setting("format"))
	switch format {
	case "":
		format = ChatFormatSlack
	case ChatFormatSlack, ChatFormatTeams:
	default:
		return "", "", misconfigured("channel %q: unknown chat format %q", ch.Name, format)
	}
	return target, format, nil
}
