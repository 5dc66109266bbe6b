package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// SignatureHeader carries the HMAC-SHA256 of the request body when a
// secret is configured.
const SignatureHeader = "X-Beacon-Signature"

// WebhookSender posts the alert as JSON to a generic HTTP endpoint.
//
// Settings: url (required), secret (optional, signs the body).
type WebhookSender struct {
	*httpTransport
}

// NewWebhookSender creates a generic webhook sender.
func NewWebhookSender(breaker BreakerConfig) *WebhookSender {
	return &WebhookSender{httpTransport: newHTTPTransport(breaker)}
}

// Kind returns models.ChannelWebhook.
func (s *WebhookSender) Kind() models.ChannelKind {
	return models.ChannelWebhook
}

// WebhookPayload is the body posted by WebhookSender.
type WebhookPayload struct {
	Channel string        `json:"channel"`
	SentAt  time.Time     `json:"sent_at"`
	Alert   *models.Alert `json:"alert"`
}

// Send posts the alert.
func (s *WebhookSender) Send(ctx context.Context, alert *models.Alert, ch channels.Channel) error {
	target, err := requireURL(ch, "url")
	if err != nil {
		return err
	}

	body, err := json.Marshal(WebhookPayload{
		Channel: ch.Name,
		SentAt:  time.Now().UTC(),
		Alert:   alert,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var headers map[string]string
	if secret := ch.Setting("secret"); secret != "" {
		headers = map[string]string{SignatureHeader: Sign(secret, body)}
	}

	if err := s.post(ctx, ch.Name, target, body, headers); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Check validates settings and the breaker state.
func (s *WebhookSender) Check(_ context.Context, ch channels.Channel) error {
	if _, err := requireURL(ch, "url"); err != nil {
		return err
	}
	return s.check(ch)
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
