package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/pkg/config"
)

// httpTransport is shared by the JSON-over-HTTP senders.
type httpTransport struct {
	client   *http.Client
	breakers *breakers
}

func newHTTPTransport(breaker BreakerConfig) *httpTransport {
	return &httpTransport{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		breakers: newBreakers(breaker),
	}
}

// postJSON posts payload to target through the channel's circuit breaker.
// Any 2xx status is success.
func (t *httpTransport) postJSON(ctx context.Context, channel, target string, payload any, headers map[string]string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return t.post(ctx, channel, target, jsonData, headers)
}

func (t *httpTransport) post(ctx context.Context, channel, target string, body []byte, headers map[string]string) error {
	return t.breakers.execute(channel, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", config.UserAgent())
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("endpoint error: status %d, body: %s", resp.StatusCode, string(respBody))
		}
		return nil
	})
}

// check reports an open breaker as unhealthy.
func (t *httpTransport) check(ch channels.Channel) error {
	if t.breakers.state(ch.Name) == gobreaker.StateOpen {
		return fmt.Errorf("circuit open after repeated failures")
	}
	return nil
}

// Close releases idle connections.
func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// requireURL reads a URL setting. HTTPS is required except for loopback hosts.
func requireURL(ch channels.Channel, key string) (string, error) {
	raw := ch.Setting(key)
	if raw == "" {
		return "", misconfigured("channel %q: %s is required", ch.Name, key)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", misconfigured("channel %q: invalid %s", ch.Name, key)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return "", misconfigured("channel %q: %s must use HTTPS", ch.Name, key)
		}
	default:
		return "", misconfigured("channel %q: %s must use HTTPS", ch.Name, key)
	}
	return raw, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
