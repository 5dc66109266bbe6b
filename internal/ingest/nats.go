// Package ingest feeds error events from NATS into the alerting engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/beacon/internal/engine"
	"github.com/good-yellow-bee/beacon/internal/metrics"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// Source is the event source label for queue-delivered events.
const Source = "nats"

// Config selects the NATS servers and subject.
type Config struct {
	URLs    []string
	Subject string
	Queue   string
	Name    string
	Timeout time.Duration
}

// EventHandler is the engine entry point for error events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.ErrorEvent, eventContext map[string]any) ([]models.Alert, error)
}

// Message is the queue payload. It matches the HTTP events body.
type Message struct {
	Error   models.ErrorEvent `json:"error"`
	Context map[string]any    `json:"context"`
}

// Reply is published back when the message carries a reply subject.
type Reply struct {
	AlertIDs []string `json:"alert_ids"`
	Error    string   `json:"error,omitempty"`
}

// Subscriber consumes events from a NATS queue group.
type Subscriber struct {
	handler EventHandler
	logger  *zap.Logger
	timeout time.Duration

	nc  *nats.Conn
	sub *nats.Subscription
}

// NewSubscriber creates a subscriber. Call Start to connect.
func NewSubscriber(handler EventHandler, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		handler: handler,
		logger:  logger.Named("ingest"),
		timeout: 30 * time.Second,
	}
}

// Start connects and joins the queue group.
func (s *Subscriber) Start(cfg Config) error {
	if cfg.Subject == "" {
		return errors.New("ingest subject is required")
	}
	if cfg.Timeout > 0 {
		s.timeout = cfg.Timeout
	}
	urls := strings.Join(cfg.URLs, ",")
	if urls == "" {
		urls = nats.DefaultURL
	}
	name := cfg.Name
	if name == "" {
		name = "beacon"
	}

	nc, err := nats.Connect(urls,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats ingest: %w", err)
	}

	sub, err := nc.QueueSubscribe(cfg.Subject, cfg.Queue, s.onMessage)
	if err != nil {
		nc.Close()
		return fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.Queue, err)
	}

	s.nc = nc
	s.sub = sub
	s.logger.Info("nats ingest subscribed",
		zap.String("subject", cfg.Subject),
		zap.String("queue", cfg.Queue))
	return nil
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	reply := s.Handle(msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("encode reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("nats reply failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Handle decodes one payload and hands it to the engine. Undecodable
// payloads are logged and dropped.
func (s *Subscriber) Handle(subject string, data []byte) Reply {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("decode_error").Inc()
		s.logger.Warn("nats ingest decode failed", zap.String("subject", subject), zap.Error(err))
		return Reply{Error: "invalid payload"}
	}

	ctx, cancel := context.WithTimeout(engine.WithSource(context.Background(), Source), s.timeout)
	defer cancel()

	alerts, err := s.handler.HandleEvent(ctx, m.Error, m.Context)
	metrics.IngestMessagesTotal.WithLabelValues("ok").Inc()

	reply := Reply{AlertIDs: make([]string, 0, len(alerts))}
	for _, a := range alerts {
		reply.AlertIDs = append(reply.AlertIDs, a.ID)
	}
	if err != nil {
		s.logger.Warn("nats ingest event incomplete",
			zap.String("subject", subject),
			zap.String("code", m.Error.Code),
			zap.Error(err))
		reply.Error = err.Error()
	}
	return reply
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() error {
	if s.nc == nil {
		return nil
	}
	var err error
	if s.sub != nil {
		err = s.sub.Drain()
	}
	s.nc.Close()
	return err
}
