package notifier

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// LogSender writes alerts to the structured log. It never fails.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a system log sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("alerts")}
}

// Kind returns models.ChannelLog.
func (s *LogSender) Kind() models.ChannelKind {
	return models.ChannelLog
}

// Send logs the alert at a level matching its priority.
func (s *LogSender) Send(_ context.Context, alert *models.Alert, ch channels.Channel) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("event_type", alert.EventType),
		zap.String("priority", string(alert.Priority)),
		zap.String("channel", ch.Name),
		zap.String("body", alert.Body),
		zap.Any("data", alert.Data),
	}
	if alert.Source.Component != "" {
		fields = append(fields, zap.String("component", alert.Source.Component))
	}
	if alert.Source.Error != "" {
		fields = append(fields, zap.String("source_error", alert.Source.Error))
	}
	if alert.EscalatedFrom != "" {
		fields = append(fields, zap.String("escalated_from", alert.EscalatedFrom))
	}

	if ce := s.logger.Check(logLevel(alert.Priority), alert.Title); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func logLevel(p models.Priority) zapcore.Level {
	switch p {
	case models.PriorityCritical:
		return zapcore.ErrorLevel
	case models.PriorityHigh:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Check always succeeds.
func (s *LogSender) Check(context.Context, channels.Channel) error {
	return nil
}
