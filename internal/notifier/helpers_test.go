package notifier

import (
	"time"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

func testAlert() *models.Alert {
	return &models.Alert{
		ID:        "01900000-0000-7000-8000-000000000001",
		EventType: "system.error",
		Priority:  models.PriorityCritical,
		Title:     "[System Error] DB_TIMEOUT in billing",
		Body:      "query timed out after 30s",
		Data:      map[string]any{"code": "DB_TIMEOUT", "component": "billing"},
		Source:    models.Source{Component: "billing", Function: "Charge", Error: "context deadline exceeded"},
		CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Channels:  []string{"chat"},
	}
}

func testChannel(name string, kind models.ChannelKind, settings map[string]string) channels.Channel {
	return channels.Channel{Name: name, Kind: kind, Enabled: true, Settings: settings}
}
