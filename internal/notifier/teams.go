package notifier

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

// teamsAttachment represents an attachment in the Teams message.
type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

// adaptiveCard represents a Microsoft Adaptive Card.
type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

// buildTeamsPayload builds the Teams Adaptive Card message payload.
func buildTeamsPayload(alert *models.Alert) teamsMessage {
	emoji := priorityEmoji(alert.Priority)

	body := []any{
		container{
			Type:  "Container",
			Style: teamsPriorityStyle(alert.Priority),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   fmt.Sprintf("%s %s", emoji, alert.Title),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
	}

	facts := []fact{
		{Title: "Priority", Value: fmt.Sprintf("%s %s", emoji, strings.ToUpper(string(alert.Priority)))},
		{Title: "Event", Value: alert.EventType},
		{Title: "Time", Value: alert.CreatedAt.Format(timestampLayout)},
	}
	if alert.Source.Component != "" {
		facts = append(facts, fact{Title: "Component", Value: alert.Source.Component})
	}
	if alert.EscalatedFrom != "" {
		facts = append(facts, fact{Title: "Escalated from", Value: alert.EscalatedFrom})
	}
	body = append(body, factSet{Type: "FactSet", Facts: facts})

	if alert.Body != "" {
		body = append(body, textBlock{
			Type: "TextBlock",
			Text: alert.Body,
			Wrap: true,
		})
	}

	if alert.Source.Error != "" {
		body = append(body, textBlock{
			Type:  "TextBlock",
			Text:  fmt.Sprintf("`%s`", truncate(alert.Source.Error, 500)),
			Wrap:  true,
			Color: "attention",
		})
	}

	body = append(body, textBlock{
		Type:  "TextBlock",
		Text:  fmt.Sprintf("_Alert %s_", alert.ID),
		Wrap:  true,
		Color: "light",
	})

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				ContentURL:  nil,
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsPriorityStyle returns an Adaptive Card container style for the priority level.
func teamsPriorityStyle(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "attention" // red
	case models.PriorityHigh:
		return "warning" // orange/yellow
	case models.PriorityMedium:
		return "accent" // blue
	case models.PriorityLow:
		return "good" // green
	default:
		return "default"
	}
}
