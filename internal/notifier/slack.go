package notifier

import (
	"fmt"
	"strings"

	"github.com/good-yellow-bee/beacon/internal/models"
)

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildSlackPayload builds the Slack Block Kit message payload.
func buildSlackPayload(alert *models.Alert) slackMessage {
	emoji := priorityEmoji(alert.Priority)

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  truncate(fmt.Sprintf("%s %s", emoji, alert.Title), 150),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Priority:*\n%s %s", emoji, strings.ToUpper(string(alert.Priority))),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Time:*\n%s", alert.CreatedAt.Format(timestampLayout)),
				},
			},
		},
	}

	if alert.Body != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: truncate(alert.Body, 2900),
			},
		})
	}

	if alert.Source.Component != "" || alert.Source.Error != "" {
		parts := []string{}
		if alert.Source.Component != "" {
			parts = append(parts, fmt.Sprintf("*Component:* `%s`", alert.Source.Component))
		}
		if alert.Source.Function != "" {
			parts = append(parts, fmt.Sprintf("*Function:* `%s`", alert.Source.Function))
		}
		if alert.Source.Error != "" {
			parts = append(parts, fmt.Sprintf("```%s```", truncate(alert.Source.Error, 500)))
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.Join(parts, "\n")},
		})
	}

	context := fmt.Sprintf("Event: `%s` | Alert: `%s`", alert.EventType, alert.ID)
	if alert.EscalatedFrom != "" {
		context += fmt.Sprintf(" | Escalated from `%s`", alert.EscalatedFrom)
	}
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: context}},
	})

	return slackMessage{
		Text:   fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Priority)), alert.Title),
		Blocks: blocks,
	}
}
