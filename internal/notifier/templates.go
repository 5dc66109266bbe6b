package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/beacon/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	ID            string
	EventType     string
	Title         string
	Body          string
	Priority      string
	PriorityColor string
	Timestamp     string
	Component     string
	Function      string
	Error         string
	EscalatedFrom string
	Fields        []string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := htmltemplate.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// priorityColor returns the color for a priority level.
func priorityColor(p models.Priority) string {
	switch p {
	case models.PriorityCritical:
		return "#d32f2f" // red
	case models.PriorityHigh:
		return "#f57c00" // orange
	case models.PriorityMedium:
		return "#fbc02d" // yellow
	case models.PriorityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// AlertToTemplateData converts an alert to template data.
func AlertToTemplateData(alert *models.Alert) TemplateData {
	return TemplateData{
		ID:            alert.ID,
		EventType:     alert.EventType,
		Title:         alert.Title,
		Body:          alert.Body,
		Priority:      string(alert.Priority),
		PriorityColor: priorityColor(alert.Priority),
		Timestamp:     alert.CreatedAt.Format(timestampLayout),
		Component:     alert.Source.Component,
		Function:      alert.Source.Function,
		Error:         alert.Source.Error,
		EscalatedFrom: alert.EscalatedFrom,
		Fields:        dataPairs(alert.Data),
	}
}
