package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/dmarcwatch/dmarcwatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title          string
	Message        string
	AlertType      string
	Severity       string
	SeverityColor  string
	Domain         string
	CurrentValue   string
	ThresholdValue string
	Timestamp      string
	Metadata       map[string]string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
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
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d32f2f" // red
	case models.SeverityHigh:
		return "#f57c00" // orange
	case models.SeverityMedium:
		return "#fbc02d" // yellow
	case models.SeverityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// NotificationToTemplateData converts a notification to template data.
func NotificationToTemplateData(n *Notification) *TemplateData {
	return &TemplateData{
		Title:          n.Title,
		Message:        n.Message,
		AlertType:      string(n.Type),
		Severity:       string(n.Severity),
		SeverityColor:  severityColor(n.Severity),
		Domain:         n.Domain,
		CurrentValue:   formatMetric(n.CurrentValue),
		ThresholdValue: formatMetric(n.ThresholdValue),
		Timestamp:      n.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Metadata:       n.Metadata,
	}
}
