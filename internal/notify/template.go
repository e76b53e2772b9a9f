package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Run {{.EventLabel}}]
Run: {{.RunNumber}}
{{- if .Busy }}
Downstream: busy
{{- else }}
Duration: {{.Duration}}
Candidates: {{.Candidates}}
Decisions Sent: {{.Sent}}
Decisions Failed: {{.Failed}}
Inhibited: {{.Inhibited}}
Paused: {{.Paused}}
Last Trigger Number: {{.LastTriggerNumber}}
Deadtime: {{.DeadtimePercent}}
{{- end }}
Time: {{.Time}}
{{- if .ReportURL }}
Report: {{.ReportURL}}
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event             string
	EventLabel        string
	RunNumber         uint32
	Busy              bool
	Duration          string
	Candidates        uint64
	Sent              uint64
	Failed            uint64
	Inhibited         uint64
	Paused            uint64
	LastTriggerNumber uint64
	DeadtimePercent   string
	Time              string
	ReportURL         string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("run-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("run template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
