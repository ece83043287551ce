// Package render turns booking lifecycle events into email and SMS text.
package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

const (
	topicPrefix = "booking.appointment."
	topicSuffix = ".v1"
)

// Kinds of lifecycle events. StudioRequested is the admin copy of Requested.
const (
	KindRequested       = "requested"
	KindConfirmed       = "confirmed"
	KindCancelled       = "cancelled"
	KindDeclined        = "declined"
	KindCompleted       = "completed"
	KindReminder        = "reminder"
	KindStudioRequested = "studio_requested"
)

var clientKinds = []string{KindRequested, KindConfirmed, KindCancelled, KindDeclined, KindCompleted, KindReminder}

// Topics are the booking-service topics notification-service consumes.
func Topics() []string {
	out := make([]string, 0, len(clientKinds))
	for _, k := range clientKinds {
		out = append(out, topicPrefix+k+topicSuffix)
	}
	return out
}

// KindFromTopic maps "booking.appointment.confirmed.v1" to "confirmed".
func KindFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicSuffix) {
		return "", false
	}
	kind := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicSuffix)
	for _, k := range clientKinds {
		if k == kind {
			return kind, true
		}
	}
	return "", false
}

// Appointment mirrors the booking.appointment.* payload.
type Appointment struct {
	AppointmentID string    `json:"appointment_id"`
	ArtistID      string    `json:"artist_id"`
	ArtistName    string    `json:"artist_name"`
	ClientID      string    `json:"client_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email"`
	ClientPhone   string    `json:"client_phone"`
	ServiceID     string    `json:"service_id"`
	ServiceLabel  string    `json:"service_label"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Message struct {
	Subject string
	Text    string
	HTML    string
	SMS     string
}

type view struct {
	Studio        string
	AppointmentID string
	ClientName    string
	ArtistName    string
	Service       string
	Date          string
	Time          string
	Reason        string
	Contact       string
}

const textTemplates = `
{{define "requested.subject"}}{{.Studio}}: booking request received{{end}}
{{define "requested.body"}}Hi {{.ClientName}},
We received your request for {{.Service}} on {{.Date}} at {{.Time}}.
Your slot is held until the deposit is paid.{{end}}
{{define "requested.sms"}}{{.Studio}}: request for {{.Service}} on {{.Date}} {{.Time}} received. Pay the deposit to confirm.{{end}}

{{define "confirmed.subject"}}{{.Studio}}: appointment confirmed{{end}}
{{define "confirmed.body"}}Hi {{.ClientName}},
Your {{.Service}} with {{.ArtistName}} is confirmed for {{.Date}} at {{.Time}}.{{end}}
{{define "confirmed.sms"}}{{.Studio}}: {{.Service}} with {{.ArtistName}} confirmed for {{.Date}} {{.Time}}.{{end}}

{{define "cancelled.subject"}}{{.Studio}}: appointment cancelled{{end}}
{{define "cancelled.body"}}Hi {{.ClientName}},
Your {{.Service}} on {{.Date}} at {{.Time}} was cancelled.{{if .Reason}}
Reason: {{.Reason}}{{end}}{{end}}
{{define "cancelled.sms"}}{{.Studio}}: your {{.Date}} {{.Time}} appointment was cancelled.{{end}}

{{define "declined.subject"}}{{.Studio}}: booking request declined{{end}}
{{define "declined.body"}}Hi {{.ClientName}},
We could not take your {{.Service}} request for {{.Date}} at {{.Time}}.{{if .Reason}}
Reason: {{.Reason}}{{end}}{{end}}
{{define "declined.sms"}}{{.Studio}}: your request for {{.Date}} {{.Time}} was declined.{{end}}

{{define "completed.subject"}}{{.Studio}}: thanks for visiting{{end}}
{{define "completed.body"}}Hi {{.ClientName}},
Thanks for your {{.Service}} with {{.ArtistName}}. Follow the aftercare sheet for the next two weeks.{{end}}
{{define "completed.sms"}}{{.Studio}}: thanks for coming in! Remember your aftercare.{{end}}

{{define "reminder.subject"}}{{.Studio}}: see you {{.Date}}{{end}}
{{define "reminder.body"}}Hi {{.ClientName}},
Reminder: {{.Service}} with {{.ArtistName}} on {{.Date}} at {{.Time}}.{{end}}
{{define "reminder.sms"}}{{.Studio}}: reminder, {{.Service}} {{.Date}} {{.Time}} with {{.ArtistName}}.{{end}}

{{define "studio_requested.subject"}}New booking request: {{.Service}} {{.Date}} {{.Time}}{{end}}
{{define "studio_requested.body"}}{{.ClientName}} ({{.Contact}}) requested {{.Service}} with {{.ArtistName}} on {{.Date}} at {{.Time}}.
Appointment {{.AppointmentID}}.{{end}}
`

const htmlLayout = `<!doctype html>
<html><body style="font-family:sans-serif">
<h2>{{.Studio}}</h2>
{{range .Lines}}<p>{{.}}</p>
{{end}}</body></html>`

type Renderer struct {
	studio string
	loc    *time.Location
	text   *texttemplate.Template
	html   *htmltemplate.Template
}

func New(studio string, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	text, err := texttemplate.New("messages").Parse(textTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.New("layout").Parse(htmlLayout)
	if err != nil {
		return nil, fmt.Errorf("parse html layout: %w", err)
	}
	return &Renderer{studio: studio, loc: loc, text: text, html: html}, nil
}

// Render builds the message for kind. SMS is empty for kinds without an SMS
// template.
func (r *Renderer) Render(kind string, a Appointment) (Message, error) {
	if r.text.Lookup(kind+".subject") == nil {
		return Message{}, fmt.Errorf("render: unknown kind %q", kind)
	}
	v := r.view(a)
	var msg Message
	var err error
	if msg.Subject, err = r.exec(kind+".subject", v); err != nil {
		return Message{}, err
	}
	if msg.Text, err = r.exec(kind+".body", v); err != nil {
		return Message{}, err
	}
	if r.text.Lookup(kind+".sms") != nil {
		if msg.SMS, err = r.exec(kind+".sms", v); err != nil {
			return Message{}, err
		}
	}
	var buf bytes.Buffer
	if err := r.html.Execute(&buf, struct {
		Studio string
		Lines  []string
	}{Studio: r.studio, Lines: strings.Split(msg.Text, "\n")}); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	msg.HTML = buf.String()
	return msg, nil
}

func (r *Renderer) exec(name string, v view) (string, error) {
	var buf bytes.Buffer
	if err := r.text.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) view(a Appointment) view {
	start := a.StartTime.In(r.loc)
	v := view{
		Studio:        r.studio,
		AppointmentID: a.AppointmentID,
		ClientName:    a.ClientName,
		ArtistName:    a.ArtistName,
		Service:       a.ServiceLabel,
		Date:          start.Format("Mon 2 Jan 2006"),
		Time:          start.Format("15:04"),
		Reason:        a.Reason,
	}
	if v.ClientName == "" {
		v.ClientName = "there"
	}
	if v.ArtistName == "" {
		v.ArtistName = "your artist"
	}
	if v.Service == "" {
		v.Service = a.ServiceID
	}
	switch {
	case a.ClientEmail != "" && a.ClientPhone != "":
		v.Contact = a.ClientEmail + ", " + a.ClientPhone
	case a.ClientEmail != "":
		v.Contact = a.ClientEmail
	default:
		v.Contact = a.ClientPhone
	}
	return v
}
