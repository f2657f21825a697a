package escalation

import (
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// MessageData is the variable set available to notification templates.
type MessageData struct {
	TicketNumber    string
	Subject         string
	BreachType      string
	Severity        string
	BreachTime      string
	TechnicianName  string
	CustomerImpact  string
	EscalationLevel int
	BreachDuration  string
	TicketURL       string
}

const breachNotificationText = `SLA Breach Alert - Ticket #{{.TicketNumber}}

Ticket: {{.Subject}}
Breach Type: {{.BreachType}}
Severity: {{.Severity}}
Time Breached: {{.BreachTime}}

Assigned to: {{.TechnicianName}}
Customer Impact: {{.CustomerImpact}}

Please take immediate action to resolve this issue.

Ticket Link: {{.TicketURL}}`

const managerEscalationText = `SLA Breach Escalation - Ticket #{{.TicketNumber}}

A critical SLA breach requires your attention:

Ticket: {{.Subject}}
Breach Type: {{.BreachType}}
Severity: {{.Severity}}
Escalation Level: {{.EscalationLevel}}

Original Assignee: {{.TechnicianName}}
Breach Duration: {{.BreachDuration}}

This issue has been escalated due to SLA policy violations.

Ticket Link: {{.TicketURL}}`

const escalationCommentText = `SLA Breach Escalation - {{.BreachType}}

Breach Details:
- Breach Time: {{.BreachTime}}
- Severity: {{.Severity}}
- Customer Impact: {{.CustomerImpact}}

This ticket has breached its SLA requirements and requires immediate attention.`

const escalationRecordText = `This is an escalation record for SLA breach management.

Original Ticket: #{{.TicketNumber}} - {{.Subject}}
Breach Type: {{.BreachType}}
Breach Time: {{.BreachTime}}
Severity: {{.Severity}}

Original Assignee: {{.TechnicianName}}
Customer Impact: {{.CustomerImpact}}

Please review and take appropriate action.`

// Template names accepted by TemplateSet.Render and referenced by
// escalation rules.
const (
	TemplateBreachNotification = "breach_notification"
	TemplateManagerEscalation  = "manager_escalation"
	TemplateEscalationComment  = "escalation_comment"
	TemplateEscalationRecord   = "escalation_record"
)

// TemplateSet renders the notification bodies used by escalation actions.
type TemplateSet struct {
	templates map[string]*template.Template
}

// NewTemplateSet parses the built-in templates.
func NewTemplateSet() *TemplateSet {
	set := &TemplateSet{templates: map[string]*template.Template{}}
	for name, text := range map[string]string{
		TemplateBreachNotification: breachNotificationText,
		TemplateManagerEscalation:  managerEscalationText,
		TemplateEscalationComment:  escalationCommentText,
		TemplateEscalationRecord:   escalationRecordText,
	} {
		set.templates[name] = template.Must(template.New(name).Parse(text))
	}
	return set
}

// Render produces the message body for a template. An unknown template or a
// rendering failure degrades to a minimal one-line alert.
func (s *TemplateSet) Render(name string, data MessageData) string {
	tmpl, ok := s.templates[name]
	if !ok {
		return "SLA Breach Alert for Ticket #" + data.TicketNumber
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "SLA Breach Alert for Ticket #" + data.TicketNumber
	}
	return sb.String()
}

// messageData assembles template variables from a breach and its ticket.
func messageData(breach domain.BreachRecord, ticket domain.TicketSnapshot, ticketBaseURL string, now time.Time) MessageData {
	technicianName := "Unassigned"
	if breach.TechnicianName != nil && *breach.TechnicianName != "" {
		technicianName = *breach.TechnicianName
	}
	return MessageData{
		TicketNumber:    ticket.Number,
		Subject:         ticket.Subject,
		BreachType:      titleCase(string(breach.BreachType)),
		Severity:        titleCase(string(breach.Severity)),
		BreachTime:      breach.BreachedAt.Format("2006-01-02 15:04:05"),
		TechnicianName:  technicianName,
		CustomerImpact:  titleCase(string(breach.CustomerImpact)),
		EscalationLevel: breach.EscalationLevel,
		BreachDuration:  formatMinutes(breach.Duration(now)),
		TicketURL:       ticketBaseURL + "/tickets/" + breach.TicketID,
	}
}

func formatMinutes(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return strconv.Itoa(minutes) + " minutes"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
