package source

import (
	"context"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// TicketFilter narrows a ticket fetch.
type TicketFilter struct {
	ID         string
	ActiveOnly bool
	Priority   *domain.Priority
	Limit      int
}

// PolicySource supplies service-level policies from the remote service desk.
type PolicySource interface {
	FetchPolicies(ctx context.Context) ([]domain.ServiceLevelPolicy, error)
	FetchPolicyByPriority(ctx context.Context, priority domain.Priority) (*domain.ServiceLevelPolicy, error)
}

// TicketSource supplies ticket snapshots and technician rosters.
type TicketSource interface {
	FetchTickets(ctx context.Context, filter TicketFilter) ([]domain.TicketSnapshot, error)
	FetchTechnicians(ctx context.Context) ([]domain.Technician, error)
}

// EscalationRecordPayload describes the tracking record opened for a breach.
type EscalationRecordPayload struct {
	Subject        string          `json:"subject"`
	Description    string          `json:"description"`
	Priority       domain.Priority `json:"priority"`
	Category       string          `json:"category"`
	SourceTicketID string          `json:"source_ticket_id"`
}

// ActionSink executes ticket mutations and notifications on the remote
// service desk. Every call is fallible and must never block the rest of an
// escalation run.
type ActionSink interface {
	AddComment(ctx context.Context, ticketID, text string, mentions []string, internal bool) (string, error)
	UpdatePriority(ctx context.Context, ticketID string, priority domain.Priority) error
	Reassign(ctx context.Context, ticketID, newAssigneeID, reason string) error
	Notify(ctx context.Context, recipientID, channel, message string) error
	CreateEscalationRecord(ctx context.Context, payload EscalationRecordPayload) (string, error)
}
