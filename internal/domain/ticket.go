package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "open"
	TicketStatusInProgress  TicketStatus = "in_progress"
	TicketStatusPendingUser TicketStatus = "pending_user"
	TicketStatusResolved    TicketStatus = "resolved"
	TicketStatusClosed      TicketStatus = "closed"
	TicketStatusCancelled   TicketStatus = "cancelled"
)

// Terminal reports whether the status ends SLA tracking for the ticket.
func (s TicketStatus) Terminal() bool {
	switch TicketStatus(strings.ToLower(string(s))) {
	case TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	default:
		return false
	}
}

// TechnicianRef is the assignee summary embedded in a ticket snapshot.
type TechnicianRef struct {
	ID            string
	Name          string
	OpenTickets   int
	MaxConcurrent int
}

// Technician is a service-desk user eligible for assignment.
type Technician struct {
	ID            string
	Name          string
	Email         string
	Role          string
	Active        bool
	OpenTickets   int
	MaxConcurrent int
}

// LoadRatio is the technician's current workload against capacity.
func (t Technician) LoadRatio() float64 {
	if t.MaxConcurrent <= 0 {
		return 0
	}
	return float64(t.OpenTickets) / float64(t.MaxConcurrent)
}

// TicketSnapshot is an immutable point-in-time read of a remote ticket.
// The engine never mutates it; ticket changes go through the action sink.
type TicketSnapshot struct {
	ID              string
	Number          string
	Subject         string
	Status          TicketStatus
	Priority        Priority
	Category        string
	CustomerTier    string
	CreatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	Assignee        *TechnicianRef
}
