package domain

import "time"

// RiskLevel classifies how close a ticket is to breaching.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// SLAStatus is the evaluated SLA position of one ticket against one policy at
// one instant. It is a cache of a deterministic function of (snapshot, policy,
// now) and is never the source of truth.
type SLAStatus struct {
	TicketID            string
	TicketNumber        string
	PolicyID            string
	CreatedAt           time.Time
	FirstResponseAt     *time.Time
	ResolvedAt          *time.Time
	ResponseRemaining   *time.Duration
	ResolutionRemaining *time.Duration
	ResponseBreached    bool
	ResolutionBreached  bool
	RiskLevel           RiskLevel
	EscalationLevel     int
	EvaluatedAt         time.Time
}

// Breached reports whether either SLA dimension is breached.
func (s *SLAStatus) Breached() bool {
	return s.ResponseBreached || s.ResolutionBreached
}
