package events

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBreachDetected     EventType = "breach_detected"
	EventBreachPredicted    EventType = "breach_predicted"
	EventEscalationExecuted EventType = "escalation_executed"
	EventSweepCompleted     EventType = "sweep_completed"
	EventPolicySetRefreshed EventType = "policy_set_refreshed"
)

// Event represents a domain event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BreachDetectedPayload payload.
type BreachDetectedPayload struct {
	BreachID       string                `json:"breach_id"`
	BreachType     domain.BreachType     `json:"breach_type"`
	Severity       domain.Severity       `json:"severity"`
	CustomerImpact domain.CustomerImpact `json:"customer_impact"`
	PolicyID       string                `json:"policy_id"`
}

// BreachPredictedPayload payload.
type BreachPredictedPayload struct {
	BreachType   domain.BreachType `json:"breach_type"`
	Confidence   float64           `json:"confidence"`
	TimeToBreach time.Duration     `json:"time_to_breach"`
	RiskFactors  []string          `json:"risk_factors"`
}

// EscalationExecutedPayload payload.
type EscalationExecutedPayload struct {
	BreachID          string   `json:"breach_id"`
	FiredRules        []string `json:"fired_rules"`
	TotalActions      int      `json:"total_actions"`
	SuccessfulActions int      `json:"successful_actions"`
}

// PolicySetRefreshedPayload payload.
type PolicySetRefreshedPayload struct {
	PolicyCount int `json:"policy_count"`
}

// SweepCompletedPayload payload.
type SweepCompletedPayload struct {
	TicketsChecked int `json:"tickets_checked"`
	TotalBreaches  int `json:"total_breaches"`
	NewBreaches    int `json:"new_breaches"`
	ItemErrors     int `json:"item_errors"`
}
