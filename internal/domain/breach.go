package domain

import (
	"fmt"
	"time"
)

// BreachType identifies which SLA dimension was missed.
type BreachType string

const (
	BreachResponse   BreachType = "response"
	BreachResolution BreachType = "resolution"
)

// CustomerImpact grades the customer-facing consequence of a breach.
type CustomerImpact string

const (
	ImpactLow    CustomerImpact = "low"
	ImpactMedium CustomerImpact = "medium"
	ImpactHigh   CustomerImpact = "high"
)

// IncidentKey is the unit of escalation bookkeeping: one ticket crossed with
// one breach type.
type IncidentKey struct {
	TicketID   string
	BreachType BreachType
}

func (k IncidentKey) String() string {
	return fmt.Sprintf("%s_%s", k.TicketID, k.BreachType)
}

// BreachRecord is an audit-trail entry for an observed SLA breach. Records are
// created once, optionally resolved later, and never deleted.
type BreachRecord struct {
	ID                 string
	TicketID           string
	TicketNumber       string
	BreachType         BreachType
	BreachedAt         time.Time
	PolicyID           string
	TechnicianID       *string
	TechnicianName     *string
	Severity           Severity
	CustomerImpact     CustomerImpact
	EscalationRequired bool
	EscalationLevel    int
	ResolvedAt         *time.Time
	RootCause          *string
	CorrectiveActions  []string
	CreatedAt          time.Time
}

// Key returns the incident identity for dedup tracking.
func (b *BreachRecord) Key() IncidentKey {
	return IncidentKey{TicketID: b.TicketID, BreachType: b.BreachType}
}

// Resolved reports whether the breach has been closed out.
func (b *BreachRecord) Resolved() bool {
	return b.ResolvedAt != nil
}

// Duration is the time the breach has been (or was) open.
func (b *BreachRecord) Duration(now time.Time) time.Duration {
	end := now
	if b.ResolvedAt != nil {
		end = *b.ResolvedAt
	}
	return end.Sub(b.BreachedAt)
}

// BreachPrediction forecasts a breach inside a lookahead window. Predictions
// are ephemeral: recomputed every cycle and superseded by a BreachRecord once
// the breach actually occurs.
type BreachPrediction struct {
	TicketID     string
	BreachType   BreachType
	PredictedAt  time.Time
	Confidence   float64
	TimeToBreach time.Duration
	RiskFactors  []string
}
