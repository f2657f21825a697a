package sla

import (
	"fmt"
	"time"

	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/domain"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// Evaluator computes the SLA status of a ticket against its policy.
type Evaluator struct {
	calendar   *BusinessCalendar
	thresholds config.RiskThresholdsConfig
}

// NewEvaluator builds an evaluator over the given calendar and risk bands.
func NewEvaluator(calendar *BusinessCalendar, thresholds config.RiskThresholdsConfig) *Evaluator {
	return &Evaluator{calendar: calendar, thresholds: thresholds}
}

// dimension holds the outcome of a single SLA dimension check.
type dimension struct {
	breached  bool
	remaining *time.Duration
	target    time.Duration
}

// Evaluate computes the current SLA status for a ticket. The prior status,
// when present, carries the escalation level forward so that it never
// regresses between evaluations.
func (e *Evaluator) Evaluate(ticket domain.TicketSnapshot, policy domain.ServiceLevelPolicy, now time.Time, prior *domain.SLAStatus) (domain.SLAStatus, error) {
	if err := policy.Validate(); err != nil {
		return domain.SLAStatus{}, apperrors.NewInvalidPolicy(policy.ID, err)
	}
	if ticket.CreatedAt.IsZero() {
		return domain.SLAStatus{}, apperrors.NewParseError(ticket.ID, fmt.Errorf("ticket has no creation time"))
	}

	response := e.checkDimension(ticket.CreatedAt, ticket.FirstResponseAt, policy.ResponseTarget(), policy.BusinessHoursOnly, now)
	resolution := e.checkDimension(ticket.CreatedAt, ticket.ResolvedAt, policy.ResolutionTarget(), policy.BusinessHoursOnly, now)

	status := domain.SLAStatus{
		TicketID:            ticket.ID,
		TicketNumber:        ticket.Number,
		PolicyID:            policy.ID,
		CreatedAt:           ticket.CreatedAt,
		FirstResponseAt:     ticket.FirstResponseAt,
		ResolvedAt:          ticket.ResolvedAt,
		ResponseRemaining:   response.remaining,
		ResolutionRemaining: resolution.remaining,
		ResponseBreached:    response.breached,
		ResolutionBreached:  resolution.breached,
		RiskLevel:           e.riskLevel(response, resolution),
		EvaluatedAt:         now,
	}
	if prior != nil {
		status.EscalationLevel = prior.EscalationLevel
	}
	return status, nil
}

// checkDimension evaluates one SLA dimension. A completed dimension (the
// response or resolution already happened) is judged on its actual wall-clock
// duration and reports no remaining time. A pending dimension reports the
// remaining time clamped to zero once breached.
func (e *Evaluator) checkDimension(createdAt time.Time, completedAt *time.Time, target time.Duration, businessOnly bool, now time.Time) dimension {
	if completedAt != nil {
		return dimension{
			breached: completedAt.Sub(createdAt) > target,
			target:   target,
		}
	}
	remaining := e.calendar.Remaining(createdAt, now, target, businessOnly)
	breached := remaining <= 0
	if breached {
		remaining = 0
	}
	return dimension{
		breached:  breached,
		remaining: &remaining,
		target:    target,
	}
}

// riskLevel bands the ticket by the worst (smallest) remaining ratio across
// pending dimensions. Any breach is critical outright.
func (e *Evaluator) riskLevel(dims ...dimension) domain.RiskLevel {
	minRatio := 1.0
	for _, d := range dims {
		if d.breached {
			return domain.RiskCritical
		}
		if d.remaining == nil || *d.remaining <= 0 || d.target <= 0 {
			continue
		}
		ratio := float64(*d.remaining) / float64(d.target)
		if ratio < minRatio {
			minRatio = ratio
		}
	}
	switch {
	case minRatio > e.thresholds.Low:
		return domain.RiskLow
	case minRatio > e.thresholds.Medium:
		return domain.RiskMedium
	case minRatio > e.thresholds.High:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}
