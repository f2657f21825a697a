package dto

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/worker"
)

// SLAStatusResponse is the evaluated status of one ticket.
type SLAStatusResponse struct {
	TicketID                 string           `json:"ticket_id"`
	TicketNumber             string           `json:"ticket_number"`
	PolicyID                 string           `json:"policy_id"`
	ResponseRemainingMinutes *int             `json:"response_remaining_minutes"`
	ResolutionRemainingMins  *int             `json:"resolution_remaining_minutes"`
	ResponseBreached         bool             `json:"response_breached"`
	ResolutionBreached       bool             `json:"resolution_breached"`
	RiskLevel                domain.RiskLevel `json:"risk_level"`
	EscalationLevel          int              `json:"escalation_level"`
	EvaluatedAt              time.Time        `json:"evaluated_at"`
}

// SLAStatusFromDomain converts a domain status, clamping remaining times to
// zero for presentation.
func SLAStatusFromDomain(status domain.SLAStatus) SLAStatusResponse {
	return SLAStatusResponse{
		TicketID:                 status.TicketID,
		TicketNumber:             status.TicketNumber,
		PolicyID:                 status.PolicyID,
		ResponseRemainingMinutes: minutesPtr(status.ResponseRemaining),
		ResolutionRemainingMins:  minutesPtr(status.ResolutionRemaining),
		ResponseBreached:         status.ResponseBreached,
		ResolutionBreached:       status.ResolutionBreached,
		RiskLevel:                status.RiskLevel,
		EscalationLevel:          status.EscalationLevel,
		EvaluatedAt:              status.EvaluatedAt,
	}
}

// BreachSummary is the API shape of a breach record.
type BreachSummary struct {
	ID                 string                `json:"id"`
	TicketID           string                `json:"ticket_id"`
	TicketNumber       string                `json:"ticket_number"`
	BreachType         domain.BreachType     `json:"breach_type"`
	BreachedAt         time.Time             `json:"breached_at"`
	PolicyID           string                `json:"policy_id"`
	TechnicianID       *string               `json:"technician_id,omitempty"`
	TechnicianName     *string               `json:"technician_name,omitempty"`
	Severity           domain.Severity       `json:"severity"`
	CustomerImpact     domain.CustomerImpact `json:"customer_impact"`
	EscalationRequired bool                  `json:"escalation_required"`
	EscalationLevel    int                   `json:"escalation_level"`
	ResolvedAt         *time.Time            `json:"resolved_at,omitempty"`
	RootCause          *string               `json:"root_cause,omitempty"`
	CorrectiveActions  []string              `json:"corrective_actions,omitempty"`
}

// BreachFromDomain converts a breach record.
func BreachFromDomain(breach domain.BreachRecord) BreachSummary {
	return BreachSummary{
		ID:                 breach.ID,
		TicketID:           breach.TicketID,
		TicketNumber:       breach.TicketNumber,
		BreachType:         breach.BreachType,
		BreachedAt:         breach.BreachedAt,
		PolicyID:           breach.PolicyID,
		TechnicianID:       breach.TechnicianID,
		TechnicianName:     breach.TechnicianName,
		Severity:           breach.Severity,
		CustomerImpact:     breach.CustomerImpact,
		EscalationRequired: breach.EscalationRequired,
		EscalationLevel:    breach.EscalationLevel,
		ResolvedAt:         breach.ResolvedAt,
		RootCause:          breach.RootCause,
		CorrectiveActions:  breach.CorrectiveActions,
	}
}

// PredictionSummary is the API shape of a breach prediction.
type PredictionSummary struct {
	TicketID            string            `json:"ticket_id"`
	BreachType          domain.BreachType `json:"breach_type"`
	PredictedAt         time.Time         `json:"predicted_at"`
	Confidence          float64           `json:"confidence"`
	TimeToBreachMinutes int               `json:"time_to_breach_minutes"`
	RiskFactors         []string          `json:"risk_factors"`
}

// PredictionFromDomain converts a prediction.
func PredictionFromDomain(p domain.BreachPrediction) PredictionSummary {
	return PredictionSummary{
		TicketID:            p.TicketID,
		BreachType:          p.BreachType,
		PredictedAt:         p.PredictedAt,
		Confidence:          p.Confidence,
		TimeToBreachMinutes: int(p.TimeToBreach.Minutes()),
		RiskFactors:         p.RiskFactors,
	}
}

// RiskReportResponse is the on-demand risk analysis of one ticket.
type RiskReportResponse struct {
	TicketID        string             `json:"ticket_id"`
	Status          SLAStatusResponse  `json:"status"`
	RiskScores      map[string]float64 `json:"risk_scores"`
	ActiveFactors   []string           `json:"active_factors"`
	TotalRiskScore  float64            `json:"total_risk_score"`
	RiskLevel       domain.RiskLevel   `json:"risk_level"`
	CurrentBreaches []BreachSummary    `json:"current_breaches"`
	Prediction      *PredictionSummary `json:"prediction,omitempty"`
	AnalyzedAt      time.Time          `json:"analyzed_at"`
}

// RiskReportFromDomain converts a detector risk report.
func RiskReportFromDomain(report *detector.RiskReport) RiskReportResponse {
	response := RiskReportResponse{
		TicketID:       report.TicketID,
		Status:         SLAStatusFromDomain(report.Status),
		RiskScores:     report.Analysis.Scores,
		ActiveFactors:  report.Analysis.ActiveFactors,
		TotalRiskScore: report.Analysis.TotalScore,
		RiskLevel:      report.Analysis.Level,
		AnalyzedAt:     report.AnalyzedAt,
	}
	for _, breach := range report.CurrentBreaches {
		response.CurrentBreaches = append(response.CurrentBreaches, BreachFromDomain(breach))
	}
	if report.Prediction != nil {
		prediction := PredictionFromDomain(*report.Prediction)
		response.Prediction = &prediction
	}
	return response
}

// SweepResponse reports the outcome of an on-demand sweep.
type SweepResponse struct {
	TicketsChecked int       `json:"tickets_checked"`
	TotalBreaches  int       `json:"total_breaches"`
	NewBreaches    int       `json:"new_breaches"`
	ItemErrors     int       `json:"item_errors"`
	RulesFired     int       `json:"rules_fired"`
	StartedAt      time.Time `json:"started_at"`
	DurationMillis int64     `json:"duration_ms"`
}

// SweepFromSummary converts a sweep summary.
func SweepFromSummary(summary *worker.SweepSummary) SweepResponse {
	return SweepResponse{
		TicketsChecked: summary.TicketsChecked,
		TotalBreaches:  summary.TotalBreaches,
		NewBreaches:    summary.NewBreaches,
		ItemErrors:     summary.ItemErrors,
		RulesFired:     summary.RulesFired,
		StartedAt:      summary.StartedAt,
		DurationMillis: summary.Duration.Milliseconds(),
	}
}

// ExecutionSummary is the API shape of one escalation action run.
type ExecutionSummary struct {
	RuleID    string    `json:"rule_id,omitempty"`
	RuleName  string    `json:"rule_name"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionFromDomain converts an escalation execution.
func ExecutionFromDomain(e domain.EscalationExecution) ExecutionSummary {
	return ExecutionSummary{
		RuleID:    e.RuleID,
		RuleName:  e.RuleName,
		Action:    string(e.Action),
		Success:   e.Success,
		Message:   e.Message,
		Error:     e.Error,
		Timestamp: e.Timestamp,
	}
}

// EscalationOutcomeResponse reports an on-demand escalation run.
type EscalationOutcomeResponse struct {
	BreachID          string             `json:"breach_id"`
	TicketID          string             `json:"ticket_id"`
	FiredRules        []string           `json:"fired_rules"`
	Executions        []ExecutionSummary `json:"executions"`
	SuccessfulActions int                `json:"successful_actions"`
	ProcessedAt       time.Time          `json:"processed_at"`
}

// ResolveBreachRequest payload.
type ResolveBreachRequest struct {
	RootCause         string   `json:"root_cause"`
	CorrectiveActions []string `json:"corrective_actions"`
}

// PolicySummary is the API shape of a service-level policy.
type PolicySummary struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Priority              domain.Priority `json:"priority"`
	ResponseTargetMinutes int             `json:"response_target_minutes"`
	ResolutionTargetHours int             `json:"resolution_target_hours"`
	BusinessHoursOnly     bool            `json:"business_hours_only"`
	Active                bool            `json:"active"`
	EscalationRules       int             `json:"escalation_rules"`
}

// PolicyFromDomain converts a policy.
func PolicyFromDomain(p domain.ServiceLevelPolicy) PolicySummary {
	return PolicySummary{
		ID:                    p.ID,
		Name:                  p.Name,
		Priority:              p.Priority,
		ResponseTargetMinutes: p.ResponseTargetMinutes,
		ResolutionTargetHours: p.ResolutionTargetHours,
		BusinessHoursOnly:     p.BusinessHoursOnly,
		Active:                p.Active,
		EscalationRules:       len(p.EscalationRules),
	}
}

func minutesPtr(d *time.Duration) *int {
	if d == nil {
		return nil
	}
	minutes := int(d.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}
