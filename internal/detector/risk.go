package detector

import (
	"strings"
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// Risk factor names reported in analyses and predictions.
const (
	FactorHighPriority       = "high_priority_ticket"
	FactorComplexCategory    = "complex_category"
	FactorTechnicianOverload = "technician_overload"
	FactorTimeOfDay          = "time_of_day"
	FactorHistoricalDelays   = "historical_delays"
)

// Categories that historically take longer to work.
var complexCategories = []string{"infrastructure", "security", "integration"}

// Categories whose breaches hit customers hardest.
var highImpactCategories = []string{"outage", "security", "critical"}

// RiskAnalysis is the weighted risk factor breakdown for one ticket.
type RiskAnalysis struct {
	Scores        map[string]float64
	ActiveFactors []string
	TotalScore    float64
	Level         domain.RiskLevel
}

// analyzeRiskFactors scores the ticket against the configured factor weights.
func (d *Detector) analyzeRiskFactors(ticket domain.TicketSnapshot, status domain.SLAStatus, now time.Time) RiskAnalysis {
	analysis := RiskAnalysis{Scores: map[string]float64{}}
	add := func(factor string, weight float64) {
		analysis.Scores[factor] = weight
		analysis.ActiveFactors = append(analysis.ActiveFactors, factor)
		analysis.TotalScore += weight
	}

	if ticket.Priority == domain.PriorityHigh || ticket.Priority == domain.PriorityCritical {
		add(FactorHighPriority, d.weights.HighPriorityTicket)
	}
	if categoryMatches(ticket.Category, complexCategories) {
		add(FactorComplexCategory, d.weights.ComplexCategory)
	}
	if ticket.Assignee != nil && ticket.Assignee.MaxConcurrent > 0 {
		load := float64(ticket.Assignee.OpenTickets) / float64(ticket.Assignee.MaxConcurrent)
		if load >= d.overloadRatio {
			add(FactorTechnicianOverload, d.weights.TechnicianOverload)
		}
	}
	if !d.calendar.InWindowHours(now) {
		add(FactorTimeOfDay, d.weights.TimeOfDay)
	}
	if status.RiskLevel == domain.RiskHigh || status.RiskLevel == domain.RiskCritical {
		add(FactorHistoricalDelays, d.weights.HistoricalDelays)
	}

	analysis.Level = d.categorizeRiskScore(analysis.TotalScore)
	return analysis
}

func (d *Detector) categorizeRiskScore(score float64) domain.RiskLevel {
	switch {
	case score >= d.bands.Critical:
		return domain.RiskCritical
	case score >= d.bands.High:
		return domain.RiskHigh
	case score >= d.bands.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// breachSeverity maps the policy priority to an alert severity.
func breachSeverity(priority domain.Priority) domain.Severity {
	switch priority {
	case domain.PriorityCritical:
		return domain.SeverityCritical
	case domain.PriorityHigh:
		return domain.SeverityError
	case domain.PriorityMedium:
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

// customerImpact grades how badly a breach of this ticket lands on the
// customer.
func customerImpact(ticket domain.TicketSnapshot) domain.CustomerImpact {
	if ticket.Priority == domain.PriorityCritical || categoryMatches(ticket.Category, highImpactCategories) {
		return domain.ImpactHigh
	}
	if ticket.Priority == domain.PriorityHigh {
		return domain.ImpactMedium
	}
	return domain.ImpactLow
}

func categoryMatches(category string, needles []string) bool {
	lowered := strings.ToLower(category)
	for _, needle := range needles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}
