package dto

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/metrics"
)

// TechnicianMetricsResponse is the per-technician compliance report.
type TechnicianMetricsResponse struct {
	TechnicianID             string    `json:"technician_id"`
	PeriodStart              time.Time `json:"period_start"`
	PeriodEnd                time.Time `json:"period_end"`
	TotalTickets             int       `json:"total_tickets"`
	CompliantTickets         int       `json:"compliant_tickets"`
	ComplianceRate           float64   `json:"compliance_rate"`
	ResponseBreaches         int       `json:"response_breaches"`
	ResolutionBreaches       int       `json:"resolution_breaches"`
	AverageResponseMinutes   *int      `json:"average_response_minutes,omitempty"`
	AverageResolutionMinutes *int      `json:"average_resolution_minutes,omitempty"`
}

// TechnicianMetricsFromDomain converts the calculator output.
func TechnicianMetricsFromDomain(m metrics.TechnicianSLAMetrics) TechnicianMetricsResponse {
	return TechnicianMetricsResponse{
		TechnicianID:             m.TechnicianID,
		PeriodStart:              m.PeriodStart,
		PeriodEnd:                m.PeriodEnd,
		TotalTickets:             m.TotalTickets,
		CompliantTickets:         m.CompliantTickets,
		ComplianceRate:           m.ComplianceRate,
		ResponseBreaches:         m.ResponseBreaches,
		ResolutionBreaches:       m.ResolutionBreaches,
		AverageResponseMinutes:   minutesPtr(m.AverageResponse),
		AverageResolutionMinutes: minutesPtr(m.AverageResolution),
	}
}

// RosterOverviewResponse is the live workload picture.
type RosterOverviewResponse struct {
	ActiveTechnicians int     `json:"active_technicians"`
	OverloadedCount   int     `json:"overloaded_count"`
	AverageLoadRatio  float64 `json:"average_load_ratio"`
}

// EngineMetricsResponse exposes sweep counters.
type EngineMetricsResponse struct {
	Sweeps          int64 `json:"sweeps"`
	BreachesFlagged int64 `json:"breaches_flagged"`
	SeenIncidents   int   `json:"seen_incidents"`
}

// TokenRequest exchanges an integration API key for a short-lived JWT.
type TokenRequest struct {
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

// TokenResponse carries an issued JWT.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
