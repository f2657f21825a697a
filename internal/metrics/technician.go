package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/cache"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/sla"
	"github.com/spec-kit/sla-monitor/internal/source"
)

// TechnicianSLAMetrics aggregates a technician's SLA performance over a
// reporting period.
type TechnicianSLAMetrics struct {
	TechnicianID       string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	TotalTickets       int
	CompliantTickets   int
	ComplianceRate     float64
	ResponseBreaches   int
	ResolutionBreaches int
	AverageResponse    *time.Duration
	AverageResolution  *time.Duration
}

// Calculator computes technician metrics on demand, with short-lived caching
// because a full computation walks every ticket in the period.
type Calculator struct {
	tickets   source.TicketSource
	policies  *policy.Store
	evaluator *sla.Evaluator
	cache     cache.Store
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewCalculator builds a metrics calculator. cacheStore may be nil.
func NewCalculator(tickets source.TicketSource, policies *policy.Store, evaluator *sla.Evaluator, cacheStore cache.Store, ttl time.Duration, logger *zap.Logger) *Calculator {
	return &Calculator{
		tickets:   tickets,
		policies:  policies,
		evaluator: evaluator,
		cache:     cacheStore,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// TechnicianMetrics reports SLA performance for one technician between from
// and to. Results are cached per (technician, date range).
func (c *Calculator) TechnicianMetrics(ctx context.Context, technicianID string, from, to time.Time) (TechnicianSLAMetrics, error) {
	dateRange := from.Format("2006-01-02") + "_" + to.Format("2006-01-02")
	key := cache.TechnicianMetricsKey(technicianID, dateRange)
	return cache.GetOrRefresh(ctx, c.cache, key, c.ttl, func(ctx context.Context) (TechnicianSLAMetrics, error) {
		return c.compute(ctx, technicianID, from, to)
	})
}

func (c *Calculator) compute(ctx context.Context, technicianID string, from, to time.Time) (TechnicianSLAMetrics, error) {
	tickets, err := c.tickets.FetchTickets(ctx, source.TicketFilter{})
	if err != nil {
		return TechnicianSLAMetrics{}, err
	}

	report := TechnicianSLAMetrics{
		TechnicianID: technicianID,
		PeriodStart:  from,
		PeriodEnd:    to,
	}
	var responseTotal, resolutionTotal time.Duration
	var responseCount, resolutionCount int
	now := c.now()

	for _, ticket := range tickets {
		if ticket.Assignee == nil || ticket.Assignee.ID != technicianID {
			continue
		}
		if ticket.CreatedAt.Before(from) || ticket.CreatedAt.After(to) {
			continue
		}
		slaPolicy, err := c.policies.ForPriority(ctx, ticket.Priority)
		if err != nil {
			continue
		}
		status, err := c.evaluator.Evaluate(ticket, slaPolicy, now, nil)
		if err != nil {
			c.logger.Debug("metrics evaluation skipped",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}

		report.TotalTickets++
		if status.ResponseBreached {
			report.ResponseBreaches++
		}
		if status.ResolutionBreached {
			report.ResolutionBreaches++
		}
		if !status.Breached() {
			report.CompliantTickets++
		}
		if ticket.FirstResponseAt != nil {
			responseTotal += ticket.FirstResponseAt.Sub(ticket.CreatedAt)
			responseCount++
		}
		if ticket.ResolvedAt != nil {
			resolutionTotal += ticket.ResolvedAt.Sub(ticket.CreatedAt)
			resolutionCount++
		}
	}

	if report.TotalTickets > 0 {
		report.ComplianceRate = float64(report.CompliantTickets) / float64(report.TotalTickets)
	}
	if responseCount > 0 {
		avg := responseTotal / time.Duration(responseCount)
		report.AverageResponse = &avg
	}
	if resolutionCount > 0 {
		avg := resolutionTotal / time.Duration(resolutionCount)
		report.AverageResolution = &avg
	}
	return report, nil
}

// RosterOverview summarizes current workload across the technician roster.
type RosterOverview struct {
	ActiveTechnicians int
	OverloadedCount   int
	AverageLoadRatio  float64
}

// Overview reports the live workload picture used by reassignment decisions.
func (c *Calculator) Overview(ctx context.Context, overloadRatio float64) (RosterOverview, error) {
	roster, err := c.tickets.FetchTechnicians(ctx)
	if err != nil {
		return RosterOverview{}, err
	}
	var overview RosterOverview
	var loadTotal float64
	for _, technician := range roster {
		if !technician.Active {
			continue
		}
		overview.ActiveTechnicians++
		load := technician.LoadRatio()
		loadTotal += load
		if load >= overloadRatio {
			overview.OverloadedCount++
		}
	}
	if overview.ActiveTechnicians > 0 {
		overview.AverageLoadRatio = loadTotal / float64(overview.ActiveTechnicians)
	}
	return overview, nil
}
