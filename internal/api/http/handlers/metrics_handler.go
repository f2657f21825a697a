package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/dto"
	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/metrics"
	"github.com/spec-kit/sla-monitor/internal/observability"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

const dateLayout = "2006-01-02"

// MetricsHandler exposes technician compliance and engine counters.
type MetricsHandler struct {
	calculator    *metrics.Calculator
	engine        *observability.Metrics
	detector      *detector.Detector
	overloadRatio float64
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(calculator *metrics.Calculator, engine *observability.Metrics, det *detector.Detector, overloadRatio float64) *MetricsHandler {
	return &MetricsHandler{calculator: calculator, engine: engine, detector: det, overloadRatio: overloadRatio}
}

// TechnicianMetrics GET /technicians/:id/metrics?from=2026-08-01&to=2026-09-01.
// Defaults to the trailing 30 days.
func (h *MetricsHandler) TechnicianMetrics(c *fiber.Ctx) error {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return apperrors.NewValidationError("from must be YYYY-MM-DD", nil)
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return apperrors.NewValidationError("to must be YYYY-MM-DD", nil)
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return apperrors.NewValidationError("from must precede to", nil)
	}

	result, err := h.calculator.TechnicianMetrics(c.UserContext(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TechnicianMetricsFromDomain(result)})
}

// RosterOverview GET /technicians/overview.
func (h *MetricsHandler) RosterOverview(c *fiber.Ctx) error {
	overview, err := h.calculator.Overview(c.UserContext(), h.overloadRatio)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RosterOverviewResponse{
		ActiveTechnicians: overview.ActiveTechnicians,
		OverloadedCount:   overview.OverloadedCount,
		AverageLoadRatio:  overview.AverageLoadRatio,
	}})
}

// EngineMetrics GET /metrics.
func (h *MetricsHandler) EngineMetrics(c *fiber.Ctx) error {
	sweeps, breaches := h.engine.SweepTotals()
	return c.JSON(fiber.Map{"data": dto.EngineMetricsResponse{
		Sweeps:          sweeps,
		BreachesFlagged: breaches,
		SeenIncidents:   h.detector.SeenCount(),
	}})
}
