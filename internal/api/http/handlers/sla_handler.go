package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/dto"
	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/worker"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// SLAHandler exposes evaluation, prediction and sweep endpoints.
type SLAHandler struct {
	detector *detector.Detector
	sweeper  *worker.Sweeper
	policies *policy.Store
}

// NewSLAHandler constructs handler.
func NewSLAHandler(det *detector.Detector, sweeper *worker.Sweeper, policies *policy.Store) *SLAHandler {
	return &SLAHandler{detector: det, sweeper: sweeper, policies: policies}
}

// TicketRisk GET /tickets/:id/risk.
func (h *SLAHandler) TicketRisk(c *fiber.Ctx) error {
	report, err := h.detector.AnalyzeTicketRisk(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RiskReportFromDomain(report)})
}

// Predictions GET /predictions?window_minutes=120.
func (h *SLAHandler) Predictions(c *fiber.Ctx) error {
	window := 2 * time.Hour
	if raw := c.Query("window_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return apperrors.NewValidationError("window_minutes must be a positive integer", nil)
		}
		window = time.Duration(minutes) * time.Minute
	}

	predictions, err := h.detector.PredictPotentialBreaches(c.UserContext(), window)
	if err != nil {
		return err
	}
	items := make([]dto.PredictionSummary, 0, len(predictions))
	for _, prediction := range predictions {
		items = append(items, dto.PredictionFromDomain(prediction))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Sweep POST /sweep runs a detection and escalation cycle immediately.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	summary, err := h.sweeper.RunOnce(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepFromSummary(summary)})
}

// Policies GET /policies.
func (h *SLAHandler) Policies(c *fiber.Ctx) error {
	policies, err := h.policies.All(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.PolicySummary, 0, len(policies))
	for _, p := range policies {
		items = append(items, dto.PolicyFromDomain(p))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RefreshPolicies POST /policies/refresh forces a reload from the source.
func (h *SLAHandler) RefreshPolicies(c *fiber.Ctx) error {
	if err := h.policies.Refresh(c.UserContext()); err != nil {
		return err
	}
	return h.Policies(c)
}
