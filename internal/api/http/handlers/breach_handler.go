package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/dto"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/escalation"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// BreachHandler exposes the breach audit trail and on-demand escalation.
type BreachHandler struct {
	repo        repository.BreachRepository
	escalations *escalation.Manager
	tickets     source.TicketSource
	policies    *policy.Store
}

// NewBreachHandler constructs handler.
func NewBreachHandler(repo repository.BreachRepository, escalations *escalation.Manager, tickets source.TicketSource, policies *policy.Store) *BreachHandler {
	return &BreachHandler{repo: repo, escalations: escalations, tickets: tickets, policies: policies}
}

// ListOpen GET /breaches.
func (h *BreachHandler) ListOpen(c *fiber.Ctx) error {
	breaches, err := h.repo.ListOpenBreaches(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": breachSummaries(breaches)})
}

// Get GET /breaches/:id.
func (h *BreachHandler) Get(c *fiber.Ctx) error {
	breach, err := h.repo.GetBreach(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.BreachFromDomain(*breach)})
}

// ByTicket GET /tickets/:id/breaches.
func (h *BreachHandler) ByTicket(c *fiber.Ctx) error {
	breaches, err := h.repo.ListBreachesByTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": breachSummaries(breaches)})
}

// Executions GET /tickets/:id/executions.
func (h *BreachHandler) Executions(c *fiber.Ctx) error {
	executions, err := h.repo.ListExecutions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ExecutionSummary, 0, len(executions))
	for _, execution := range executions {
		items = append(items, dto.ExecutionFromDomain(execution))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Resolve POST /breaches/:id/resolve closes a breach with its root cause.
func (h *BreachHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveBreachRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RootCause == "" {
		return apperrors.NewValidationError("root_cause required", nil)
	}
	if err := h.repo.ResolveBreach(c.UserContext(), c.Params("id"), req.RootCause, req.CorrectiveActions); err != nil {
		return err
	}
	return h.Get(c)
}

// Escalate POST /breaches/:id/escalate runs the rule ladder for one breach.
func (h *BreachHandler) Escalate(c *fiber.Ctx) error {
	ctx := c.UserContext()
	breach, err := h.repo.GetBreach(ctx, c.Params("id"))
	if err != nil {
		return err
	}

	matches, err := h.tickets.FetchTickets(ctx, source.TicketFilter{ID: breach.TicketID})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": breach.TicketID})
	}

	var rules []domain.EscalationRule
	if breach.PolicyID != "" {
		if pol, err := h.policies.ByID(ctx, breach.PolicyID); err == nil {
			rules = pol.EscalationRules
		}
	}

	outcome, err := h.escalations.ProcessBreach(ctx, *breach, matches[0], rules)
	if err != nil {
		return err
	}

	response := dto.EscalationOutcomeResponse{
		BreachID:          outcome.BreachID,
		TicketID:          outcome.TicketID,
		FiredRules:        outcome.FiredRules,
		SuccessfulActions: outcome.SuccessfulActions,
		ProcessedAt:       outcome.ProcessedAt,
	}
	for _, execution := range outcome.Executions {
		response.Executions = append(response.Executions, dto.ExecutionFromDomain(execution))
	}
	return c.JSON(fiber.Map{"data": response})
}

func breachSummaries(breaches []domain.BreachRecord) []dto.BreachSummary {
	items := make([]dto.BreachSummary, 0, len(breaches))
	for _, breach := range breaches {
		items = append(items, dto.BreachFromDomain(breach))
	}
	return items
}
