package escalation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// actionContext carries everything a single action execution needs.
type actionContext struct {
	breach domain.BreachRecord
	ticket domain.TicketSnapshot
	rule   domain.EscalationRule
}

// executeAction dispatches one escalation action. The returned message is a
// short human-readable outcome; errors are wrapped as ACTION_FAILED by the
// manager.
func (m *Manager) executeAction(ctx context.Context, kind domain.ActionKind, ac actionContext) (string, error) {
	switch kind {
	case domain.ActionNotifyTechnician:
		return m.notifyTechnician(ctx, ac)
	case domain.ActionNotifyManager:
		return m.notifyManager(ctx, ac)
	case domain.ActionUpdatePriority:
		return m.updatePriority(ctx, ac)
	case domain.ActionReassignTicket:
		return m.reassignTicket(ctx, ac)
	case domain.ActionAddComment:
		return m.addComment(ctx, ac)
	case domain.ActionCreateEscalationRecord:
		return m.createEscalationRecord(ctx, ac)
	default:
		return "", fmt.Errorf("no handler for action %q", kind)
	}
}

// notifyTechnician alerts the assigned technician with a public ticket
// comment mentioning them, plus a best-effort direct notification.
func (m *Manager) notifyTechnician(ctx context.Context, ac actionContext) (string, error) {
	if ac.breach.TechnicianID == nil || *ac.breach.TechnicianID == "" {
		return "", fmt.Errorf("ticket %s has no assigned technician", ac.breach.TicketID)
	}
	templateName := ac.rule.NotificationTemplate
	if templateName == "" {
		templateName = TemplateBreachNotification
	}
	message := m.templates.Render(templateName, m.messageData(ac))

	commentID, err := m.sink.AddComment(ctx, ac.breach.TicketID, "SLA Breach Alert: "+message, []string{*ac.breach.TechnicianID}, false)
	if err != nil {
		return "", err
	}
	m.notifyBestEffort(ctx, *ac.breach.TechnicianID, message)
	return fmt.Sprintf("technician %s notified via comment %s", *ac.breach.TechnicianID, commentID), nil
}

// notifyManager escalates to the first available manager with an internal
// comment mentioning them.
func (m *Manager) notifyManager(ctx context.Context, ac actionContext) (string, error) {
	manager, err := m.findManager(ctx)
	if err != nil {
		return "", err
	}
	templateName := ac.rule.NotificationTemplate
	if templateName == "" {
		templateName = TemplateManagerEscalation
	}
	message := m.templates.Render(templateName, m.messageData(ac))

	commentID, err := m.sink.AddComment(ctx, ac.breach.TicketID, "Manager Escalation: "+message, []string{manager.ID}, true)
	if err != nil {
		return "", err
	}
	m.notifyBestEffort(ctx, manager.ID, message)
	return fmt.Sprintf("manager %s notified via comment %s", manager.ID, commentID), nil
}

// updatePriority bumps the ticket one priority tier. A ticket already at the
// top tier is a successful no-op; the outcome records that nothing moved.
func (m *Manager) updatePriority(ctx context.Context, ac actionContext) (string, error) {
	current := ac.ticket.Priority
	next := current.Escalated()
	if next == current {
		return fmt.Sprintf("priority already at maximum level (%s)", current), nil
	}
	if err := m.sink.UpdatePriority(ctx, ac.breach.TicketID, next); err != nil {
		return "", err
	}
	return fmt.Sprintf("priority raised %s -> %s", current, next), nil
}

// reassignTicket moves the ticket to the least loaded active technician,
// excluding the current assignee. No candidate is an explicit failure.
func (m *Manager) reassignTicket(ctx context.Context, ac actionContext) (string, error) {
	roster, err := m.users.FetchTechnicians(ctx)
	if err != nil {
		return "", err
	}

	currentID := ""
	if ac.breach.TechnicianID != nil {
		currentID = *ac.breach.TechnicianID
	}
	var best *domain.Technician
	for i := range roster {
		candidate := roster[i]
		role := strings.ToLower(candidate.Role)
		if role != "technician" && role != "engineer" {
			continue
		}
		if !candidate.Active || candidate.ID == currentID {
			continue
		}
		if best == nil || candidate.LoadRatio() < best.LoadRatio() {
			best = &roster[i]
		}
	}
	if best == nil {
		return "", apperrors.NewNotFound("available technician", map[string]any{"ticket_id": ac.breach.TicketID})
	}

	previousName := "Unassigned"
	if ac.breach.TechnicianName != nil && *ac.breach.TechnicianName != "" {
		previousName = *ac.breach.TechnicianName
	}
	reason := fmt.Sprintf("SLA breach escalation - reassigned from %s", previousName)
	if err := m.sink.Reassign(ctx, ac.breach.TicketID, best.ID, reason); err != nil {
		return "", err
	}
	return fmt.Sprintf("reassigned to %s (%s)", best.Name, best.ID), nil
}

// addComment appends an internal escalation note to the ticket.
func (m *Manager) addComment(ctx context.Context, ac actionContext) (string, error) {
	body := m.templates.Render(TemplateEscalationComment, m.messageData(ac))
	commentID, err := m.sink.AddComment(ctx, ac.breach.TicketID, body, nil, true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("escalation comment %s added", commentID), nil
}

// createEscalationRecord opens a tracking record for management follow-up.
func (m *Manager) createEscalationRecord(ctx context.Context, ac actionContext) (string, error) {
	payload := source.EscalationRecordPayload{
		Subject:        fmt.Sprintf("SLA Breach Escalation - Ticket #%s", ac.ticket.Number),
		Description:    m.templates.Render(TemplateEscalationRecord, m.messageData(ac)),
		Priority:       domain.PriorityHigh,
		Category:       "escalation",
		SourceTicketID: ac.breach.TicketID,
	}
	recordID, err := m.sink.CreateEscalationRecord(ctx, payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("escalation record %s created", recordID), nil
}

// findManager picks the first manager or supervisor from the roster.
func (m *Manager) findManager(ctx context.Context) (*domain.Technician, error) {
	roster, err := m.users.FetchTechnicians(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roster {
		role := strings.ToLower(roster[i].Role)
		if (role == "manager" || role == "supervisor") && roster[i].Active {
			return &roster[i], nil
		}
	}
	return nil, apperrors.NewNotFound("manager", nil)
}

// notifyBestEffort sends a direct notification without failing the action.
func (m *Manager) notifyBestEffort(ctx context.Context, recipientID, message string) {
	if err := m.sink.Notify(ctx, recipientID, m.notifyChannel, message); err != nil {
		m.logger.Warn("direct notification failed",
			zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

func (m *Manager) messageData(ac actionContext) MessageData {
	return messageData(ac.breach, ac.ticket, m.ticketBaseURL, m.now())
}
