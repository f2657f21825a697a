package repository

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

func sampleBreach(id, ticketID string, breachedAt time.Time) *domain.BreachRecord {
	return &domain.BreachRecord{
		ID:             id,
		TicketID:       ticketID,
		TicketNumber:   "T-" + ticketID,
		BreachType:     domain.BreachResponse,
		BreachedAt:     breachedAt,
		PolicyID:       "pol-high",
		Severity:       domain.SeverityError,
		CustomerImpact: domain.ImpactMedium,
	}
}

func TestRecordBreachIgnoresDuplicateIncident(t *testing.T) {
	repo := NewMemoryBreachRepository()
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	if err := repo.RecordBreach(ctx, sampleBreach("brc-1", "tkt-1", at)); err != nil {
		t.Fatalf("RecordBreach: %v", err)
	}
	if err := repo.RecordBreach(ctx, sampleBreach("brc-2", "tkt-1", at)); err != nil {
		t.Fatalf("RecordBreach duplicate: %v", err)
	}

	open, err := repo.ListOpenBreaches(ctx)
	if err != nil {
		t.Fatalf("ListOpenBreaches: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open breaches = %d, want 1 after duplicate insert", len(open))
	}
}

func TestResolveBreach(t *testing.T) {
	repo := NewMemoryBreachRepository()
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	if err := repo.RecordBreach(ctx, sampleBreach("brc-1", "tkt-1", at)); err != nil {
		t.Fatalf("RecordBreach: %v", err)
	}
	if err := repo.ResolveBreach(ctx, "brc-1", "staffing gap", []string{"added on-call rotation"}); err != nil {
		t.Fatalf("ResolveBreach: %v", err)
	}

	breach, err := repo.GetBreach(ctx, "brc-1")
	if err != nil {
		t.Fatalf("GetBreach: %v", err)
	}
	if !breach.Resolved() {
		t.Error("breach not marked resolved")
	}
	if breach.RootCause == nil || *breach.RootCause != "staffing gap" {
		t.Errorf("RootCause = %v, want staffing gap", breach.RootCause)
	}

	// Resolving twice fails: the record is no longer open.
	if err := repo.ResolveBreach(ctx, "brc-1", "x", nil); !apperrors.IsNotFound(err) {
		t.Errorf("second resolve = %v, want NOT_FOUND", err)
	}

	open, _ := repo.ListOpenBreaches(ctx)
	if len(open) != 0 {
		t.Errorf("open breaches = %d, want 0 after resolve", len(open))
	}
}

func TestListBreachesByTicketOrdersByTime(t *testing.T) {
	repo := NewMemoryBreachRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	later := sampleBreach("brc-2", "tkt-1", base.Add(time.Hour))
	later.BreachType = domain.BreachResolution
	if err := repo.RecordBreach(ctx, later); err != nil {
		t.Fatalf("RecordBreach: %v", err)
	}
	if err := repo.RecordBreach(ctx, sampleBreach("brc-1", "tkt-1", base)); err != nil {
		t.Fatalf("RecordBreach: %v", err)
	}

	breaches, err := repo.ListBreachesByTicket(ctx, "tkt-1")
	if err != nil {
		t.Fatalf("ListBreachesByTicket: %v", err)
	}
	if len(breaches) != 2 {
		t.Fatalf("breaches = %d, want 2", len(breaches))
	}
	if breaches[0].ID != "brc-1" || breaches[1].ID != "brc-2" {
		t.Errorf("order = [%s %s], want [brc-1 brc-2]", breaches[0].ID, breaches[1].ID)
	}
}

func TestExecutionsRoundTrip(t *testing.T) {
	repo := NewMemoryBreachRepository()
	ctx := context.Background()
	incident := domain.IncidentKey{TicketID: "tkt-1", BreachType: domain.BreachResponse}

	execution := domain.EscalationExecution{
		RuleID:    "default-immediate",
		RuleName:  "Immediate Technician Notification",
		Action:    domain.ActionAddComment,
		Success:   true,
		Message:   "escalation comment cmt-1 added",
		Timestamp: time.Now(),
	}
	if err := repo.RecordExecution(ctx, incident, execution); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	executions, err := repo.ListExecutions(ctx, "tkt-1")
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(executions))
	}
	if executions[0].Action != domain.ActionAddComment {
		t.Errorf("action = %s, want add_comment", executions[0].Action)
	}
}
