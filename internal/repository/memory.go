package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// memoryBreachRepository keeps the audit trail in process memory. Used when
// no database is configured and in tests. Matches the Postgres semantics,
// including the no-op on duplicate incidents.
type memoryBreachRepository struct {
	mu         sync.RWMutex
	breaches   map[string]domain.BreachRecord
	executions map[string][]storedExecution
}

type storedExecution struct {
	incident  domain.IncidentKey
	execution domain.EscalationExecution
}

// NewMemoryBreachRepository instantiates the in-memory repository.
func NewMemoryBreachRepository() BreachRepository {
	return &memoryBreachRepository{
		breaches:   map[string]domain.BreachRecord{},
		executions: map[string][]storedExecution{},
	}
}

func (r *memoryBreachRepository) RecordBreach(_ context.Context, breach *domain.BreachRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.breaches {
		if existing.TicketID == breach.TicketID &&
			existing.BreachType == breach.BreachType &&
			existing.BreachedAt.Equal(breach.BreachedAt) {
			return nil
		}
	}
	if breach.CreatedAt.IsZero() {
		breach.CreatedAt = time.Now()
	}
	r.breaches[breach.ID] = *breach
	return nil
}

func (r *memoryBreachRepository) ResolveBreach(_ context.Context, breachID, rootCause string, correctiveActions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	breach, ok := r.breaches[breachID]
	if !ok || breach.ResolvedAt != nil {
		return apperrors.NewNotFound("open breach", map[string]any{"breach_id": breachID})
	}
	now := time.Now()
	breach.ResolvedAt = &now
	breach.RootCause = &rootCause
	breach.CorrectiveActions = append([]string{}, correctiveActions...)
	r.breaches[breachID] = breach
	return nil
}

func (r *memoryBreachRepository) GetBreach(_ context.Context, breachID string) (*domain.BreachRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	breach, ok := r.breaches[breachID]
	if !ok {
		return nil, apperrors.NewNotFound("breach", map[string]any{"breach_id": breachID})
	}
	return &breach, nil
}

func (r *memoryBreachRepository) ListOpenBreaches(_ context.Context) ([]domain.BreachRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []domain.BreachRecord
	for _, breach := range r.breaches {
		if breach.ResolvedAt == nil {
			open = append(open, breach)
		}
	}
	sortByBreachTime(open)
	return open, nil
}

func (r *memoryBreachRepository) ListBreachesByTicket(_ context.Context, ticketID string) ([]domain.BreachRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []domain.BreachRecord
	for _, breach := range r.breaches {
		if breach.TicketID == ticketID {
			matches = append(matches, breach)
		}
	}
	sortByBreachTime(matches)
	return matches, nil
}

func (r *memoryBreachRepository) RecordExecution(_ context.Context, incident domain.IncidentKey, execution domain.EscalationExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions[incident.TicketID] = append(r.executions[incident.TicketID], storedExecution{
		incident:  incident,
		execution: execution,
	})
	return nil
}

func (r *memoryBreachRepository) ListExecutions(_ context.Context, ticketID string) ([]domain.EscalationExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.executions[ticketID]
	executions := make([]domain.EscalationExecution, 0, len(stored))
	for _, entry := range stored {
		executions = append(executions, entry.execution)
	}
	return executions, nil
}

func (r *memoryBreachRepository) ListExecutionsByIncident(_ context.Context, incident domain.IncidentKey) ([]domain.EscalationExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var executions []domain.EscalationExecution
	for _, entry := range r.executions[incident.TicketID] {
		if entry.incident == incident {
			executions = append(executions, entry.execution)
		}
	}
	return executions, nil
}

func sortByBreachTime(breaches []domain.BreachRecord) {
	sort.Slice(breaches, func(i, j int) bool {
		return breaches[i].BreachedAt.Before(breaches[j].BreachedAt)
	})
}
