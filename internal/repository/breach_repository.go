package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-monitor/internal/domain"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// BreachRepository is the audit store for observed breaches and executed
// escalation actions. Records are append-only; resolution closes a record
// but never removes it.
type BreachRepository interface {
	RecordBreach(ctx context.Context, breach *domain.BreachRecord) error
	ResolveBreach(ctx context.Context, breachID string, rootCause string, correctiveActions []string) error
	GetBreach(ctx context.Context, breachID string) (*domain.BreachRecord, error)
	ListOpenBreaches(ctx context.Context) ([]domain.BreachRecord, error)
	ListBreachesByTicket(ctx context.Context, ticketID string) ([]domain.BreachRecord, error)
	RecordExecution(ctx context.Context, incident domain.IncidentKey, execution domain.EscalationExecution) error
	ListExecutions(ctx context.Context, ticketID string) ([]domain.EscalationExecution, error)
	ListExecutionsByIncident(ctx context.Context, incident domain.IncidentKey) ([]domain.EscalationExecution, error)
}

type breachRepository struct {
	pool *pgxpool.Pool
}

// NewBreachRepository instantiates the Postgres-backed repository.
func NewBreachRepository(pool *pgxpool.Pool) BreachRepository {
	return &breachRepository{pool: pool}
}

func (r *breachRepository) RecordBreach(ctx context.Context, breach *domain.BreachRecord) error {
	const query = `
        INSERT INTO breach_records (id, ticket_id, ticket_number, breach_type, breached_at, policy_id,
            technician_id, technician_name, severity, customer_impact, escalation_required, escalation_level)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT ON CONSTRAINT breach_incident_unique DO NOTHING
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		breach.ID,
		breach.TicketID,
		breach.TicketNumber,
		breach.BreachType,
		breach.BreachedAt,
		breach.PolicyID,
		breach.TechnicianID,
		breach.TechnicianName,
		breach.Severity,
		breach.CustomerImpact,
		breach.EscalationRequired,
		breach.EscalationLevel,
	).Scan(&breach.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict target hit: the incident is already on record.
		return nil
	}
	return err
}

func (r *breachRepository) ResolveBreach(ctx context.Context, breachID, rootCause string, correctiveActions []string) error {
	const query = `
        UPDATE breach_records SET resolved_at=NOW(), root_cause=$1, corrective_actions=$2
        WHERE id=$3 AND resolved_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, rootCause, correctiveActions, breachID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("open breach", map[string]any{"breach_id": breachID})
	}
	return nil
}

const breachColumns = `id, ticket_id, ticket_number, breach_type, breached_at, policy_id,
    technician_id, technician_name, severity, customer_impact, escalation_required,
    escalation_level, resolved_at, root_cause, corrective_actions, created_at`

func (r *breachRepository) GetBreach(ctx context.Context, breachID string) (*domain.BreachRecord, error) {
	query := `SELECT ` + breachColumns + ` FROM breach_records WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, breachID)
	breach, err := scanBreach(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("breach", map[string]any{"breach_id": breachID})
	}
	if err != nil {
		return nil, err
	}
	return breach, nil
}

func (r *breachRepository) ListOpenBreaches(ctx context.Context) ([]domain.BreachRecord, error) {
	query := `SELECT ` + breachColumns + ` FROM breach_records WHERE resolved_at IS NULL ORDER BY breached_at`
	return r.queryBreaches(ctx, query)
}

func (r *breachRepository) ListBreachesByTicket(ctx context.Context, ticketID string) ([]domain.BreachRecord, error) {
	query := `SELECT ` + breachColumns + ` FROM breach_records WHERE ticket_id=$1 ORDER BY breached_at`
	return r.queryBreaches(ctx, query, ticketID)
}

func (r *breachRepository) queryBreaches(ctx context.Context, query string, args ...any) ([]domain.BreachRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breaches []domain.BreachRecord
	for rows.Next() {
		breach, err := scanBreach(rows)
		if err != nil {
			return nil, err
		}
		breaches = append(breaches, *breach)
	}
	return breaches, rows.Err()
}

func scanBreach(row pgx.Row) (*domain.BreachRecord, error) {
	var breach domain.BreachRecord
	err := row.Scan(
		&breach.ID,
		&breach.TicketID,
		&breach.TicketNumber,
		&breach.BreachType,
		&breach.BreachedAt,
		&breach.PolicyID,
		&breach.TechnicianID,
		&breach.TechnicianName,
		&breach.Severity,
		&breach.CustomerImpact,
		&breach.EscalationRequired,
		&breach.EscalationLevel,
		&breach.ResolvedAt,
		&breach.RootCause,
		&breach.CorrectiveActions,
		&breach.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &breach, nil
}

func (r *breachRepository) RecordExecution(ctx context.Context, incident domain.IncidentKey, execution domain.EscalationExecution) error {
	const query = `
        INSERT INTO escalation_executions (ticket_id, breach_type, rule_id, rule_name, action, success, message, error, executed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.pool.Exec(ctx, query,
		incident.TicketID,
		incident.BreachType,
		execution.RuleID,
		execution.RuleName,
		execution.Action,
		execution.Success,
		execution.Message,
		execution.Error,
		execution.Timestamp,
	)
	return err
}

const executionColumns = `rule_id, rule_name, action, success, message, error, executed_at`

func (r *breachRepository) ListExecutions(ctx context.Context, ticketID string) ([]domain.EscalationExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM escalation_executions WHERE ticket_id=$1 ORDER BY executed_at`
	return r.queryExecutions(ctx, query, ticketID)
}

func (r *breachRepository) ListExecutionsByIncident(ctx context.Context, incident domain.IncidentKey) ([]domain.EscalationExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM escalation_executions
        WHERE ticket_id=$1 AND breach_type=$2 ORDER BY executed_at`
	return r.queryExecutions(ctx, query, incident.TicketID, incident.BreachType)
}

func (r *breachRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]domain.EscalationExecution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.EscalationExecution
	for rows.Next() {
		var execution domain.EscalationExecution
		if err := rows.Scan(
			&execution.RuleID,
			&execution.RuleName,
			&execution.Action,
			&execution.Success,
			&execution.Message,
			&execution.Error,
			&execution.Timestamp,
		); err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}
