package domain

import "time"

// ActionKind is the closed set of escalation actions the engine can execute.
type ActionKind string

const (
	ActionNotifyTechnician       ActionKind = "notify_technician"
	ActionNotifyManager          ActionKind = "notify_manager"
	ActionUpdatePriority         ActionKind = "update_priority"
	ActionReassignTicket         ActionKind = "reassign_ticket"
	ActionAddComment             ActionKind = "add_comment"
	ActionCreateEscalationRecord ActionKind = "create_escalation_record"
)

// EscalationExecution is one appended history entry for an executed (or
// failed) escalation action. Entries are never mutated.
type EscalationExecution struct {
	RuleID    string
	RuleName  string
	Action    ActionKind
	Success   bool
	Message   string
	Timestamp time.Time
	Error     string
}
