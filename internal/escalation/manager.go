package escalation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/source"
)

// Recorder persists executed escalation actions for audit. Implementations
// must tolerate duplicate appends; the manager retries nothing.
type Recorder interface {
	RecordExecution(ctx context.Context, incident domain.IncidentKey, execution domain.EscalationExecution) error
}

// executionKey identifies a rule firing: each rule fires at most once per
// ticket and breach type.
type executionKey struct {
	incident domain.IncidentKey
	ruleName string
}

// Manager runs escalation rules against detected breaches. Incidents are
// processed serially per incident key so concurrent sweeps cannot double-fire
// a rule; distinct incidents proceed in parallel.
type Manager struct {
	sink          source.ActionSink
	users         source.TicketSource
	recorder      Recorder
	templates     *TemplateSet
	defaultRules  []domain.EscalationRule
	ticketBaseURL string
	notifyChannel string
	logger        *zap.Logger
	now           func() time.Time

	mu       sync.Mutex
	executed map[executionKey]bool
	history  map[string][]domain.EscalationExecution
	locks    map[domain.IncidentKey]*sync.Mutex
}

// Options configures a Manager.
type Options struct {
	Sink          source.ActionSink
	Users         source.TicketSource
	Recorder      Recorder
	TicketBaseURL string
	NotifyChannel string
	Logger        *zap.Logger
}

// NewManager builds an escalation manager with the built-in default rules.
func NewManager(opts Options) *Manager {
	channel := opts.NotifyChannel
	if channel == "" {
		channel = "slack"
	}
	return &Manager{
		sink:          opts.Sink,
		users:         opts.Users,
		recorder:      opts.Recorder,
		templates:     NewTemplateSet(),
		defaultRules:  DefaultRules(),
		ticketBaseURL: opts.TicketBaseURL,
		notifyChannel: channel,
		logger:        opts.Logger,
		now:           time.Now,
		executed:      map[executionKey]bool{},
		history:       map[string][]domain.EscalationExecution{},
		locks:         map[domain.IncidentKey]*sync.Mutex{},
	}
}

// DefaultRules is the rule ladder applied when a policy carries no escalation
// rules of its own.
func DefaultRules() []domain.EscalationRule {
	return []domain.EscalationRule{
		{
			ID:                  "default-immediate",
			Name:                "Immediate Technician Notification",
			TriggerAfterMinutes: 0,
			Actions:             []domain.ActionKind{domain.ActionNotifyTechnician, domain.ActionAddComment},
			MinSeverity:         domain.SeverityWarning,
			Active:              true,
		},
		{
			ID:                  "default-manager",
			Name:                "Manager Escalation",
			TriggerAfterMinutes: 30,
			Actions:             []domain.ActionKind{domain.ActionNotifyManager, domain.ActionUpdatePriority},
			MinSeverity:         domain.SeverityError,
			Active:              true,
		},
		{
			ID:                  "default-critical",
			Name:                "Critical Escalation",
			TriggerAfterMinutes: 60,
			Actions:             []domain.ActionKind{domain.ActionCreateEscalationRecord, domain.ActionReassignTicket},
			MinSeverity:         domain.SeverityCritical,
			Active:              true,
		},
	}
}

// Outcome is the result of processing one breach through the rule ladder.
type Outcome struct {
	BreachID          string
	TicketID          string
	FiredRules        []string
	Executions        []domain.EscalationExecution
	SuccessfulActions int
	ProcessedAt       time.Time
}

// ProcessBreach evaluates the rules for a breach and executes the actions of
// every rule that is due. Rules are evaluated in order. Action failures are
// recorded in the outcome and never abort the remaining actions.
func (m *Manager) ProcessBreach(ctx context.Context, breach domain.BreachRecord, ticket domain.TicketSnapshot, rules []domain.EscalationRule) (*Outcome, error) {
	if len(rules) == 0 {
		rules = m.applicableDefaults(breach.Severity)
	}

	unlock := m.lockIncident(breach.Key())
	defer unlock()

	now := m.now()
	outcome := &Outcome{
		BreachID:    breach.ID,
		TicketID:    breach.TicketID,
		ProcessedAt: now,
	}

	for _, rule := range rules {
		if !m.shouldTrigger(rule, breach, now) {
			continue
		}
		m.markExecuted(breach.Key(), rule.Name)
		outcome.FiredRules = append(outcome.FiredRules, rule.Name)
		m.logger.Info("escalation rule triggered",
			zap.String("ticket_id", breach.TicketID),
			zap.String("breach_type", string(breach.BreachType)),
			zap.String("rule", rule.Name))

		for _, kind := range rule.Actions {
			execution := m.runAction(ctx, kind, actionContext{breach: breach, ticket: ticket, rule: rule})
			outcome.Executions = append(outcome.Executions, execution)
			if execution.Success {
				outcome.SuccessfulActions++
			}
			m.appendHistory(ctx, breach.Key(), execution)
		}
	}

	return outcome, nil
}

// shouldTrigger gates a rule on activity, severity, elapsed time since the
// breach, and the at-most-once guarantee.
func (m *Manager) shouldTrigger(rule domain.EscalationRule, breach domain.BreachRecord, now time.Time) bool {
	if !rule.Active {
		return false
	}
	minSeverity := rule.MinSeverity
	if minSeverity == "" {
		minSeverity = domain.SeverityWarning
	}
	if !breach.Severity.AtLeast(minSeverity) {
		return false
	}
	if rule.TriggerAfterMinutes > 0 && now.Sub(breach.BreachedAt) < rule.TriggerAfter() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.executed[executionKey{incident: breach.Key(), ruleName: rule.Name}]
}

// runAction executes one action and wraps the result as a history entry.
func (m *Manager) runAction(ctx context.Context, kind domain.ActionKind, ac actionContext) domain.EscalationExecution {
	execution := domain.EscalationExecution{
		RuleID:    ac.rule.ID,
		RuleName:  ac.rule.Name,
		Action:    kind,
		Timestamp: m.now(),
	}
	message, err := m.executeAction(ctx, kind, ac)
	if err != nil {
		execution.Success = false
		execution.Message = "action failed"
		execution.Error = err.Error()
		m.logger.Error("escalation action failed",
			zap.String("ticket_id", ac.breach.TicketID),
			zap.String("action", string(kind)),
			zap.Error(err))
		return execution
	}
	execution.Success = true
	execution.Message = message
	return execution
}

// applicableDefaults filters the default ladder by breach severity.
func (m *Manager) applicableDefaults(severity domain.Severity) []domain.EscalationRule {
	var rules []domain.EscalationRule
	for _, rule := range m.defaultRules {
		if severity.AtLeast(rule.MinSeverity) {
			rules = append(rules, rule)
		}
	}
	return rules
}

// History returns the recorded executions for a ticket.
func (m *Manager) History(ticketID string) []domain.EscalationExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[ticketID]
	out := make([]domain.EscalationExecution, len(entries))
	copy(out, entries)
	return out
}

// MarkFired primes the at-most-once set, typically from persisted history at
// startup.
func (m *Manager) MarkFired(incident domain.IncidentKey, ruleName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed[executionKey{incident: incident, ruleName: ruleName}] = true
}

func (m *Manager) markExecuted(incident domain.IncidentKey, ruleName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed[executionKey{incident: incident, ruleName: ruleName}] = true
}

func (m *Manager) appendHistory(ctx context.Context, incident domain.IncidentKey, execution domain.EscalationExecution) {
	m.mu.Lock()
	m.history[incident.TicketID] = append(m.history[incident.TicketID], execution)
	m.mu.Unlock()

	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordExecution(ctx, incident, execution); err != nil {
		m.logger.Warn("escalation history persist failed",
			zap.String("ticket_id", incident.TicketID), zap.Error(err))
	}
}

// lockIncident serializes processing per incident key.
func (m *Manager) lockIncident(key domain.IncidentKey) func() {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
