package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/escalation"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/source"
)

// Sweeper runs the periodic detection and escalation cycle: detect breaches
// across active tickets, persist the new ones, run each breach through the
// escalation ladder, and emit events for downstream consumers.
type Sweeper struct {
	policies    *policy.Store
	detector    *detector.Detector
	escalations *escalation.Manager
	breaches    repository.BreachRepository
	events      events.Dispatcher
	metrics     *observability.Metrics
	window      time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Dependencies wires the sweeper. Breaches, Events and Metrics are optional;
// a nil value disables the corresponding side effect. PredictionWindow bounds
// the forecast pass and defaults to two hours.
type Dependencies struct {
	Policies         *policy.Store
	Detector         *detector.Detector
	Escalations      *escalation.Manager
	Breaches         repository.BreachRepository
	Events           events.Dispatcher
	Metrics          *observability.Metrics
	PredictionWindow time.Duration
	Logger           *zap.Logger
}

// NewSweeper creates a sweeper from its dependencies.
func NewSweeper(deps Dependencies) *Sweeper {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := deps.PredictionWindow
	if window <= 0 {
		window = 2 * time.Hour
	}
	return &Sweeper{
		policies:    deps.Policies,
		detector:    deps.Detector,
		escalations: deps.Escalations,
		breaches:    deps.Breaches,
		events:      deps.Events,
		metrics:     deps.Metrics,
		window:      window,
		logger:      logger,
		now:         time.Now,
	}
}

// SweepSummary reports the outcome of one sweep cycle.
type SweepSummary struct {
	TicketsChecked int
	TotalBreaches  int
	NewBreaches    int
	ItemErrors     int
	RulesFired     int
	Predictions    int
	StartedAt      time.Time
	Duration       time.Duration
}

// Prime restores state from the audit trail after a restart: open breaches
// are marked seen so they are not re-announced, and persisted executions are
// marked fired so rules keep their at-most-once guarantee across restarts.
func (s *Sweeper) Prime(ctx context.Context) error {
	if s.breaches == nil {
		return nil
	}
	open, err := s.breaches.ListOpenBreaches(ctx)
	if err != nil {
		return err
	}
	for _, breach := range open {
		key := breach.Key()
		s.detector.MarkSeen(key)
		executions, err := s.breaches.ListExecutionsByIncident(ctx, key)
		if err != nil {
			return err
		}
		for _, execution := range executions {
			s.escalations.MarkFired(key, execution.RuleName)
		}
	}
	s.logger.Info("sweeper primed from audit trail", zap.Int("open_breaches", len(open)))
	return nil
}

// Start begins the periodic sweep loop. It blocks until the stop channel is
// closed, so callers run it in a goroutine.
func (s *Sweeper) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sweep engine started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
			cancel()
		case <-stop:
			s.logger.Info("sweep engine stopped")
			return
		}
	}
}

// RunOnce executes a single sweep cycle over all active tickets.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepSummary, error) {
	startedAt := s.now()

	result, err := s.detector.DetectCurrentBreaches(ctx, source.TicketFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	for i := range result.NewBreaches {
		s.recordBreach(ctx, &result.NewBreaches[i])
	}

	rulesFired := 0
	for _, breach := range result.Breaches {
		ticket, ok := result.Tickets[breach.TicketID]
		if !ok {
			continue
		}
		rulesFired += s.escalate(ctx, breach, ticket)
	}

	summary := &SweepSummary{
		TicketsChecked: len(result.Tickets),
		TotalBreaches:  len(result.Breaches),
		NewBreaches:    len(result.NewBreaches),
		ItemErrors:     len(result.ItemErrors),
		RulesFired:     rulesFired,
		Predictions:    s.forecast(ctx),
		StartedAt:      startedAt,
		Duration:       s.now().Sub(startedAt),
	}

	s.metrics.RecordSweep(summary.NewBreaches)
	s.publish(ctx, events.EventSweepCompleted, "", events.SweepCompletedPayload{
		TicketsChecked: summary.TicketsChecked,
		TotalBreaches:  summary.TotalBreaches,
		NewBreaches:    summary.NewBreaches,
		ItemErrors:     summary.ItemErrors,
	})
	s.logger.Info("sweep completed",
		zap.Int("tickets_checked", summary.TicketsChecked),
		zap.Int("total_breaches", summary.TotalBreaches),
		zap.Int("new_breaches", summary.NewBreaches),
		zap.Int("item_errors", summary.ItemErrors),
		zap.Int("rules_fired", summary.RulesFired),
		zap.Int("predictions", summary.Predictions),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// forecast announces tickets expected to breach inside the prediction window.
// Forecast failures degrade early warning only, never the sweep itself.
func (s *Sweeper) forecast(ctx context.Context) int {
	predictions, err := s.detector.PredictPotentialBreaches(ctx, s.window)
	if err != nil {
		s.logger.Warn("breach forecast failed", zap.Error(err))
		return 0
	}
	for _, prediction := range predictions {
		s.publish(ctx, events.EventBreachPredicted, prediction.TicketID, events.BreachPredictedPayload{
			BreachType:   prediction.BreachType,
			Confidence:   prediction.Confidence,
			TimeToBreach: prediction.TimeToBreach,
			RiskFactors:  prediction.RiskFactors,
		})
	}
	return len(predictions)
}

// recordBreach persists a newly observed breach and announces it. Audit
// failures are logged and never abort the sweep.
func (s *Sweeper) recordBreach(ctx context.Context, breach *domain.BreachRecord) {
	if s.breaches != nil {
		if err := s.breaches.RecordBreach(ctx, breach); err != nil {
			s.logger.Warn("breach audit write failed",
				zap.String("ticket_id", breach.TicketID),
				zap.String("breach_type", string(breach.BreachType)),
				zap.Error(err))
		}
	}
	s.publish(ctx, events.EventBreachDetected, breach.TicketID, events.BreachDetectedPayload{
		BreachID:       breach.ID,
		BreachType:     breach.BreachType,
		Severity:       breach.Severity,
		CustomerImpact: breach.CustomerImpact,
		PolicyID:       breach.PolicyID,
	})
}

// escalate runs one breach through its policy's rule ladder, falling back to
// the default ladder when the policy defines none. Returns the number of
// rules that fired.
func (s *Sweeper) escalate(ctx context.Context, breach domain.BreachRecord, ticket domain.TicketSnapshot) int {
	var rules []domain.EscalationRule
	if s.policies != nil && breach.PolicyID != "" {
		if pol, err := s.policies.ByID(ctx, breach.PolicyID); err == nil {
			rules = pol.EscalationRules
		}
	}

	outcome, err := s.escalations.ProcessBreach(ctx, breach, ticket, rules)
	if err != nil {
		s.logger.Error("escalation processing failed",
			zap.String("ticket_id", breach.TicketID),
			zap.String("breach_type", string(breach.BreachType)),
			zap.Error(err))
		return 0
	}
	if len(outcome.FiredRules) == 0 {
		return 0
	}

	s.detector.RecordEscalation(ctx, breach.TicketID, breach.EscalationLevel+len(outcome.FiredRules))
	s.publish(ctx, events.EventEscalationExecuted, breach.TicketID, events.EscalationExecutedPayload{
		BreachID:          breach.ID,
		FiredRules:        outcome.FiredRules,
		TotalActions:      len(outcome.Executions),
		SuccessfulActions: outcome.SuccessfulActions,
	})
	return len(outcome.FiredRules)
}

func (s *Sweeper) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if s.events == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
