package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/detector"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/escalation"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/sla"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// fakeDesk plays the remote service desk: policy source, ticket source and
// action sink in one.
type fakeDesk struct {
	mu          sync.Mutex
	policies    []domain.ServiceLevelPolicy
	tickets     []domain.TicketSnapshot
	technicians []domain.Technician
	comments    int
	priorities  []domain.Priority
	notified    []string
}

func (f *fakeDesk) FetchPolicies(_ context.Context) ([]domain.ServiceLevelPolicy, error) {
	return f.policies, nil
}

func (f *fakeDesk) FetchPolicyByPriority(_ context.Context, priority domain.Priority) (*domain.ServiceLevelPolicy, error) {
	for _, p := range f.policies {
		if p.Priority == priority {
			return &p, nil
		}
	}
	return nil, apperrors.NewNotFound("policy", nil)
}

func (f *fakeDesk) FetchTickets(_ context.Context, filter source.TicketFilter) ([]domain.TicketSnapshot, error) {
	if filter.ID == "" {
		return f.tickets, nil
	}
	for _, t := range f.tickets {
		if t.ID == filter.ID {
			return []domain.TicketSnapshot{t}, nil
		}
	}
	return nil, nil
}

func (f *fakeDesk) FetchTechnicians(_ context.Context) ([]domain.Technician, error) {
	return f.technicians, nil
}

func (f *fakeDesk) AddComment(_ context.Context, _, _ string, _ []string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments++
	return "cmt-1", nil
}

func (f *fakeDesk) UpdatePriority(_ context.Context, _ string, priority domain.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priorities = append(f.priorities, priority)
	return nil
}

func (f *fakeDesk) Reassign(_ context.Context, _, _, _ string) error {
	return nil
}

func (f *fakeDesk) Notify(_ context.Context, recipientID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, recipientID)
	return nil
}

func (f *fakeDesk) CreateEscalationRecord(_ context.Context, _ source.EscalationRecordPayload) (string, error) {
	return "esc-1", nil
}

func allHoursCalendar(t *testing.T) *sla.BusinessCalendar {
	t.Helper()
	cal, err := sla.NewBusinessCalendar(config.BusinessHoursConfig{
		StartHour: 0,
		EndHour:   24,
		Weekdays:  []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"},
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("NewBusinessCalendar: %v", err)
	}
	return cal
}

func highPolicy() domain.ServiceLevelPolicy {
	return domain.ServiceLevelPolicy{
		ID:                    "pol-high",
		Name:                  "High priority",
		Priority:              domain.PriorityHigh,
		ResponseTargetMinutes: 30,
		ResolutionTargetHours: 4,
		BusinessHoursOnly:     true,
		Active:                true,
	}
}

// breachedTicket is 90 minutes old against a 30 minute response target, so
// its response breach is an hour old and reaches the manager rung.
func breachedTicket() domain.TicketSnapshot {
	return domain.TicketSnapshot{
		ID:        "tkt-1",
		Number:    "T-1001",
		Subject:   "Mail gateway down",
		Status:    domain.TicketStatusOpen,
		Priority:  domain.PriorityHigh,
		Category:  "software",
		CreatedAt: time.Now().Add(-90 * time.Minute),
		Assignee:  &domain.TechnicianRef{ID: "usr-t1", Name: "Taylor"},
	}
}

type harness struct {
	desk    *fakeDesk
	repo    repository.BreachRepository
	bus     events.Dispatcher
	metrics *observability.Metrics
	sweeper *Sweeper
}

func newHarness(t *testing.T, desk *fakeDesk) *harness {
	t.Helper()
	cal := allHoursCalendar(t)
	tuning := config.DefaultTuning()
	logger := zap.NewNop()

	store := policy.NewStore(desk, nil, time.Hour, logger)
	repo := repository.NewMemoryBreachRepository()
	bus := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	det := detector.New(detector.Dependencies{
		Policies:  store,
		Tickets:   desk,
		Evaluator: sla.NewEvaluator(cal, tuning.RiskThresholds),
		Calendar:  cal,
		Tuning:    tuning,
		Workers:   2,
		Logger:    logger,
	})
	mgr := escalation.NewManager(escalation.Options{
		Sink:     desk,
		Users:    desk,
		Recorder: repo,
		Logger:   logger,
	})
	sweeper := NewSweeper(Dependencies{
		Policies:    store,
		Detector:    det,
		Escalations: mgr,
		Breaches:    repo,
		Events:      bus,
		Metrics:     metrics,
		Logger:      logger,
	})
	return &harness{desk: desk, repo: repo, bus: bus, metrics: metrics, sweeper: sweeper}
}

func TestRunOnceRecordsAndEscalates(t *testing.T) {
	desk := &fakeDesk{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{breachedTicket()},
		technicians: []domain.Technician{
			{ID: "usr-mgr", Name: "Morgan", Role: "manager", Active: true},
			{ID: "usr-t1", Name: "Taylor", Role: "technician", Active: true, OpenTickets: 8, MaxConcurrent: 10},
		},
	}
	h := newHarness(t, desk)

	var eventTypes []events.EventType
	record := func(_ context.Context, event events.Event) error {
		eventTypes = append(eventTypes, event.Type)
		return nil
	}
	h.bus.Subscribe(events.EventBreachDetected, record)
	h.bus.Subscribe(events.EventEscalationExecuted, record)
	h.bus.Subscribe(events.EventSweepCompleted, record)

	summary, err := h.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.TicketsChecked != 1 || summary.TotalBreaches != 1 || summary.NewBreaches != 1 {
		t.Fatalf("summary = %+v, want 1 ticket, 1 breach, 1 new", summary)
	}
	// Response breach is 60 minutes old at error severity, so the immediate
	// and manager rungs fire and the critical rung does not.
	if summary.RulesFired != 2 {
		t.Errorf("RulesFired = %d, want 2", summary.RulesFired)
	}

	open, err := h.repo.ListOpenBreaches(context.Background())
	if err != nil {
		t.Fatalf("ListOpenBreaches: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open breaches = %d, want 1", len(open))
	}
	if open[0].TicketID != "tkt-1" || open[0].BreachType != domain.BreachResponse {
		t.Errorf("recorded breach = %s/%s, want tkt-1/response", open[0].TicketID, open[0].BreachType)
	}

	if len(eventTypes) != 3 {
		t.Fatalf("events = %v, want breach_detected, escalation_executed, sweep_completed", eventTypes)
	}
	if eventTypes[0] != events.EventBreachDetected || eventTypes[2] != events.EventSweepCompleted {
		t.Errorf("event order = %v", eventTypes)
	}

	if len(desk.priorities) != 1 || desk.priorities[0] != domain.PriorityCritical {
		t.Errorf("priorities = %v, want one escalation to critical", desk.priorities)
	}

	sweeps, breaches := h.metrics.SweepTotals()
	if sweeps != 1 || breaches != 1 {
		t.Errorf("SweepTotals = %d/%d, want 1/1", sweeps, breaches)
	}
}

func TestRunOncePublishesPredictions(t *testing.T) {
	// 20 of 30 response minutes consumed: not breached yet, but close
	// enough that the forecast clears the confidence bar.
	ticket := breachedTicket()
	ticket.CreatedAt = time.Now().Add(-20 * time.Minute)
	desk := &fakeDesk{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{ticket},
	}
	h := newHarness(t, desk)

	var predicted []events.Event
	h.bus.Subscribe(events.EventBreachPredicted, func(_ context.Context, event events.Event) error {
		predicted = append(predicted, event)
		return nil
	})

	summary, err := h.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.TotalBreaches != 0 {
		t.Fatalf("TotalBreaches = %d, want 0", summary.TotalBreaches)
	}
	if summary.Predictions != 1 {
		t.Fatalf("Predictions = %d, want 1", summary.Predictions)
	}
	if len(predicted) != 1 {
		t.Fatalf("predicted events = %d, want 1", len(predicted))
	}
	if predicted[0].TicketID != "tkt-1" {
		t.Errorf("TicketID = %s, want tkt-1", predicted[0].TicketID)
	}
	payload, ok := predicted[0].Payload.(events.BreachPredictedPayload)
	if !ok {
		t.Fatalf("payload type = %T, want BreachPredictedPayload", predicted[0].Payload)
	}
	if payload.BreachType != domain.BreachResponse {
		t.Errorf("BreachType = %s, want response", payload.BreachType)
	}
	if payload.Confidence < 0.7 {
		t.Errorf("Confidence = %.3f, want at least the threshold", payload.Confidence)
	}
	if payload.TimeToBreach <= 0 || payload.TimeToBreach > 10*time.Minute {
		t.Errorf("TimeToBreach = %v, want within 10m", payload.TimeToBreach)
	}
}

func TestRunOnceIsIdempotentAcrossSweeps(t *testing.T) {
	desk := &fakeDesk{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{breachedTicket()},
		technicians: []domain.Technician{
			{ID: "usr-mgr", Name: "Morgan", Role: "manager", Active: true},
		},
	}
	h := newHarness(t, desk)

	if _, err := h.sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	summary, err := h.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if summary.NewBreaches != 0 {
		t.Errorf("NewBreaches = %d, want 0 on resweep", summary.NewBreaches)
	}
	if summary.RulesFired != 0 {
		t.Errorf("RulesFired = %d, want 0 on resweep", summary.RulesFired)
	}

	open, err := h.repo.ListOpenBreaches(context.Background())
	if err != nil {
		t.Fatalf("ListOpenBreaches: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open breaches = %d, want 1 after two sweeps", len(open))
	}
}

func TestPrimeSuppressesKnownIncidents(t *testing.T) {
	ticket := breachedTicket()
	desk := &fakeDesk{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{ticket},
		technicians: []domain.Technician{
			{ID: "usr-mgr", Name: "Morgan", Role: "manager", Active: true},
		},
	}
	h := newHarness(t, desk)

	breach := domain.BreachRecord{
		ID:         "brc-1",
		TicketID:   ticket.ID,
		BreachType: domain.BreachResponse,
		BreachedAt: ticket.CreatedAt.Add(30 * time.Minute),
		PolicyID:   "pol-high",
		Severity:   domain.SeverityError,
	}
	if err := h.repo.RecordBreach(context.Background(), &breach); err != nil {
		t.Fatalf("RecordBreach: %v", err)
	}
	for _, rule := range []string{"Immediate Technician Notification", "Manager Escalation"} {
		execution := domain.EscalationExecution{RuleName: rule, Action: domain.ActionAddComment, Success: true, Timestamp: time.Now()}
		if err := h.repo.RecordExecution(context.Background(), breach.Key(), execution); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	if err := h.sweeper.Prime(context.Background()); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	summary, err := h.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.NewBreaches != 0 {
		t.Errorf("NewBreaches = %d, want 0 after priming", summary.NewBreaches)
	}
	if summary.RulesFired != 0 {
		t.Errorf("RulesFired = %d, want 0 after priming", summary.RulesFired)
	}
}

func TestStartStopsOnSignal(t *testing.T) {
	desk := &fakeDesk{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  nil,
	}
	h := newHarness(t, desk)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		h.sweeper.Start(10*time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	sweeps, _ := h.metrics.SweepTotals()
	if sweeps == 0 {
		t.Error("expected at least one sweep before stop")
	}
}
