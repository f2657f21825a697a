package detector

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/sla"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

type fakeSource struct {
	policies []domain.ServiceLevelPolicy
	tickets  []domain.TicketSnapshot
}

func (f *fakeSource) FetchPolicies(_ context.Context) ([]domain.ServiceLevelPolicy, error) {
	return f.policies, nil
}

func (f *fakeSource) FetchPolicyByPriority(_ context.Context, priority domain.Priority) (*domain.ServiceLevelPolicy, error) {
	for _, p := range f.policies {
		if p.Priority == priority {
			return &p, nil
		}
	}
	return nil, apperrors.NewNotFound("policy", nil)
}

func (f *fakeSource) FetchTickets(_ context.Context, filter source.TicketFilter) ([]domain.TicketSnapshot, error) {
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

func (f *fakeSource) FetchTechnicians(_ context.Context) ([]domain.Technician, error) {
	return nil, nil
}

// allHoursCalendar counts every minute as business time so tests can build
// tickets relative to the real clock without weekday flakiness.
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

func mediumPolicy() domain.ServiceLevelPolicy {
	return domain.ServiceLevelPolicy{
		ID:                    "pol-medium",
		Name:                  "Medium priority",
		Priority:              domain.PriorityMedium,
		ResponseTargetMinutes: 60,
		ResolutionTargetHours: 8,
		BusinessHoursOnly:     true,
		Active:                true,
	}
}

func highPolicy() domain.ServiceLevelPolicy {
	return domain.ServiceLevelPolicy{
		ID:                    "pol-high",
		Name:                  "High priority",
		Priority:              domain.PriorityHigh,
		ResponseTargetMinutes: 60,
		ResolutionTargetHours: 8,
		BusinessHoursOnly:     true,
		Active:                true,
	}
}

func openTicket(id string, priority domain.Priority, age time.Duration) domain.TicketSnapshot {
	return domain.TicketSnapshot{
		ID:        id,
		Number:    "T-" + id,
		Status:    domain.TicketStatusOpen,
		Priority:  priority,
		Category:  "software",
		CreatedAt: time.Now().Add(-age),
	}
}

func newTestDetector(t *testing.T, src *fakeSource) *Detector {
	t.Helper()
	cal := allHoursCalendar(t)
	tuning := config.DefaultTuning()
	logger := zap.NewNop()
	store := policy.NewStore(src, nil, time.Hour, logger)
	return New(Dependencies{
		Policies:  store,
		Tickets:   src,
		Evaluator: sla.NewEvaluator(cal, tuning.RiskThresholds),
		Calendar:  cal,
		Tuning:    tuning,
		Window:    2 * time.Hour,
		Workers:   2,
		Logger:    logger,
	})
}

func TestDetectCurrentBreachesReportsNewOnce(t *testing.T) {
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-1", domain.PriorityMedium, 2*time.Hour)},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.Breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(result.Breaches))
	}
	breach := result.Breaches[0]
	if breach.BreachType != domain.BreachResponse {
		t.Errorf("BreachType = %s, want response", breach.BreachType)
	}
	if breach.Severity != domain.SeverityWarning {
		t.Errorf("Severity = %s, want warning for medium policy", breach.Severity)
	}
	if breach.CustomerImpact != domain.ImpactLow {
		t.Errorf("CustomerImpact = %s, want low", breach.CustomerImpact)
	}
	if len(result.NewBreaches) != 1 {
		t.Fatalf("new breaches = %d, want 1", len(result.NewBreaches))
	}

	// Second sweep sees the same breach but reports nothing new.
	again, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(again.Breaches) != 1 {
		t.Errorf("breaches on resweep = %d, want 1", len(again.Breaches))
	}
	if len(again.NewBreaches) != 0 {
		t.Errorf("new breaches on resweep = %d, want 0", len(again.NewBreaches))
	}
}

func TestBreachedAtReflectsBudgetExhaustion(t *testing.T) {
	ticket := openTicket("tkt-old", domain.PriorityMedium, 2*time.Hour)
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{ticket},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.Breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(result.Breaches))
	}
	// The 60 minute response budget ran out an hour ago, not at sweep time.
	want := ticket.CreatedAt.Truncate(time.Minute).Add(60 * time.Minute)
	got := result.Breaches[0].BreachedAt
	if !got.Equal(want) {
		t.Errorf("BreachedAt = %v, want %v", got, want)
	}
	if pause := time.Since(got); pause < 55*time.Minute {
		t.Errorf("breach age = %v, want about an hour", pause)
	}
}

func TestBreachedAtForCompletedDimensionIsWallClock(t *testing.T) {
	ticket := openTicket("tkt-slow", domain.PriorityMedium, 3*time.Hour)
	responded := ticket.CreatedAt.Add(2 * time.Hour)
	ticket.FirstResponseAt = &responded
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{ticket},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.Breaches) != 1 {
		t.Fatalf("breaches = %d, want 1", len(result.Breaches))
	}
	want := ticket.CreatedAt.Add(60 * time.Minute)
	if got := result.Breaches[0].BreachedAt; !got.Equal(want) {
		t.Errorf("BreachedAt = %v, want creation plus the response target %v", got, want)
	}
}

func TestDetectSkipsTerminalTickets(t *testing.T) {
	resolved := openTicket("tkt-done", domain.PriorityMedium, 3*time.Hour)
	resolved.Status = domain.TicketStatusResolved
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{resolved},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.Breaches) != 0 {
		t.Errorf("breaches = %d, want 0 for terminal ticket", len(result.Breaches))
	}
}

func TestDetectContainsPerTicketErrors(t *testing.T) {
	broken := openTicket("tkt-broken", domain.PriorityMedium, time.Hour)
	broken.CreatedAt = time.Time{}
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets: []domain.TicketSnapshot{
			broken,
			openTicket("tkt-ok", domain.PriorityMedium, 2*time.Hour),
		},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.ItemErrors) != 1 {
		t.Fatalf("item errors = %d, want 1", len(result.ItemErrors))
	}
	if result.ItemErrors[0].TicketID != "tkt-broken" {
		t.Errorf("item error ticket = %s, want tkt-broken", result.ItemErrors[0].TicketID)
	}
	if len(result.Breaches) != 1 {
		t.Errorf("breaches = %d, want 1 from the healthy ticket", len(result.Breaches))
	}
}

func TestDetectSkipsTicketWithoutPolicy(t *testing.T) {
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-crit", domain.PriorityCritical, 4*time.Hour)},
	}
	det := newTestDetector(t, src)

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.Breaches) != 0 || len(result.ItemErrors) != 0 {
		t.Errorf("got %d breaches, %d errors; want none without a covering policy",
			len(result.Breaches), len(result.ItemErrors))
	}
}

func TestPredictPotentialBreaches(t *testing.T) {
	// 30 of 60 response minutes consumed on a high priority ticket.
	// Confidence: 0.5 + 0.3*0.3 (high priority) + 0.75*0.2 (time factor).
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-soon", domain.PriorityHigh, 30*time.Minute)},
	}
	det := newTestDetector(t, src)

	predictions, err := det.PredictPotentialBreaches(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("PredictPotentialBreaches: %v", err)
	}
	if len(predictions) != 1 {
		t.Fatalf("predictions = %d, want 1", len(predictions))
	}
	p := predictions[0]
	if p.BreachType != domain.BreachResponse {
		t.Errorf("BreachType = %s, want response", p.BreachType)
	}
	if p.Confidence < 0.70 || p.Confidence > 0.78 {
		t.Errorf("Confidence = %.3f, want around 0.74", p.Confidence)
	}
	if p.TimeToBreach <= 0 || p.TimeToBreach > 30*time.Minute {
		t.Errorf("TimeToBreach = %v, want within 30m", p.TimeToBreach)
	}
	if len(p.RiskFactors) == 0 || p.RiskFactors[0] != FactorHighPriority {
		t.Errorf("RiskFactors = %v, want high_priority_ticket first", p.RiskFactors)
	}
}

func TestPredictSkipsBreachedTickets(t *testing.T) {
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-late", domain.PriorityHigh, 2*time.Hour)},
	}
	det := newTestDetector(t, src)

	predictions, err := det.PredictPotentialBreaches(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("PredictPotentialBreaches: %v", err)
	}
	if len(predictions) != 0 {
		t.Errorf("predictions = %d, want 0 for an active breach", len(predictions))
	}
}

func TestPredictFiltersLowConfidence(t *testing.T) {
	// A quiet low priority ticket far from its target never clears the bar.
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{{
			ID: "pol-low", Name: "Low priority", Priority: domain.PriorityLow,
			ResponseTargetMinutes: 120, ResolutionTargetHours: 24,
			BusinessHoursOnly: true, Active: true,
		}},
		tickets: []domain.TicketSnapshot{openTicket("tkt-calm", domain.PriorityLow, 30*time.Minute)},
	}
	det := newTestDetector(t, src)

	predictions, err := det.PredictPotentialBreaches(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("PredictPotentialBreaches: %v", err)
	}
	if len(predictions) != 0 {
		t.Errorf("predictions = %d, want 0 below confidence threshold", len(predictions))
	}
}

func TestAnalyzeTicketRisk(t *testing.T) {
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{highPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-soon", domain.PriorityHigh, 30*time.Minute)},
	}
	det := newTestDetector(t, src)

	report, err := det.AnalyzeTicketRisk(context.Background(), "tkt-soon")
	if err != nil {
		t.Fatalf("AnalyzeTicketRisk: %v", err)
	}
	if report.Analysis.TotalScore <= 0 {
		t.Error("expected a positive risk score for a high priority ticket")
	}
	if len(report.CurrentBreaches) != 0 {
		t.Errorf("current breaches = %d, want 0", len(report.CurrentBreaches))
	}
	if report.Prediction == nil {
		t.Error("expected a prediction for a ticket nearing its response target")
	}
}

func TestRiskScoreBandsComeFromTuning(t *testing.T) {
	src := &fakeSource{policies: []domain.ServiceLevelPolicy{highPolicy()}}
	cal := allHoursCalendar(t)
	tuning := config.DefaultTuning()
	tuning.RiskScoreBands = config.RiskScoreBandsConfig{Critical: 0.9, High: 0.6, Medium: 0.2}
	logger := zap.NewNop()
	det := New(Dependencies{
		Policies:  policy.NewStore(src, nil, time.Hour, logger),
		Tickets:   src,
		Evaluator: sla.NewEvaluator(cal, tuning.RiskThresholds),
		Calendar:  cal,
		Tuning:    tuning,
		Workers:   1,
		Logger:    logger,
	})

	cases := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0.95, domain.RiskCritical},
		{0.9, domain.RiskCritical},
		{0.65, domain.RiskHigh},
		{0.25, domain.RiskMedium},
		{0.1, domain.RiskLow},
	}
	for _, tc := range cases {
		if got := det.categorizeRiskScore(tc.score); got != tc.want {
			t.Errorf("categorizeRiskScore(%.2f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestAnalyzeTicketRiskNotFound(t *testing.T) {
	src := &fakeSource{policies: []domain.ServiceLevelPolicy{highPolicy()}}
	det := newTestDetector(t, src)

	_, err := det.AnalyzeTicketRisk(context.Background(), "tkt-missing")
	if !apperrors.IsNotFound(err) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestMarkSeenSuppressesNewBreaches(t *testing.T) {
	src := &fakeSource{
		policies: []domain.ServiceLevelPolicy{mediumPolicy()},
		tickets:  []domain.TicketSnapshot{openTicket("tkt-1", domain.PriorityMedium, 2*time.Hour)},
	}
	det := newTestDetector(t, src)
	det.MarkSeen(domain.IncidentKey{TicketID: "tkt-1", BreachType: domain.BreachResponse})

	result, err := det.DetectCurrentBreaches(context.Background(), source.TicketFilter{})
	if err != nil {
		t.Fatalf("DetectCurrentBreaches: %v", err)
	}
	if len(result.NewBreaches) != 0 {
		t.Errorf("new breaches = %d, want 0 after MarkSeen", len(result.NewBreaches))
	}
	if len(result.Breaches) != 1 {
		t.Errorf("breaches = %d, want 1", len(result.Breaches))
	}
}
