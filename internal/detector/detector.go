package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/cache"
	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/policy"
	"github.com/spec-kit/sla-monitor/internal/sla"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// Detector finds current SLA breaches and forecasts upcoming ones. It keeps a
// set of already-seen incidents so repeated sweeps report a breach as new
// exactly once per process lifetime.
type Detector struct {
	policies  *policy.Store
	tickets   source.TicketSource
	evaluator *sla.Evaluator
	calendar  *sla.BusinessCalendar

	statusCache cache.Store
	statusTTL   time.Duration

	weights             config.RiskWeightsConfig
	bands               config.RiskScoreBandsConfig
	confidenceThreshold float64
	overloadRatio       float64
	window              time.Duration
	workers             int

	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	seen map[domain.IncidentKey]bool
}

// Dependencies bundles the detector's collaborators.
type Dependencies struct {
	Policies    *policy.Store
	Tickets     source.TicketSource
	Evaluator   *sla.Evaluator
	Calendar    *sla.BusinessCalendar
	StatusCache cache.Store
	StatusTTL   time.Duration
	Tuning      config.Tuning
	Window      time.Duration
	Workers     int
	Logger      *zap.Logger
}

// New builds a detector.
func New(deps Dependencies) *Detector {
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	window := deps.Window
	if window <= 0 {
		window = 2 * time.Hour
	}
	return &Detector{
		policies:            deps.Policies,
		tickets:             deps.Tickets,
		evaluator:           deps.Evaluator,
		calendar:            deps.Calendar,
		statusCache:         deps.StatusCache,
		statusTTL:           deps.StatusTTL,
		weights:             deps.Tuning.RiskWeights,
		bands:               deps.Tuning.RiskScoreBands,
		confidenceThreshold: deps.Tuning.ConfidenceThreshold,
		overloadRatio:       deps.Tuning.OverloadRatio,
		window:              window,
		workers:             workers,
		logger:              deps.Logger,
		now:                 time.Now,
		seen:                map[domain.IncidentKey]bool{},
	}
}

// ItemError reports a per-ticket failure that did not abort the sweep.
type ItemError struct {
	TicketID string
	Err      error
}

// DetectionResult is the outcome of one breach-detection sweep.
type DetectionResult struct {
	Breaches    []domain.BreachRecord
	NewBreaches []domain.BreachRecord
	ItemErrors  []ItemError
	Tickets     map[string]domain.TicketSnapshot
	DetectedAt  time.Time
}

// DetectCurrentBreaches evaluates all matching tickets and reports every
// dimension currently in breach. Terminal tickets are skipped. A ticket that
// fails to evaluate is reported as an item error and the sweep continues.
func (d *Detector) DetectCurrentBreaches(ctx context.Context, filter source.TicketFilter) (*DetectionResult, error) {
	tickets, err := d.tickets.FetchTickets(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &DetectionResult{
		Tickets:    make(map[string]domain.TicketSnapshot, len(tickets)),
		DetectedAt: d.now(),
	}
	var resultMu sync.Mutex

	jobs := make(chan domain.TicketSnapshot)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticket := range jobs {
				breaches, err := d.checkTicket(ctx, ticket)
				resultMu.Lock()
				if err != nil {
					result.ItemErrors = append(result.ItemErrors, ItemError{TicketID: ticket.ID, Err: err})
					resultMu.Unlock()
					d.logger.Warn("breach check failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
					continue
				}
				result.Breaches = append(result.Breaches, breaches...)
				resultMu.Unlock()
			}
		}()
	}

	for _, ticket := range tickets {
		if ticket.Status.Terminal() {
			continue
		}
		result.Tickets[ticket.ID] = ticket
		select {
		case jobs <- ticket:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	d.mu.Lock()
	for _, breach := range result.Breaches {
		key := breach.Key()
		if !d.seen[key] {
			d.seen[key] = true
			result.NewBreaches = append(result.NewBreaches, breach)
		}
	}
	d.mu.Unlock()

	return result, nil
}

// checkTicket evaluates one ticket and builds breach records for any breached
// dimension. A missing policy for the ticket's priority skips the ticket.
func (d *Detector) checkTicket(ctx context.Context, ticket domain.TicketSnapshot) ([]domain.BreachRecord, error) {
	slaPolicy, err := d.policies.ForPriority(ctx, ticket.Priority)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	status, err := d.evaluateTicket(ctx, ticket, slaPolicy)
	if err != nil {
		return nil, err
	}
	return d.buildBreaches(ticket, slaPolicy, status), nil
}

// buildBreaches turns breached dimensions of a status into audit records.
func (d *Detector) buildBreaches(ticket domain.TicketSnapshot, slaPolicy domain.ServiceLevelPolicy, status domain.SLAStatus) []domain.BreachRecord {
	var breaches []domain.BreachRecord
	severity := breachSeverity(slaPolicy.Priority)
	impact := customerImpact(ticket)
	now := d.now()

	appendBreach := func(t domain.BreachType, completedAt *time.Time, target time.Duration) {
		record := domain.BreachRecord{
			ID:                 uuid.NewString(),
			TicketID:           ticket.ID,
			TicketNumber:       ticket.Number,
			BreachType:         t,
			BreachedAt:         d.breachInstant(ticket.CreatedAt, completedAt, target, slaPolicy.BusinessHoursOnly),
			PolicyID:           slaPolicy.ID,
			Severity:           severity,
			CustomerImpact:     impact,
			EscalationRequired: true,
			EscalationLevel:    status.EscalationLevel,
			CreatedAt:          now,
		}
		if ticket.Assignee != nil {
			record.TechnicianID = &ticket.Assignee.ID
			record.TechnicianName = &ticket.Assignee.Name
		}
		breaches = append(breaches, record)
	}

	if status.ResponseBreached {
		appendBreach(domain.BreachResponse, ticket.FirstResponseAt, slaPolicy.ResponseTarget())
	}
	if status.ResolutionBreached {
		appendBreach(domain.BreachResolution, ticket.ResolvedAt, slaPolicy.ResolutionTarget())
	}
	return breaches
}

// breachInstant derives when a dimension's budget ran out. Completed
// dimensions are judged on wall-clock actuals, so their budget ends a flat
// target after creation; pending business-hours dimensions exhaust theirs on
// the calendar.
func (d *Detector) breachInstant(createdAt time.Time, completedAt *time.Time, target time.Duration, businessOnly bool) time.Time {
	if completedAt != nil || !businessOnly {
		return createdAt.Add(target)
	}
	return d.calendar.AddBusinessMinutes(createdAt, int(target/time.Minute))
}

// PredictPotentialBreaches forecasts breaches expected inside the window.
// Only predictions at or above the confidence threshold are returned.
func (d *Detector) PredictPotentialBreaches(ctx context.Context, window time.Duration) ([]domain.BreachPrediction, error) {
	if window <= 0 {
		window = d.window
	}
	tickets, err := d.tickets.FetchTickets(ctx, source.TicketFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var predictions []domain.BreachPrediction
	for _, ticket := range tickets {
		if ticket.Status.Terminal() {
			continue
		}
		prediction, err := d.predictTicket(ctx, ticket, window)
		if err != nil {
			d.logger.Warn("breach prediction failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if prediction != nil && prediction.Confidence >= d.confidenceThreshold {
			predictions = append(predictions, *prediction)
		}
	}
	return predictions, nil
}

// predictTicket returns the most confident dimension prediction for the
// ticket, or nil when no breach is expected inside the window. Tickets with
// an active breach are not predicted; the breach is already a fact.
func (d *Detector) predictTicket(ctx context.Context, ticket domain.TicketSnapshot, window time.Duration) (*domain.BreachPrediction, error) {
	slaPolicy, err := d.policies.ForPriority(ctx, ticket.Priority)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	status, err := d.evaluateTicket(ctx, ticket, slaPolicy)
	if err != nil {
		return nil, err
	}
	if status.Breached() {
		return nil, nil
	}

	analysis := d.analyzeRiskFactors(ticket, status, d.now())

	var best *domain.BreachPrediction
	consider := func(t domain.BreachType, remaining *time.Duration) {
		prediction := d.dimensionPrediction(ticket.ID, t, remaining, analysis, window)
		if prediction == nil {
			return
		}
		if best == nil || prediction.Confidence > best.Confidence {
			best = prediction
		}
	}
	consider(domain.BreachResponse, status.ResponseRemaining)
	consider(domain.BreachResolution, status.ResolutionRemaining)
	return best, nil
}

// dimensionPrediction forecasts one dimension. Confidence starts at 0.5 and
// grows with the risk score and with how little of the window remains.
func (d *Detector) dimensionPrediction(ticketID string, t domain.BreachType, remaining *time.Duration, analysis RiskAnalysis, window time.Duration) *domain.BreachPrediction {
	if remaining == nil || *remaining <= 0 {
		return nil
	}
	if *remaining > window {
		return nil
	}
	timeFactor := 1.0 - float64(*remaining)/float64(window)
	confidence := 0.5 + analysis.TotalScore*0.3 + timeFactor*0.2
	if confidence > 1.0 {
		confidence = 1.0
	}
	return &domain.BreachPrediction{
		TicketID:     ticketID,
		BreachType:   t,
		PredictedAt:  d.now().Add(*remaining),
		Confidence:   confidence,
		TimeToBreach: *remaining,
		RiskFactors:  analysis.ActiveFactors,
	}
}

// RiskReport is the full risk picture of a single ticket.
type RiskReport struct {
	TicketID        string
	Status          domain.SLAStatus
	Analysis        RiskAnalysis
	CurrentBreaches []domain.BreachRecord
	Prediction      *domain.BreachPrediction
	AnalyzedAt      time.Time
}

// AnalyzeTicketRisk produces a risk report for one ticket. Unlike prediction
// sweeps, the report includes forecasts below the confidence threshold.
func (d *Detector) AnalyzeTicketRisk(ctx context.Context, ticketID string) (*RiskReport, error) {
	tickets, err := d.tickets.FetchTickets(ctx, source.TicketFilter{ID: ticketID})
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	ticket := tickets[0]

	slaPolicy, err := d.policies.ForPriority(ctx, ticket.Priority)
	if err != nil {
		return nil, err
	}
	status, err := d.evaluateTicket(ctx, ticket, slaPolicy)
	if err != nil {
		return nil, err
	}

	report := &RiskReport{
		TicketID:        ticketID,
		Status:          status,
		Analysis:        d.analyzeRiskFactors(ticket, status, d.now()),
		CurrentBreaches: d.buildBreaches(ticket, slaPolicy, status),
		AnalyzedAt:      d.now(),
	}
	if !status.Breached() {
		prediction, err := d.predictTicket(ctx, ticket, d.window)
		if err == nil {
			report.Prediction = prediction
		}
	}
	return report, nil
}

// MarkSeen primes the dedup set, typically from persisted open breaches at
// startup so a restart does not re-announce known incidents.
func (d *Detector) MarkSeen(keys ...domain.IncidentKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range keys {
		d.seen[key] = true
	}
}

// RecordEscalation raises the cached escalation level for a ticket. Levels
// only go up, so a concurrent sweep cannot roll an escalation back.
func (d *Detector) RecordEscalation(ctx context.Context, ticketID string, level int) {
	if d.statusCache == nil {
		return
	}
	payload, ok, err := d.statusCache.Get(ctx, cache.TicketStatusKey(ticketID))
	if err != nil || !ok {
		return
	}
	var status domain.SLAStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return
	}
	if level <= status.EscalationLevel {
		return
	}
	status.EscalationLevel = level
	if updated, err := json.Marshal(status); err == nil {
		if err := d.statusCache.Set(ctx, cache.TicketStatusKey(ticketID), updated, d.statusTTL); err != nil {
			d.logger.Debug("status cache write failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
}

// SeenCount reports the number of distinct incidents observed so far.
func (d *Detector) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// evaluateTicket computes the ticket's SLA status, carrying the escalation
// level forward from the cached prior status and caching the fresh result.
func (d *Detector) evaluateTicket(ctx context.Context, ticket domain.TicketSnapshot, slaPolicy domain.ServiceLevelPolicy) (domain.SLAStatus, error) {
	var prior *domain.SLAStatus
	if d.statusCache != nil {
		if payload, ok, err := d.statusCache.Get(ctx, cache.TicketStatusKey(ticket.ID)); err == nil && ok {
			var cached domain.SLAStatus
			if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
				prior = &cached
			}
		}
	}
	status, err := d.evaluator.Evaluate(ticket, slaPolicy, d.now(), prior)
	if err != nil {
		return domain.SLAStatus{}, fmt.Errorf("evaluate ticket %s: %w", ticket.ID, err)
	}
	if d.statusCache != nil {
		if payload, err := json.Marshal(status); err == nil {
			if err := d.statusCache.Set(ctx, cache.TicketStatusKey(ticket.ID), payload, d.statusTTL); err != nil {
				d.logger.Debug("status cache write failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
	}
	return status, nil
}
