package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/cache"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

type fakePolicySource struct {
	policies []domain.ServiceLevelPolicy
	err      error
	fetches  int
}

func (f *fakePolicySource) FetchPolicies(_ context.Context) ([]domain.ServiceLevelPolicy, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.policies, nil
}

func (f *fakePolicySource) FetchPolicyByPriority(_ context.Context, priority domain.Priority) (*domain.ServiceLevelPolicy, error) {
	for _, p := range f.policies {
		if p.Priority == priority {
			return &p, nil
		}
	}
	return nil, apperrors.NewNotFound("policy", nil)
}

func validPolicy(id string, priority domain.Priority, active bool) domain.ServiceLevelPolicy {
	return domain.ServiceLevelPolicy{
		ID:                    id,
		Name:                  string(priority) + " tier",
		Priority:              priority,
		ResponseTargetMinutes: 60,
		ResolutionTargetHours: 8,
		Active:                active,
	}
}

func TestRefreshPublishesEvent(t *testing.T) {
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
		validPolicy("pol-low", domain.PriorityLow, true),
	}}
	store := NewStore(src, nil, time.Hour, zap.NewNop())

	bus := events.NewInMemoryDispatcher()
	var published []events.Event
	bus.Subscribe(events.EventPolicySetRefreshed, func(_ context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})
	store.PublishRefreshes(bus)

	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(published) != 1 {
		t.Fatalf("events = %d, want 1", len(published))
	}
	payload, ok := published[0].Payload.(events.PolicySetRefreshedPayload)
	if !ok {
		t.Fatalf("payload type = %T, want PolicySetRefreshedPayload", published[0].Payload)
	}
	if payload.PolicyCount != 2 {
		t.Errorf("PolicyCount = %d, want 2", payload.PolicyCount)
	}
}

func TestRefreshAndLookups(t *testing.T) {
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
		validPolicy("pol-retired", domain.PriorityLow, false),
	}}
	store := NewStore(src, nil, time.Hour, zap.NewNop())

	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got, err := store.ForPriority(context.Background(), domain.PriorityHigh)
	if err != nil {
		t.Fatalf("ForPriority: %v", err)
	}
	if got.ID != "pol-high" {
		t.Errorf("ForPriority ID = %s, want pol-high", got.ID)
	}

	// Inactive policies are reachable by id but never matched by priority.
	if _, err := store.ByID(context.Background(), "pol-retired"); err != nil {
		t.Errorf("ByID pol-retired: %v", err)
	}
	if _, err := store.ForPriority(context.Background(), domain.PriorityLow); !apperrors.IsNotFound(err) {
		t.Errorf("ForPriority low = %v, want NOT_FOUND", err)
	}

	all, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All = %d policies, want 2", len(all))
	}
}

func TestRefreshRejectsInvalidBatch(t *testing.T) {
	bad := validPolicy("pol-bad", domain.PriorityMedium, true)
	bad.ResponseTargetMinutes = 0
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
		bad,
	}}
	store := NewStore(src, nil, time.Hour, zap.NewNop())

	err := store.Refresh(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeInvalidPolicy) {
		t.Fatalf("Refresh = %v, want INVALID_POLICY", err)
	}
	// The valid policy from the rejected batch must not leak in.
	if _, err := store.ByID(context.Background(), "pol-high"); !apperrors.IsCode(err, apperrors.CodeInvalidPolicy) {
		t.Errorf("ByID after rejected batch = %v, want INVALID_POLICY from the retried refresh", err)
	}
}

func TestStaleSnapshotServesThroughOutage(t *testing.T) {
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
	}}
	store := NewStore(src, nil, 10*time.Minute, zap.NewNop())
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	src.err = errors.New("upstream down")
	store.now = func() time.Time { return time.Now().Add(time.Hour) }

	got, err := store.ForPriority(context.Background(), domain.PriorityHigh)
	if err != nil {
		t.Fatalf("ForPriority during outage: %v", err)
	}
	if got.ID != "pol-high" {
		t.Errorf("ForPriority ID = %s, want stale pol-high", got.ID)
	}
}

func TestFirstLoadFailureSurfaces(t *testing.T) {
	src := &fakePolicySource{err: errors.New("upstream down")}
	store := NewStore(src, nil, time.Hour, zap.NewNop())

	if _, err := store.ForPriority(context.Background(), domain.PriorityHigh); err == nil {
		t.Fatal("expected error when no snapshot was ever loaded")
	}
}

func TestRefreshSkippedWithinTTL(t *testing.T) {
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
	}}
	store := NewStore(src, nil, time.Hour, zap.NewNop())
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.ForPriority(context.Background(), domain.PriorityHigh); err != nil {
			t.Fatalf("ForPriority: %v", err)
		}
	}
	if src.fetches != 1 {
		t.Errorf("fetches = %d, want 1 within TTL", src.fetches)
	}
}

func TestByIDFallsBackToCache(t *testing.T) {
	src := &fakePolicySource{policies: []domain.ServiceLevelPolicy{
		validPolicy("pol-high", domain.PriorityHigh, true),
	}}
	shared := cache.NewMemoryStore()
	store := NewStore(src, shared, time.Hour, zap.NewNop())
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Another process may know policies this one has not fetched yet.
	foreign := validPolicy("pol-foreign", domain.PriorityCritical, true)
	payload, err := marshalPolicy(foreign)
	if err != nil {
		t.Fatalf("marshalPolicy: %v", err)
	}
	if err := shared.Set(context.Background(), cache.PolicyKey("pol-foreign"), payload, time.Hour); err != nil {
		t.Fatalf("cache set: %v", err)
	}

	got, err := store.ByID(context.Background(), "pol-foreign")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.ID != "pol-foreign" {
		t.Errorf("ByID ID = %s, want pol-foreign", got.ID)
	}
}
