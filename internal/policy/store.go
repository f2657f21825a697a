package policy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/cache"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/source"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// Store holds the current set of service-level policies, refreshed from the
// policy source at most once per TTL. A failed refresh keeps serving the last
// good snapshot; an invalid policy in the fetched set fails the whole refresh.
type Store struct {
	source source.PolicySource
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
	events events.Dispatcher
	now    func() time.Time

	mu          sync.RWMutex
	byID        map[string]domain.ServiceLevelPolicy
	byPriority  map[domain.Priority]domain.ServiceLevelPolicy
	refreshedAt time.Time
}

// NewStore builds a policy store. cacheStore may be nil; the store then
// relies on its in-memory snapshot alone.
func NewStore(src source.PolicySource, cacheStore cache.Store, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		source:     src,
		cache:      cacheStore,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
		byID:       map[string]domain.ServiceLevelPolicy{},
		byPriority: map[domain.Priority]domain.ServiceLevelPolicy{},
	}
}

// Refresh fetches all policies and replaces the snapshot. Every fetched policy
// must validate; one invalid policy rejects the entire batch so a partial bad
// deploy never silently shrinks coverage.
func (s *Store) Refresh(ctx context.Context) error {
	policies, err := s.source.FetchPolicies(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]domain.ServiceLevelPolicy, len(policies))
	byPriority := make(map[domain.Priority]domain.ServiceLevelPolicy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return apperrors.NewInvalidPolicy(p.ID, err)
		}
		byID[p.ID] = p
		if p.Active {
			byPriority[p.Priority] = p
		}
	}

	s.mu.Lock()
	s.byID = byID
	s.byPriority = byPriority
	s.refreshedAt = s.now()
	s.mu.Unlock()

	s.writeThrough(ctx, policies)
	s.publishRefresh(ctx, len(policies))
	s.logger.Debug("policy snapshot refreshed", zap.Int("count", len(policies)))
	return nil
}

// PublishRefreshes announces completed refreshes on the given dispatcher.
// Call before the store is shared; publication is best effort.
func (s *Store) PublishRefreshes(bus events.Dispatcher) {
	s.events = bus
}

func (s *Store) publishRefresh(ctx context.Context, count int) {
	if s.events == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventPolicySetRefreshed,
		Timestamp: s.now(),
		Payload:   events.PolicySetRefreshedPayload{PolicyCount: count},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("policy refresh event publish failed", zap.Error(err))
	}
}

// writeThrough mirrors the snapshot into the shared cache. Failures only
// degrade cross-process reuse, never correctness.
func (s *Store) writeThrough(ctx context.Context, policies []domain.ServiceLevelPolicy) {
	if s.cache == nil {
		return
	}
	for _, p := range policies {
		payload, err := marshalPolicy(p)
		if err != nil {
			continue
		}
		if err := s.cache.Set(ctx, cache.PolicyKey(p.ID), payload, s.ttl); err != nil {
			s.logger.Warn("policy cache write failed", zap.String("policy_id", p.ID), zap.Error(err))
			return
		}
	}
}

// ForPriority returns the active policy covering the given priority tier.
func (s *Store) ForPriority(ctx context.Context, priority domain.Priority) (domain.ServiceLevelPolicy, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return domain.ServiceLevelPolicy{}, err
	}
	s.mu.RLock()
	policy, ok := s.byPriority[priority]
	s.mu.RUnlock()
	if !ok {
		return domain.ServiceLevelPolicy{}, apperrors.NewNotFound("policy", map[string]any{"priority": string(priority)})
	}
	return policy, nil
}

// ByID returns the policy with the given identifier.
func (s *Store) ByID(ctx context.Context, id string) (domain.ServiceLevelPolicy, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return domain.ServiceLevelPolicy{}, err
	}
	s.mu.RLock()
	policy, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return policy, nil
	}
	if s.cache != nil {
		if payload, found, err := s.cache.Get(ctx, cache.PolicyKey(id)); err == nil && found {
			if policy, err := unmarshalPolicy(payload); err == nil {
				return policy, nil
			}
		}
	}
	return domain.ServiceLevelPolicy{}, apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
}

// All returns the current snapshot.
func (s *Store) All(ctx context.Context) ([]domain.ServiceLevelPolicy, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := make([]domain.ServiceLevelPolicy, 0, len(s.byID))
	for _, p := range s.byID {
		policies = append(policies, p)
	}
	return policies, nil
}

// ensureFresh refreshes the snapshot when the TTL has lapsed. When a refresh
// fails but a previous snapshot exists, the stale snapshot keeps serving.
func (s *Store) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := !s.refreshedAt.IsZero() && s.now().Sub(s.refreshedAt) < s.ttl
	empty := len(s.byID) == 0 && s.refreshedAt.IsZero()
	s.mu.RUnlock()
	if fresh {
		return nil
	}
	if err := s.Refresh(ctx); err != nil {
		if empty || apperrors.IsCode(err, apperrors.CodeInvalidPolicy) {
			return err
		}
		s.logger.Warn("policy refresh failed, serving stale snapshot", zap.Error(err))
	}
	return nil
}
