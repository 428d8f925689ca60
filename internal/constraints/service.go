package constraints

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vitalproof/internal/environment"
	"vitalproof/internal/platform/metrics"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/sentinel"
	"vitalproof/pkg/requestcontext"
)

// ContextSource returns fresh environmental contexts by id.
type ContextSource interface {
	Get(ctx context.Context, id uuid.UUID) (*environment.Context, error)
	Staleness() time.Duration
}

// Store is the append-only record of constraint sets. Implementations never
// update a set after Append.
type Store interface {
	Append(ctx context.Context, set *ConstraintSet) error
	FindByID(ctx context.Context, id uuid.UUID) (*ConstraintSet, error)
	// Latest returns the set with the greatest ValidFrom for the key.
	Latest(ctx context.Context, userID string, metric MetricType) (*ConstraintSet, error)
	// ListByUserMetric returns every set for the key ordered by ValidFrom ascending.
	ListByUserMetric(ctx context.Context, userID string, metric MetricType) ([]*ConstraintSet, error)
}

// OpsTracker receives non-blocking operational audit events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event)
}

// Service derives and records constraint sets.
type Service struct {
	policy   *Policy
	contexts ContextSource
	store    Store
	locks    shardedLock

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracker OpsTracker
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.tracker = t }
}

func NewService(policy *Policy, contexts ContextSource, store Store, opts ...Option) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	s := &Service{
		policy:   policy,
		contexts: contexts,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy exposes the table used for derivation so verification can replay it.
func (s *Service) Policy() *Policy {
	return s.policy
}

// DeriveConstraints computes and appends a new constraint set, which becomes
// the active set for (userID, metric). Recomputation for the same key is
// serialized and ValidFrom strictly increases per key.
func (s *Service) DeriveConstraints(ctx context.Context, userID string, metricType string, contextID uuid.UUID, demo *Demographics) (*ConstraintSet, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	metric, err := ParseMetricType(s.policy, metricType)
	if err != nil {
		return nil, err
	}
	env, err := s.contexts.Get(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if demo.IsZero() {
		demo = nil
	}

	derived, err := Derive(s.policy, metric, env, demo)
	if err != nil {
		return nil, err
	}

	set := &ConstraintSet{
		ID:                   uuid.New(),
		UserID:               userID,
		Derivation:           derived,
		Demographics:         demo,
		DerivedFromContextID: env.ID,
		ContextHash:          env.Hash,
		ValidUntil:           env.ExpiresAt(s.contexts.Staleness()),
	}
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)

	err = s.locks.Run(ctx, lockKey(userID, metric), func() error {
		latest, err := s.store.Latest(ctx, userID, metric)
		switch {
		case err == nil:
			set.ValidFrom = nextValidFrom(now, latest.ValidFrom)
		case errors.Is(err, sentinel.ErrNotFound):
			set.ValidFrom = now
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active constraint set")
		}
		if err := s.store.Append(ctx, set); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save constraint set")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementConstraints(string(metric), set.EnvironmentallyAdjusted)
	s.logger.InfoContext(ctx, "constraint set derived",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"constraint_set_id", set.ID,
		"metric_type", metric,
		"min_value", set.MinValue,
		"max_value", set.MaxValue,
		"adjustments", set.AppliedAdjustments,
	)
	if s.tracker != nil {
		s.tracker.Track(ctx, audit.Event{
			Timestamp: now,
			UserID:    userID,
			Subject:   set.ID.String(),
			Action:    string(audit.EventConstraintsDerived),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return set, nil
}

// nextValidFrom keeps ValidFrom strictly increasing even when the clock
// stalls or steps backwards.
func nextValidFrom(now, previous time.Time) time.Time {
	if now.After(previous) {
		return now
	}
	return previous.Add(time.Microsecond)
}

// Get returns a constraint set owned by userID. Sets of other users are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*ConstraintSet, error) {
	set, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if set.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "constraint set not found")
	}
	return set, nil
}

// Lookup returns a constraint set regardless of owner. Used by verification.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (*ConstraintSet, error) {
	set, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "constraint set not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load constraint set")
	}
	return set, nil
}

// Active returns the latest set for (userID, metric).
func (s *Service) Active(ctx context.Context, userID string, metricType string) (*ConstraintSet, error) {
	metric, err := ParseMetricType(s.policy, metricType)
	if err != nil {
		return nil, err
	}
	set, err := s.store.Latest(ctx, userID, metric)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no constraint set for "+string(metric))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active constraint set")
	}
	return set, nil
}

// History lists every set derived for (userID, metric), oldest first.
func (s *Service) History(ctx context.Context, userID string, metricType string) ([]*ConstraintSet, error) {
	metric, err := ParseMetricType(s.policy, metricType)
	if err != nil {
		return nil, err
	}
	sets, err := s.store.ListByUserMetric(ctx, userID, metric)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list constraint sets")
	}
	return sets, nil
}
