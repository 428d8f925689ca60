package validation

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	"vitalproof/internal/platform/metrics"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/requestcontext"
)

// ConstraintLookup returns a constraint set owned by the caller.
type ConstraintLookup interface {
	Get(ctx context.Context, userID string, id uuid.UUID) (*constraints.ConstraintSet, error)
}

// OpsTracker receives non-blocking operational audit events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event)
}

// Service validates readings against a user's stored constraint sets.
type Service struct {
	constraints ConstraintLookup
	opts        Options
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracker     OpsTracker
}

type Option func(*Service)

func WithOptions(o Options) Option {
	return func(s *Service) { s.opts = o }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.tracker = t }
}

func NewService(lookup ConstraintLookup, opts ...Option) *Service {
	s := &Service{constraints: lookup, opts: DefaultOptions(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Options returns the temporal-check configuration in use.
func (s *Service) Options() Options {
	return s.opts
}

// ValidateReading loads the constraint set and grades the reading. A set
// whose context has gone stale is refused.
func (s *Service) ValidateReading(ctx context.Context, userID string, setID uuid.UUID, reading Reading, history []Reading) (*constraints.ConstraintSet, Verdict, error) {
	set, err := s.constraints.Get(ctx, userID, setID)
	if err != nil {
		return nil, Verdict{}, err
	}
	if set.IsExpiredAt(requestcontext.Now(ctx)) {
		return nil, Verdict{}, dErrors.New(dErrors.CodeContextExpired, "constraint set has expired; derive new constraints")
	}

	verdict, err := Validate(reading, set.Derivation, history, s.opts)
	if err != nil {
		return nil, Verdict{}, err
	}

	s.metrics.IncrementValidation(string(reading.MetricType), string(verdict.RiskLevel))
	s.logger.InfoContext(ctx, "reading validated",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"constraint_set_id", set.ID,
		"is_valid", verdict.IsValid,
		"risk_level", verdict.RiskLevel,
	)
	if s.tracker != nil {
		s.tracker.Track(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			UserID:    userID,
			Subject:   set.ID.String(),
			Action:    string(audit.EventReadingValidated),
			Decision:  string(verdict.RiskLevel),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return set, verdict, nil
}
