package proof

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	"vitalproof/internal/environment"
	"vitalproof/internal/platform/metrics"
	"vitalproof/internal/validation"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/sentinel"
	"vitalproof/pkg/requestcontext"
)

// MaxAggregate caps the number of proofs folded into one root.
const MaxAggregate = 256

// Store persists proofs. Records are written once; only the verification
// flag transitions, and only from false to true.
type Store interface {
	Create(ctx context.Context, p *Proof) error
	FindByID(ctx context.Context, proofID string) (*Proof, error)
	// MarkVerified sets the flag if unset and returns the stored VerifiedAt.
	// flipped is true only for the call that performed the transition.
	MarkVerified(ctx context.Context, proofID string, at time.Time) (verifiedAt time.Time, flipped bool, err error)
}

// ReadingValidator grades a reading against one of the caller's sets.
type ReadingValidator interface {
	ValidateReading(ctx context.Context, userID string, setID uuid.UUID, reading validation.Reading, history []validation.Reading) (*constraints.ConstraintSet, validation.Verdict, error)
	Options() validation.Options
}

// ConstraintLookup resolves a set regardless of owner and exposes the
// policy in force.
type ConstraintLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*constraints.ConstraintSet, error)
	Policy() *constraints.Policy
}

// ContextFinder resolves a context by content hash without a staleness check.
type ContextFinder interface {
	FindByHash(ctx context.Context, hash string) (*environment.Context, error)
}

// ComplianceAuditor persists regulatory events synchronously.
type ComplianceAuditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service issues, verifies and aggregates proofs.
type Service struct {
	store       Store
	validator   ReadingValidator
	constraints ConstraintLookup
	contexts    ContextFinder
	auditor     ComplianceAuditor
	entropy     io.Reader

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditor(a ComplianceAuditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithEntropy replaces crypto/rand as the nonce source. Tests only.
func WithEntropy(r io.Reader) Option {
	return func(s *Service) { s.entropy = r }
}

func NewService(store Store, validator ReadingValidator, lookup ConstraintLookup, contexts ContextFinder, opts ...Option) *Service {
	s := &Service{
		store:       store,
		validator:   validator,
		constraints: lookup,
		contexts:    contexts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	ConstraintSetID uuid.UUID
	Reading         validation.Reading
	History         []validation.Reading
	ProofType       string
}

// Generate validates the reading and commits to it. The opening is returned
// to the caller once and is never stored.
func (s *Service) Generate(ctx context.Context, userID string, req GenerateRequest) (*Proof, *Opening, error) {
	if userID == "" {
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "user id required")
	}
	proofType, err := ParseProofType(req.ProofType)
	if err != nil {
		return nil, nil, err
	}
	set, verdict, err := s.validator.ValidateReading(ctx, userID, req.ConstraintSetID, req.Reading, req.History)
	if err != nil {
		return nil, nil, err
	}

	p, opening, err := Generate(Statement{
		UserID:      userID,
		Set:         set,
		Value:       req.Reading.Value,
		Verdict:     verdict,
		ProofType:   proofType,
		GeneratedAt: requestcontext.Now(ctx),
	}, s.entropy)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save proof")
	}

	if err := s.emit(ctx, audit.Event{
		Timestamp: p.GeneratedAt,
		UserID:    userID,
		Subject:   p.ProofID,
		Action:    string(audit.EventProofGenerated),
		Decision:  string(p.PublicInputs.Claim),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, nil, err
	}

	s.metrics.IncrementProof(string(proofType), string(p.PublicInputs.Claim))
	s.logger.InfoContext(ctx, "proof generated",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"proof_id", p.ProofID,
		"proof_type", proofType,
		"claim", p.PublicInputs.Claim,
	)
	return p, opening, nil
}

// VerifyRequest is the input to Verify. A nil Opening selects public mode.
type VerifyRequest struct {
	ProofID      string
	PublicInputs PublicInputs
	Opening      *Opening
}

// Verify checks a proof against its stored record and the current policy.
// A failed check is a result, not an error. Verifying an already verified
// proof returns the original VerifiedAt.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerificationResult, error) {
	if err := req.PublicInputs.Validate(); err != nil {
		return nil, err
	}
	mode := ModePublic
	if req.Opening != nil {
		if err := req.Opening.Validate(); err != nil {
			return nil, err
		}
		mode = ModeOpening
	}

	stored, err := s.find(ctx, req.ProofID)
	if err != nil {
		return nil, err
	}
	result := &VerificationResult{ProofID: stored.ProofID, Mode: mode, Claim: stored.PublicInputs.Claim}

	ev, err := s.evidence(ctx, stored)
	if err != nil {
		return nil, err
	}
	reason, err := Check(req.PublicInputs, req.Opening, ev)
	if err != nil {
		return nil, err
	}
	result.Reason = reason

	if reason != ReasonConsistent {
		s.metrics.IncrementVerification(string(mode), string(reason))
		s.logger.WarnContext(ctx, "proof verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"proof_id", stored.ProofID,
			"mode", mode,
			"reason", reason,
		)
		return result, nil
	}

	verifiedAt, flipped, err := s.store.MarkVerified(ctx, stored.ProofID, requestcontext.Now(ctx).UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}
	result.Verified = true
	result.VerifiedAt = &verifiedAt

	if flipped {
		if err := s.emit(ctx, audit.Event{
			Timestamp: verifiedAt,
			UserID:    stored.UserID,
			Subject:   stored.ProofID,
			Action:    string(audit.EventProofVerified),
			Decision:  string(mode),
			Reason:    string(reason),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			return nil, err
		}
	}

	s.metrics.IncrementVerification(string(mode), string(reason))
	s.logger.InfoContext(ctx, "proof verified",
		"request_id", requestcontext.RequestID(ctx),
		"proof_id", stored.ProofID,
		"mode", mode,
		"first_verification", flipped,
	)
	return result, nil
}

// evidence gathers the stored state Check needs. A missing constraint set is
// an error; a missing context is a constraint mismatch.
func (s *Service) evidence(ctx context.Context, stored *Proof) (Evidence, error) {
	setID, err := uuid.Parse(stored.PublicInputs.ConstraintSetID)
	if err != nil {
		return Evidence{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored proof has an invalid constraint set id")
	}
	set, err := s.constraints.Lookup(ctx, setID)
	if err != nil {
		return Evidence{}, err
	}
	env, err := s.contexts.FindByHash(ctx, stored.PublicInputs.ContextHash)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return Evidence{}, err
	}
	return Evidence{
		Stored:  stored,
		Set:     set,
		Context: env,
		Policy:  s.constraints.Policy(),
		Options: s.validator.Options(),
	}, nil
}

// Get returns a proof owned by userID.
func (s *Service) Get(ctx context.Context, userID, proofID string) (*Proof, error) {
	p, err := s.find(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
	}
	return p, nil
}

// Aggregation is a single digest over several proofs.
type Aggregation struct {
	AggregatedHash string `json:"aggregated_hash"`
	ProofCount     int    `json:"proof_count"`
	Method         string `json:"method"`
}

// Aggregate folds the caller's proofs into one Merkle root. Duplicate ids
// count once.
func (s *Service) Aggregate(ctx context.Context, userID string, proofIDs []string) (*Aggregation, error) {
	if len(proofIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeMalformedInput, "proof_ids must not be empty")
	}
	seen := make(map[string]struct{}, len(proofIDs))
	commitments := make([]string, 0, len(proofIDs))
	for _, id := range proofIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if len(seen) > MaxAggregate {
			return nil, dErrors.New(dErrors.CodeMalformedInput, "too many proofs to aggregate")
		}
		p, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, p.Commitment)
	}
	root, err := MerkleRoot(commitments)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "proofs aggregated",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"proof_count", len(commitments),
	)
	return &Aggregation{AggregatedHash: root, ProofCount: len(commitments), Method: AggregationMethod}, nil
}

func (s *Service) find(ctx context.Context, proofID string) (*Proof, error) {
	p, err := s.store.FindByID(ctx, proofID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proof")
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record compliance audit")
	}
	return nil
}
