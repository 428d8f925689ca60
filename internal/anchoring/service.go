package anchoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vitalproof/internal/platform/metrics"
	"vitalproof/internal/proof"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/retry"
	"vitalproof/pkg/platform/sentinel"
	"vitalproof/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/ledger.go -package=mocks vitalproof/internal/anchoring Ledger

// ProofSource returns a proof owned by the caller.
type ProofSource interface {
	Get(ctx context.Context, userID, proofID string) (*proof.Proof, error)
}

// ReceiptStore persists at most one receipt per proof.
type ReceiptStore interface {
	// CreateIfAbsent stores r unless a receipt for the proof exists, and
	// returns whichever receipt is stored.
	CreateIfAbsent(ctx context.Context, r *Receipt) (stored *Receipt, created bool, err error)
	FindByProofID(ctx context.Context, proofID string) (*Receipt, error)
	ListUnconfirmed(ctx context.Context, ledgerID string, limit int) ([]*Receipt, error)
	// MarkConfirmed sets ConfirmedAt once. Later calls report false.
	MarkConfirmed(ctx context.Context, proofID string, at time.Time) (bool, error)
}

// ComplianceAuditor persists regulatory events synchronously.
type ComplianceAuditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// OpsTracker receives non-blocking operational audit events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event)
}

var tracer = otel.Tracer("vitalproof/anchoring")

// Service schedules ledger submissions and reports their status.
type Service struct {
	proofs   ProofSource
	ledger   Ledger
	receipts ReceiptStore

	retryPolicy retry.Policy
	jobTimeout  time.Duration
	clock       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	jobs     sync.WaitGroup
	jobCtx   context.Context
	stop     context.CancelFunc

	auditor ComplianceAuditor
	tracker OpsTracker
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

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.retryPolicy = p }
}

// WithJobTimeout bounds a whole submission including retries.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(proofs ProofSource, ledger Ledger, receipts ReceiptStore, opts ...Option) *Service {
	jobCtx, stop := context.WithCancel(context.Background())
	s := &Service{
		proofs:      proofs,
		ledger:      ledger,
		receipts:    receipts,
		retryPolicy: retry.DefaultPolicy(),
		jobTimeout:  30 * time.Second,
		clock:       time.Now,
		inflight:    make(map[string]struct{}),
		jobCtx:      jobCtx,
		stop:        stop,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LedgerID names the backend receipts are written against.
func (s *Service) LedgerID() string {
	return s.ledger.ID()
}

// Anchor schedules a submission for the caller's proof and returns without
// waiting for the ledger. Repeated calls return the stored receipt or report
// the job already in flight.
func (s *Service) Anchor(ctx context.Context, userID, proofID string) (*Result, error) {
	p, err := s.proofs.Get(ctx, userID, proofID)
	if err != nil {
		return nil, err
	}
	existing, err := s.receipt(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Status: existing.Status(), Receipt: existing}, nil
	}

	s.mu.Lock()
	if _, running := s.inflight[proofID]; running {
		s.mu.Unlock()
		return &Result{Status: StatusPending}, nil
	}
	if s.jobCtx.Err() != nil {
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "anchoring is shutting down")
	}
	// A job writes its receipt before leaving inflight, so a job that finished
	// since the first lookup is visible here.
	existing, err = s.receipt(ctx, proofID)
	if err != nil || existing != nil {
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &Result{Status: existing.Status(), Receipt: existing}, nil
	}
	s.inflight[proofID] = struct{}{}
	s.jobs.Add(1)
	s.mu.Unlock()

	go s.submit(p, userID, requestcontext.RequestID(ctx))

	s.logger.InfoContext(ctx, "anchor scheduled",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"proof_id", proofID,
		"ledger", s.ledger.ID(),
	)
	return &Result{Status: StatusPending}, nil
}

// Status reports the anchor state of the caller's proof.
func (s *Service) Status(ctx context.Context, userID, proofID string) (*Result, error) {
	if _, err := s.proofs.Get(ctx, userID, proofID); err != nil {
		return nil, err
	}
	existing, err := s.receipt(ctx, proofID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Status: existing.Status(), Receipt: existing}, nil
	}
	s.mu.Lock()
	_, running := s.inflight[proofID]
	s.mu.Unlock()
	if running {
		return &Result{Status: StatusPending}, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "proof has not been anchored")
}

// Shutdown waits for in-flight submissions until ctx is done, then cancels
// whatever is left. Cancelled jobs write no receipt.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.stop()
		return nil
	case <-ctx.Done():
		s.stop()
		<-done
		return ctx.Err()
	}
}

func (s *Service) receipt(ctx context.Context, proofID string) (*Receipt, error) {
	r, err := s.receipts.FindByProofID(ctx, proofID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load anchor receipt")
	}
	return r, nil
}

func (s *Service) submit(p *proof.Proof, userID, requestID string) {
	defer s.jobs.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, p.ProofID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.jobCtx, s.jobTimeout)
	defer cancel()
	ctx = requestcontext.WithRequestID(ctx, requestID)
	ctx, span := tracer.Start(ctx, "anchoring.submit", trace.WithAttributes(
		attribute.String("ledger", s.ledger.ID()),
		attribute.String("proof_id", p.ProofID),
	))
	defer span.End()

	if err := s.publish(ctx, p, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "anchor failed")
		s.metrics.IncrementAnchor(s.ledger.ID(), "failed")
		s.logger.ErrorContext(ctx, "anchor submission failed",
			"request_id", requestID,
			"proof_id", p.ProofID,
			"ledger", s.ledger.ID(),
			"error", err,
		)
		if s.tracker != nil {
			s.tracker.Track(ctx, audit.Event{
				Timestamp: s.clock(),
				UserID:    userID,
				Subject:   p.ProofID,
				Action:    string(audit.EventAnchorFailed),
				Reason:    err.Error(),
				RequestID: requestID,
			})
		}
	}
}

func (s *Service) publish(ctx context.Context, p *proof.Proof, userID string) error {
	digest, err := Digest(p)
	if err != nil {
		return err
	}
	var sub Submission
	err = retry.Do(ctx, s.retryPolicy, IsRetryable, func(ctx context.Context) error {
		out, err := s.ledger.Submit(ctx, Entry{ProofID: p.ProofID, Digest: digest})
		if err != nil {
			return err
		}
		sub = out
		return nil
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r := &Receipt{
		ProofID:     p.ProofID,
		LedgerID:    s.ledger.ID(),
		LedgerRef:   sub.Ref,
		Digest:      digest,
		SubmittedAt: s.clock().UTC().Truncate(time.Microsecond),
	}
	if sub.Confirmed {
		at := sub.ConfirmedAt.UTC().Truncate(time.Microsecond)
		r.ConfirmedAt = &at
	}
	stored, created, err := s.receipts.CreateIfAbsent(ctx, r)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	s.metrics.IncrementAnchor(s.ledger.ID(), "submitted")
	if stored.ConfirmedAt != nil {
		s.metrics.IncrementAnchorConfirmed()
	}
	s.logger.InfoContext(ctx, "proof anchored",
		"request_id", requestcontext.RequestID(ctx),
		"proof_id", p.ProofID,
		"ledger", stored.LedgerID,
		"ledger_ref", stored.LedgerRef,
	)
	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{
			Timestamp: stored.SubmittedAt,
			UserID:    userID,
			Subject:   p.ProofID,
			Action:    string(audit.EventProofAnchored),
			Decision:  string(stored.Status()),
			Reason:    stored.LedgerRef,
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			return err
		}
	}
	return nil
}
