package anchoring_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vitalproof/internal/anchoring"
	"vitalproof/internal/anchoring/mocks"
	"vitalproof/internal/anchoring/store"
	"vitalproof/internal/proof"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/audit/publishers/compliance"
	"vitalproof/pkg/platform/audit/publishers/ops"
	auditmemory "vitalproof/pkg/platform/audit/store/memory"
	"vitalproof/pkg/platform/retry"
	"vitalproof/pkg/platform/sentinel"
)

type proofSource map[string]*proof.Proof

func (s proofSource) Get(_ context.Context, userID, proofID string) (*proof.Proof, error) {
	p, ok := s[proofID]
	if !ok || p.UserID != userID {
		return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
	}
	return p, nil
}

// staleReceipts misses the first lookups, as a reader racing a finishing job would.
type staleReceipts struct {
	*store.InMemoryStore
	misses int
}

func (r *staleReceipts) FindByProofID(ctx context.Context, proofID string) (*anchoring.Receipt, error) {
	if r.misses > 0 {
		r.misses--
		return nil, sentinel.ErrNotFound
	}
	return r.InMemoryStore.FindByProofID(ctx, proofID)
}

type AnchorSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	ledger   *mocks.MockLedger
	receipts *store.InMemoryStore
	audits   *auditmemory.InMemoryStore
	tracker  *ops.Tracker
	proofs   proofSource
	service  *anchoring.Service
	now      time.Time
}

func TestAnchorSuite(t *testing.T) {
	suite.Run(t, new(AnchorSuite))
}

func (s *AnchorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.ledger.EXPECT().ID().Return("kafka").AnyTimes()
	s.receipts = store.NewInMemoryStore()
	s.audits = auditmemory.NewInMemoryStore()
	s.tracker = ops.New(16)
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.proofs = proofSource{
		"prf_1": {ProofID: "prf_1", UserID: "user-1", Commitment: "c1", PublicInputsHash: "h1"},
		"prf_2": {ProofID: "prf_2", UserID: "user-1", Commitment: "c2", PublicInputsHash: "h2"},
	}
	s.service = s.newService(time.Second)
}

func (s *AnchorSuite) newService(jobTimeout time.Duration) *anchoring.Service {
	return anchoring.NewService(s.proofs, s.ledger, s.receipts,
		anchoring.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		anchoring.WithAuditor(compliance.New(s.audits)),
		anchoring.WithOpsTracker(s.tracker),
		anchoring.WithRetryPolicy(retry.Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		anchoring.WithJobTimeout(jobTimeout),
		anchoring.WithClock(func() time.Time { return s.now }),
	)
}

func (s *AnchorSuite) drain() {
	s.Require().NoError(s.service.Shutdown(context.Background()))
}

func (s *AnchorSuite) TestAnchor() {
	s.Run("schedules a submission and returns pending", func() {
		s.SetupTest()
		digest, err := anchoring.Digest(s.proofs["prf_1"])
		s.Require().NoError(err)
		s.ledger.EXPECT().Submit(gomock.Any(), anchoring.Entry{ProofID: "prf_1", Digest: digest}).
			Return(anchoring.Submission{Ref: "vitalproof.anchors/0/7", Confirmed: true, ConfirmedAt: s.now}, nil).
			Times(1)

		result, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusPending, result.Status)
		s.Nil(result.Receipt)
		s.drain()

		again, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusConfirmed, again.Status)
		s.Require().NotNil(again.Receipt)
		s.Equal("vitalproof.anchors/0/7", again.Receipt.LedgerRef)
		s.Equal(digest, again.Receipt.Digest)

		events, err := s.audits.ListByUser(context.Background(), "user-1")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventProofAnchored), events[0].Action)
	})

	s.Run("a second request while in flight does not resubmit", func() {
		s.SetupTest()
		release := make(chan struct{})
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ anchoring.Entry) (anchoring.Submission, error) {
				<-release
				return anchoring.Submission{Ref: "r1"}, nil
			}).Times(1)

		first, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		second, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusPending, first.Status)
		s.Equal(anchoring.StatusPending, second.Status)

		status, err := s.service.Status(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusPending, status.Status)

		close(release)
		s.drain()

		status, err = s.service.Status(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusSubmitted, status.Status)
	})

	s.Run("a receipt written just after the first lookup is not resubmitted", func() {
		s.SetupTest()
		_, _, err := s.receipts.CreateIfAbsent(context.Background(), &anchoring.Receipt{
			ProofID: "prf_1", LedgerID: "kafka", LedgerRef: "r0", Digest: "d0", SubmittedAt: s.now,
		})
		s.Require().NoError(err)
		svc := anchoring.NewService(s.proofs, s.ledger, &staleReceipts{InMemoryStore: s.receipts, misses: 1},
			anchoring.WithClock(func() time.Time { return s.now }),
		)

		result, err := svc.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.Equal(anchoring.StatusSubmitted, result.Status)
		s.Require().NotNil(result.Receipt)
		s.Equal("r0", result.Receipt.LedgerRef)
		s.Require().NoError(svc.Shutdown(context.Background()))
	})

	s.Run("transient ledger failure is retried", func() {
		s.SetupTest()
		gomock.InOrder(
			s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(anchoring.Submission{}, errors.New("broker unreachable")),
			s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(anchoring.Submission{Ref: "r1"}, nil),
		)

		_, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.drain()

		r, err := s.receipts.FindByProofID(context.Background(), "prf_1")
		s.Require().NoError(err)
		s.Equal("r1", r.LedgerRef)
	})

	s.Run("rejected submission writes no receipt", func() {
		s.SetupTest()
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(anchoring.Submission{}, anchoring.ErrRejected).Times(1)

		_, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.drain()

		_, err = s.service.Status(context.Background(), "user-1", "prf_1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		select {
		case e := <-s.tracker.Events():
			s.Equal(string(audit.EventAnchorFailed), e.Action)
			s.Equal("prf_1", e.Subject)
		default:
			s.Fail("expected an anchor_failed event")
		}
	})

	s.Run("job that outlives its timeout is cancelled without a receipt", func() {
		s.SetupTest()
		s.service = s.newService(20 * time.Millisecond)
		s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ anchoring.Entry) (anchoring.Submission, error) {
				<-ctx.Done()
				return anchoring.Submission{}, ctx.Err()
			}).AnyTimes()

		_, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.Require().NoError(err)
		s.drain()

		_, err = s.receipts.FindByProofID(context.Background(), "prf_1")
		s.Error(err)
	})

	s.Run("only the owner can anchor or read status", func() {
		s.SetupTest()
		_, err := s.service.Anchor(context.Background(), "user-2", "prf_1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.Status(context.Background(), "user-2", "prf_1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("shut down service refuses new work", func() {
		s.SetupTest()
		s.drain()
		_, err := s.service.Anchor(context.Background(), "user-1", "prf_1")
		s.True(dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	})
}

func (s *AnchorSuite) TestConfirmationWorker() {
	s.SetupTest()
	ctx := context.Background()
	_, _, err := s.receipts.CreateIfAbsent(ctx, &anchoring.Receipt{ProofID: "prf_1", LedgerID: "kafka", LedgerRef: "r1", SubmittedAt: s.now})
	s.Require().NoError(err)
	_, _, err = s.receipts.CreateIfAbsent(ctx, &anchoring.Receipt{ProofID: "prf_2", LedgerID: "kafka", LedgerRef: "r2", SubmittedAt: s.now.Add(time.Second)})
	s.Require().NoError(err)

	confirmedAt := s.now.Add(time.Minute)
	s.ledger.EXPECT().Confirmation(gomock.Any(), "r1").Return(anchoring.Confirmation{Confirmed: true, At: confirmedAt}, nil).Times(1)
	s.ledger.EXPECT().Confirmation(gomock.Any(), "r2").Return(anchoring.Confirmation{}, nil).Times(1)
	s.ledger.EXPECT().Confirmation(gomock.Any(), "r2").Return(anchoring.Confirmation{}, errors.New("gateway timeout")).Times(1)

	w := anchoring.NewConfirmationWorker(s.ledger, s.receipts, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	n, err := w.PollOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	r, err := s.receipts.FindByProofID(ctx, "prf_1")
	s.Require().NoError(err)
	s.Equal(anchoring.StatusConfirmed, r.Status())
	s.Equal(confirmedAt, *r.ConfirmedAt)

	n, err = w.PollOnce(ctx)
	s.Require().NoError(err)
	s.Equal(0, n, "confirmed receipts are not polled again")
}

func TestDigestIsCanonical(t *testing.T) {
	a, err := anchoring.Digest(&proof.Proof{ProofID: "prf_1", Commitment: "c1", PublicInputsHash: "h1"})
	require.NoError(t, err)
	b, err := anchoring.Digest(&proof.Proof{ProofID: "prf_1", Commitment: "c1", PublicInputsHash: "h1", UserID: "someone"})
	require.NoError(t, err)
	c, err := anchoring.Digest(&proof.Proof{ProofID: "prf_1", Commitment: "c2", PublicInputsHash: "h1"})
	require.NoError(t, err)

	assert.Equal(t, a, b, "only the proof identity is hashed")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
