package proof_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vitalproof/internal/constraints"
	cstore "vitalproof/internal/constraints/store"
	"vitalproof/internal/environment"
	"vitalproof/internal/proof"
	pstore "vitalproof/internal/proof/store"
	"vitalproof/internal/validation"
	dErrors "vitalproof/pkg/domain-errors"
	audit "vitalproof/pkg/platform/audit"
	"vitalproof/pkg/platform/audit/publishers/compliance"
	auditmemory "vitalproof/pkg/platform/audit/store/memory"
	"vitalproof/pkg/requestcontext"
)

// contexts serves both the fresh-by-id and the any-age-by-hash lookups.
type contexts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*environment.Context
}

func (c *contexts) Get(ctx context.Context, id uuid.UUID) (*environment.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	env, ok := c.byID[id]
	if !ok || !env.IsFreshAt(requestcontext.Now(ctx), c.Staleness()) {
		return nil, dErrors.New(dErrors.CodeContextExpired, "environmental context not found or expired")
	}
	return env, nil
}

func (c *contexts) Staleness() time.Duration { return time.Hour }

func (c *contexts) FindByHash(_ context.Context, hash string) (*environment.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range c.byID {
		if env.Hash == hash {
			return env, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "environmental context not found")
}

func (c *contexts) forget(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// policyOverride serves stored sets under a policy other than the one they
// were derived with.
type policyOverride struct {
	*constraints.Service
	policy *constraints.Policy
}

func (p policyOverride) Policy() *constraints.Policy { return p.policy }

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }
func (failingAuditStore) ListByUser(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

type ProofSuite struct {
	suite.Suite
	now         time.Time
	denver      *environment.Context
	contexts    *contexts
	constraints *constraints.Service
	validator   *validation.Service
	proofs      *pstore.InMemoryStore
	audits      *auditmemory.InMemoryStore
	service     *proof.Service
	set         *constraints.ConstraintSet
}

func TestProofSuite(t *testing.T) {
	suite.Run(t, new(ProofSuite))
}

func (s *ProofSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	denver, err := environment.NewContext(uuid.New(), 39.7392, -104.9903,
		environment.Readings{AltitudeMeters: 1609, TemperatureC: 15, HumidityPct: 30, PressureHPa: 835}, s.now)
	s.Require().NoError(err)
	s.denver = denver
	s.contexts = &contexts{byID: map[uuid.UUID]*environment.Context{denver.ID: denver}}
	s.constraints = constraints.NewService(constraints.DefaultPolicy(), s.contexts, cstore.NewInMemoryStore())
	s.validator = validation.NewService(s.constraints)
	s.proofs = pstore.NewInMemoryStore()
	s.audits = auditmemory.NewInMemoryStore()
	s.service = s.newService(s.constraints)

	s.set, err = s.constraints.DeriveConstraints(s.ctxAt(s.now), "user-1", "oxygen_saturation", denver.ID, nil)
	s.Require().NoError(err)
	s.Require().Equal(93.0, s.set.MinValue)
	s.Require().Equal(99.0, s.set.MaxValue)
}

func (s *ProofSuite) newService(lookup proof.ConstraintLookup, opts ...proof.Option) *proof.Service {
	base := []proof.Option{proof.WithAuditor(compliance.New(s.audits))}
	return proof.NewService(s.proofs, s.validator, lookup, s.contexts, append(base, opts...)...)
}

func (s *ProofSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ProofSuite) generate(value float64) (*proof.Proof, *proof.Opening) {
	p, opening, err := s.service.Generate(s.ctxAt(s.now.Add(5*time.Minute)), "user-1", proof.GenerateRequest{
		ConstraintSetID: s.set.ID,
		Reading: validation.Reading{
			MetricType: constraints.MetricOxygenSaturation,
			Value:      value,
			ObservedAt: s.now.Add(5 * time.Minute),
		},
	})
	s.Require().NoError(err)
	return p, opening
}

func (s *ProofSuite) verify(p *proof.Proof, inputs proof.PublicInputs, opening *proof.Opening) *proof.VerificationResult {
	result, err := s.service.Verify(s.ctxAt(s.now.Add(10*time.Minute)), proof.VerifyRequest{
		ProofID:      p.ProofID,
		PublicInputs: inputs,
		Opening:      opening,
	})
	s.Require().NoError(err)
	return result
}

func (s *ProofSuite) verifiedEvents() []audit.Event {
	events, err := s.audits.ListByUser(context.Background(), "user-1")
	s.Require().NoError(err)
	var out []audit.Event
	for _, e := range events {
		if e.Action == string(audit.EventProofVerified) {
			out = append(out, e)
		}
	}
	return out
}

func (s *ProofSuite) TestGenerate() {
	s.Run("reading below an altitude-adjusted range yields a non-compliant claim", func() {
		s.SetupTest()
		p, opening := s.generate(90)

		s.Equal(proof.ClaimNonCompliant, p.PublicInputs.Claim)
		s.Equal(proof.CircuitID, p.CircuitID)
		s.Equal(proof.TypeCompliance, p.ProofType)
		s.Equal(93.0, p.PublicInputs.MinValue)
		s.Equal(s.denver.Hash, p.PublicInputs.ContextHash)
		s.Equal(s.set.ID.String(), p.PublicInputs.ConstraintSetID)
		s.False(p.Verified)
		s.Equal(90.0, opening.Value)
		s.Len(opening.Nonce, 2*proof.NonceSize)

		hash, err := p.PublicInputs.Hash()
		s.Require().NoError(err)
		s.Equal(hash, p.PublicInputsHash)

		events, err := s.audits.ListByUser(context.Background(), "user-1")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventProofGenerated), events[0].Action)
		s.Equal(audit.CategoryCompliance, events[0].Category)
		s.Equal(p.ProofID, events[0].Subject)
	})

	s.Run("in-range reading yields a compliant claim", func() {
		s.SetupTest()
		p, _ := s.generate(96)
		s.Equal(proof.ClaimCompliant, p.PublicInputs.Claim)
	})

	s.Run("same reading twice gives unrelated commitments", func() {
		s.SetupTest()
		first, _ := s.generate(96)
		second, _ := s.generate(96)
		s.NotEqual(first.Commitment, second.Commitment)
		s.NotEqual(first.ProofID, second.ProofID)
	})

	s.Run("expired constraint set is refused", func() {
		s.SetupTest()
		_, _, err := s.service.Generate(s.ctxAt(s.now.Add(2*time.Hour)), "user-1", proof.GenerateRequest{
			ConstraintSetID: s.set.ID,
			Reading:         validation.Reading{MetricType: constraints.MetricOxygenSaturation, Value: 96, ObservedAt: s.now},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeContextExpired))
	})

	s.Run("another user's constraint set is not found", func() {
		s.SetupTest()
		_, _, err := s.service.Generate(s.ctxAt(s.now), "user-2", proof.GenerateRequest{
			ConstraintSetID: s.set.ID,
			Reading:         validation.Reading{MetricType: constraints.MetricOxygenSaturation, Value: 96, ObservedAt: s.now},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown proof type", func() {
		s.SetupTest()
		_, _, err := s.service.Generate(s.ctxAt(s.now), "user-1", proof.GenerateRequest{
			ConstraintSetID: s.set.ID,
			ProofType:       "zk-snark",
			Reading:         validation.Reading{MetricType: constraints.MetricOxygenSaturation, Value: 96, ObservedAt: s.now},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))
	})

	s.Run("compliance audit failure fails generation", func() {
		s.SetupTest()
		svc := proof.NewService(s.proofs, s.validator, s.constraints, s.contexts,
			proof.WithAuditor(compliance.New(failingAuditStore{})))
		_, _, err := svc.Generate(s.ctxAt(s.now), "user-1", proof.GenerateRequest{
			ConstraintSetID: s.set.ID,
			Reading:         validation.Reading{MetricType: constraints.MetricOxygenSaturation, Value: 96, ObservedAt: s.now},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("exhausted entropy is an internal error", func() {
		s.SetupTest()
		svc := s.newService(s.constraints, proof.WithEntropy(bytes.NewReader(nil)))
		_, _, err := svc.Generate(s.ctxAt(s.now), "user-1", proof.GenerateRequest{
			ConstraintSetID: s.set.ID,
			Reading:         validation.Reading{MetricType: constraints.MetricOxygenSaturation, Value: 96, ObservedAt: s.now},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ProofSuite) TestVerify() {
	s.Run("opening mode accepts the holder of a non-compliant proof", func() {
		s.SetupTest()
		p, opening := s.generate(90)

		result := s.verify(p, p.PublicInputs, opening)
		s.True(result.Verified)
		s.Equal(proof.ReasonConsistent, result.Reason)
		s.Equal(proof.ModeOpening, result.Mode)
		s.Equal(proof.ClaimNonCompliant, result.Claim)
		s.Require().NotNil(result.VerifiedAt)
	})

	s.Run("public mode checks inputs against stored constraints", func() {
		s.SetupTest()
		p, _ := s.generate(96)

		result := s.verify(p, p.PublicInputs, nil)
		s.True(result.Verified)
		s.Equal(proof.ModePublic, result.Mode)
	})

	s.Run("repeat verification keeps the first timestamp and audits once", func() {
		s.SetupTest()
		p, opening := s.generate(96)

		first := s.verify(p, p.PublicInputs, opening)
		later, err := s.service.Verify(s.ctxAt(s.now.Add(40*time.Minute)), proof.VerifyRequest{
			ProofID:      p.ProofID,
			PublicInputs: p.PublicInputs,
		})
		s.Require().NoError(err)
		s.True(later.Verified)
		s.Equal(*first.VerifiedAt, *later.VerifiedAt)
		s.Len(s.verifiedEvents(), 1)
	})

	s.Run("tampering with any public input is detected", func() {
		s.SetupTest()
		p, opening := s.generate(90)

		mutations := map[string]func(*proof.PublicInputs){
			"metric_type":  func(in *proof.PublicInputs) { in.MetricType = "heart_rate" },
			"min_value":    func(in *proof.PublicInputs) { in.MinValue = 85 },
			"max_value":    func(in *proof.PublicInputs) { in.MaxValue = 100 },
			"context_hash": func(in *proof.PublicInputs) { in.ContextHash = strings.Repeat("f", 64) },
			"set_id":       func(in *proof.PublicInputs) { in.ConstraintSetID = uuid.NewString() },
			"proof_type":   func(in *proof.PublicInputs) { in.ProofType = proof.TypeThreshold },
			"claim":        func(in *proof.PublicInputs) { in.Claim = proof.ClaimCompliant },
			"generated_at": func(in *proof.PublicInputs) { in.GeneratedAt = in.GeneratedAt.Add(time.Second) },
		}
		for name, mutate := range mutations {
			inputs := p.PublicInputs
			mutate(&inputs)
			result := s.verify(p, inputs, opening)
			s.False(result.Verified, name)
			s.Equal(proof.ReasonTamperDetected, result.Reason, name)
			s.Nil(result.VerifiedAt, name)
		}

		stored, err := s.proofs.FindByID(context.Background(), p.ProofID)
		s.Require().NoError(err)
		s.False(stored.Verified, "failed checks never change state")
	})

	s.Run("ill-formed tampering is refused before any check", func() {
		s.SetupTest()
		p, _ := s.generate(90)

		mutations := map[string]func(*proof.PublicInputs){
			"inverted bounds": func(in *proof.PublicInputs) { in.MinValue, in.MaxValue = in.MaxValue+1, in.MinValue },
			"unknown claim":   func(in *proof.PublicInputs) { in.Claim = proof.Claim("maybe") },
			"unknown type":    func(in *proof.PublicInputs) { in.ProofType = proof.ProofType("snark") },
		}
		for name, mutate := range mutations {
			inputs := p.PublicInputs
			mutate(&inputs)
			result, err := s.service.Verify(s.ctxAt(s.now.Add(10*time.Minute)), proof.VerifyRequest{ProofID: p.ProofID, PublicInputs: inputs})
			s.Nil(result, name)
			s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput), name)
		}

		stored, err := s.proofs.FindByID(context.Background(), p.ProofID)
		s.Require().NoError(err)
		s.False(stored.Verified)
	})

	s.Run("wrong opening is a commitment mismatch", func() {
		s.SetupTest()
		p, opening := s.generate(90)

		wrongValue := *opening
		wrongValue.Value = 96
		s.Equal(proof.ReasonCommitmentMismatch, s.verify(p, p.PublicInputs, &wrongValue).Reason)

		wrongNonce := *opening
		wrongNonce.Nonce = "ff" + opening.Nonce[2:]
		if wrongNonce.Nonce == opening.Nonce {
			wrongNonce.Nonce = "00" + opening.Nonce[2:]
		}
		s.Equal(proof.ReasonCommitmentMismatch, s.verify(p, p.PublicInputs, &wrongNonce).Reason)
	})

	s.Run("a claim that does not follow from the opened value is rejected", func() {
		s.SetupTest()
		// A record claiming compliance for an out-of-range value.
		forged, opening, err := proof.Generate(proof.Statement{
			UserID:      "user-1",
			Set:         s.set,
			Value:       90,
			Verdict:     validation.Verdict{IsValid: true},
			GeneratedAt: s.now,
		}, nil)
		s.Require().NoError(err)
		s.Require().NoError(s.proofs.Create(context.Background(), forged))

		result := s.verify(forged, forged.PublicInputs, opening)
		s.False(result.Verified)
		s.Equal(proof.ReasonClaimMismatch, result.Reason)

		public := s.verify(forged, forged.PublicInputs, nil)
		s.True(public.Verified, "the public check cannot see the value")
	})

	s.Run("a policy change after generation is a constraint mismatch", func() {
		s.SetupTest()
		p, opening := s.generate(96)

		changed := constraints.DefaultPolicy()
		changed.Altitude.Decrement = 2
		svc := s.newService(policyOverride{Service: s.constraints, policy: changed})

		result, err := svc.Verify(s.ctxAt(s.now), proof.VerifyRequest{ProofID: p.ProofID, PublicInputs: p.PublicInputs, Opening: opening})
		s.Require().NoError(err)
		s.False(result.Verified)
		s.Equal(proof.ReasonConstraintMismatch, result.Reason)
	})

	s.Run("a context that can no longer be found is a constraint mismatch", func() {
		s.SetupTest()
		p, _ := s.generate(96)
		s.contexts.forget(s.denver.ID)

		result := s.verify(p, p.PublicInputs, nil)
		s.Equal(proof.ReasonConstraintMismatch, result.Reason)
	})

	s.Run("unknown proof and malformed requests are errors", func() {
		s.SetupTest()
		p, opening := s.generate(96)

		_, err := s.service.Verify(s.ctxAt(s.now), proof.VerifyRequest{ProofID: "prf_missing", PublicInputs: p.PublicInputs})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		bad := p.PublicInputs
		bad.ContextHash = "short"
		_, err = s.service.Verify(s.ctxAt(s.now), proof.VerifyRequest{ProofID: p.ProofID, PublicInputs: bad})
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))

		badOpening := *opening
		badOpening.Nonce = "abc"
		_, err = s.service.Verify(s.ctxAt(s.now), proof.VerifyRequest{ProofID: p.ProofID, PublicInputs: p.PublicInputs, Opening: &badOpening})
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))
	})
}

func (s *ProofSuite) TestGetAndAggregate() {
	s.Run("proofs are visible to their owner only", func() {
		s.SetupTest()
		p, _ := s.generate(96)

		got, err := s.service.Get(s.ctxAt(s.now), "user-1", p.ProofID)
		s.Require().NoError(err)
		s.Equal(p.Commitment, got.Commitment)

		_, err = s.service.Get(s.ctxAt(s.now), "user-2", p.ProofID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("aggregation ignores duplicates and request order", func() {
		s.SetupTest()
		a, _ := s.generate(96)
		b, _ := s.generate(90)

		first, err := s.service.Aggregate(s.ctxAt(s.now), "user-1", []string{a.ProofID, b.ProofID, a.ProofID})
		s.Require().NoError(err)
		s.Equal(2, first.ProofCount)
		s.Equal(proof.AggregationMethod, first.Method)
		s.Len(first.AggregatedHash, 64)

		second, err := s.service.Aggregate(s.ctxAt(s.now), "user-1", []string{b.ProofID, a.ProofID})
		s.Require().NoError(err)
		s.Equal(first.AggregatedHash, second.AggregatedHash)
	})

	s.Run("aggregation refuses foreign or empty input", func() {
		s.SetupTest()
		a, _ := s.generate(96)

		_, err := s.service.Aggregate(s.ctxAt(s.now), "user-2", []string{a.ProofID})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.service.Aggregate(s.ctxAt(s.now), "user-1", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))
	})
}
