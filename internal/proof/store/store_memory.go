// Package store persists proofs.
package store

import (
	"context"
	"sync"
	"time"

	"vitalproof/internal/proof"
	"vitalproof/pkg/platform/sentinel"
)

// InMemoryStore keeps proofs for the life of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	proofs map[string]proof.Proof
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{proofs: make(map[string]proof.Proof)}
}

func (s *InMemoryStore) Create(_ context.Context, p *proof.Proof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proofs[p.ProofID]; ok {
		return sentinel.ErrConflict
	}
	s.proofs[p.ProofID] = clone(p)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, proofID string) (*proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&p)
	return &out, nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, proofID string, at time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return time.Time{}, false, sentinel.ErrNotFound
	}
	if p.Verified {
		return *p.VerifiedAt, false, nil
	}
	p.Verified = true
	p.VerifiedAt = &at
	s.proofs[proofID] = p
	return at, true, nil
}

func clone(p *proof.Proof) proof.Proof {
	out := *p
	if p.VerifiedAt != nil {
		at := *p.VerifiedAt
		out.VerifiedAt = &at
	}
	return out
}
