// Package store persists anchor receipts.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"vitalproof/internal/anchoring"
	"vitalproof/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]anchoring.Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{receipts: make(map[string]anchoring.Receipt)}
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, r *anchoring.Receipt) (*anchoring.Receipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.receipts[r.ProofID]; ok {
		out := clone(&existing)
		return &out, false, nil
	}
	s.receipts[r.ProofID] = clone(r)
	out := clone(r)
	return &out, true, nil
}

func (s *InMemoryStore) FindByProofID(_ context.Context, proofID string) (*anchoring.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[proofID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&r)
	return &out, nil
}

// ListUnconfirmed returns the oldest unconfirmed receipts first.
func (s *InMemoryStore) ListUnconfirmed(_ context.Context, ledgerID string, limit int) ([]*anchoring.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*anchoring.Receipt
	for _, r := range s.receipts {
		if r.ConfirmedAt == nil && r.LedgerID == ledgerID {
			c := clone(&r)
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *anchoring.Receipt) int { return a.SubmittedAt.Compare(b.SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkConfirmed(_ context.Context, proofID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[proofID]
	if !ok || r.ConfirmedAt != nil {
		return false, nil
	}
	r.ConfirmedAt = &at
	s.receipts[proofID] = r
	return true, nil
}

func clone(r *anchoring.Receipt) anchoring.Receipt {
	out := *r
	if r.ConfirmedAt != nil {
		at := *r.ConfirmedAt
		out.ConfirmedAt = &at
	}
	return out
}
