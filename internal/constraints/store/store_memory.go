// Package store persists constraint sets append-only.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"vitalproof/internal/constraints"
	"vitalproof/pkg/platform/sentinel"
)

type key struct {
	userID string
	metric constraints.MetricType
}

// InMemoryStore keeps every constraint set for the life of the process.
// Readers receive copies so stored records are never mutated.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]constraints.ConstraintSet
	byKey map[key][]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[uuid.UUID]constraints.ConstraintSet),
		byKey: make(map[key][]uuid.UUID),
	}
}

func (s *InMemoryStore) Append(_ context.Context, set *constraints.ConstraintSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[set.ID]; ok {
		return sentinel.ErrConflict
	}
	s.byID[set.ID] = clone(set)

	k := key{set.UserID, set.MetricType}
	ids := append(s.byKey[k], set.ID)
	slices.SortStableFunc(ids, func(a, b uuid.UUID) int {
		return s.byID[a].ValidFrom.Compare(s.byID[b].ValidFrom)
	})
	s.byKey[k] = ids
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*constraints.ConstraintSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&set)
	return &out, nil
}

func (s *InMemoryStore) Latest(_ context.Context, userID string, metric constraints.MetricType) (*constraints.ConstraintSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byKey[key{userID, metric}]
	if len(ids) == 0 {
		return nil, sentinel.ErrNotFound
	}
	set := s.byID[ids[len(ids)-1]]
	out := clone(&set)
	return &out, nil
}

func (s *InMemoryStore) ListByUserMetric(_ context.Context, userID string, metric constraints.MetricType) ([]*constraints.ConstraintSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byKey[key{userID, metric}]
	out := make([]*constraints.ConstraintSet, 0, len(ids))
	for _, id := range ids {
		set := s.byID[id]
		c := clone(&set)
		out = append(out, &c)
	}
	return out, nil
}

func clone(set *constraints.ConstraintSet) constraints.ConstraintSet {
	out := *set
	out.AppliedAdjustments = slices.Clone(set.AppliedAdjustments)
	if set.Demographics != nil {
		d := *set.Demographics
		out.Demographics = &d
	}
	return out
}
