// Package store persists resolved environmental contexts.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/sentinel"
)

// InMemoryStore keeps contexts for the life of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]environment.Context
	byHash map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[uuid.UUID]environment.Context),
		byHash: make(map[string]uuid.UUID),
	}
}

// Save inserts a context. Re-saving an existing id is a conflict.
func (s *InMemoryStore) Save(_ context.Context, c *environment.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.byID[c.ID] = *c
	if _, ok := s.byHash[c.Hash]; !ok {
		s.byHash[c.Hash] = c.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*environment.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) FindByHash(_ context.Context, hash string) (*environment.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := s.byID[id]
	return &c, nil
}
