// Package store persists biometric enrollments.
package store

import (
	"context"
	"slices"
	"sync"

	"rollcall/internal/biometric"
	"rollcall/pkg/platform/sentinel"
)

// InMemoryStore keeps enrollments in a map. Suitable for tests and
// single-instance deployments without Postgres.
type InMemoryStore struct {
	mu          sync.RWMutex
	enrollments map[string]*biometric.Enrollment
}

var _ biometric.Store = (*InMemoryStore)(nil)

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{enrollments: make(map[string]*biometric.Enrollment)}
}

func (s *InMemoryStore) Save(_ context.Context, e *biometric.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.enrollments[e.IdentityID]; exists {
		return sentinel.ErrConflict
	}
	s.enrollments[e.IdentityID] = clone(e)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, identityID string) (*biometric.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(e), nil
}

func (s *InMemoryStore) Delete(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[identityID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.enrollments, identityID)
	return nil
}

// List returns enrollments ordered by creation time, then identity.
func (s *InMemoryStore) List(_ context.Context) ([]*biometric.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*biometric.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, clone(e))
	}
	slices.SortFunc(out, func(a, b *biometric.Enrollment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.IdentityID < b.IdentityID {
			return -1
		}
		if a.IdentityID > b.IdentityID {
			return 1
		}
		return 0
	})
	return out, nil
}

func clone(e *biometric.Enrollment) *biometric.Enrollment {
	c := *e
	c.Embedding = slices.Clone(e.Embedding)
	return &c
}
