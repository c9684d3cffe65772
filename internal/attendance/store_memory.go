package attendance

import (
	"context"
	"slices"
	"sync"

	"rollcall/pkg/platform/sentinel"
)

type pairKey struct {
	session  string
	identity string
}

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[pairKey]*Record
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[pairKey]*Record)}
}

func (s *InMemoryStore) Get(_ context.Context, sessionID, identityID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[pairKey{sessionID, identityID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (s *InMemoryStore) Put(_ context.Context, rec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{rec.SessionID, rec.IdentityID}
	stored := *rec
	if existing, ok := s.records[key]; ok {
		if existing.Verified() {
			c := *existing
			return &c, sentinel.ErrAlreadyUsed
		}
		stored.ID = existing.ID
	}
	s.records[key] = &stored
	c := stored
	return &c, nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]*Record, error) {
	return s.list(func(r *Record) bool { return r.SessionID == sessionID }), nil
}

func (s *InMemoryStore) ListByIdentity(_ context.Context, identityID string) ([]*Record, error) {
	return s.list(func(r *Record) bool { return r.IdentityID == identityID }), nil
}

// list returns matching records ordered by time, oldest first.
func (s *InMemoryStore) list(match func(*Record) bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, r := range s.records {
		if match(r) {
			c := *r
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
			return c
		}
		if a.IdentityID != b.IdentityID {
			if a.IdentityID < b.IdentityID {
				return -1
			}
			return 1
		}
		if a.SessionID < b.SessionID {
			return -1
		}
		if a.SessionID > b.SessionID {
			return 1
		}
		return 0
	})
	return out
}
