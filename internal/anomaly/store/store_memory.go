// Package store persists strike records and the anomaly log.
package store

import (
	"context"
	"slices"
	"sync"

	"rollcall/internal/anomaly"
	"rollcall/pkg/platform/sentinel"
)

// InMemoryStore serializes every update under one mutex, which makes
// UpdateStrikes trivially atomic per key.
type InMemoryStore struct {
	mu        sync.RWMutex
	strikes   map[anomaly.Key]*anomaly.StrikeRecord
	anomalies map[string]*anomaly.Record
	order     []string
}

var _ anomaly.Store = (*InMemoryStore)(nil)

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		strikes:   make(map[anomaly.Key]*anomaly.StrikeRecord),
		anomalies: make(map[string]*anomaly.Record),
	}
}

func (s *InMemoryStore) GetStrikes(_ context.Context, key anomaly.Key) (*anomaly.StrikeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.strikes[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneStrikes(rec), nil
}

func (s *InMemoryStore) UpdateStrikes(ctx context.Context, key anomaly.Key, fn func(*anomaly.StrikeRecord) error) (*anomaly.StrikeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := anomaly.NewStrikeRecord(key)
	if rec, ok := s.strikes[key]; ok {
		working = cloneStrikes(rec)
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	s.strikes[key] = working
	return cloneStrikes(working), nil
}

func (s *InMemoryStore) AppendAnomaly(_ context.Context, record *anomaly.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.anomalies[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.anomalies[record.ID] = cloneRecord(record)
	s.order = append(s.order, record.ID)
	return nil
}

func (s *InMemoryStore) GetAnomaly(_ context.Context, id string) (*anomaly.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.anomalies[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) UpdateAnomaly(_ context.Context, id string, fn func(*anomaly.Record) error) (*anomaly.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.anomalies[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneRecord(rec)
	if err := fn(working); err != nil {
		return nil, err
	}
	s.anomalies[id] = working
	return cloneRecord(working), nil
}

// ListAnomalies walks the log newest first. Records created at the same
// instant come back in reverse insertion order.
func (s *InMemoryStore) ListAnomalies(_ context.Context, f anomaly.Filter) ([]*anomaly.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*anomaly.Record, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.anomalies[s.order[i]]
		if !matches(rec, f) {
			continue
		}
		matched = append(matched, rec)
	}
	slices.SortStableFunc(matched, func(a, b *anomaly.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*anomaly.Record, len(matched))
	for i, rec := range matched {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func matches(r *anomaly.Record, f anomaly.Filter) bool {
	if f.IdentityID != "" && r.IdentityID != f.IdentityID {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.UnreviewedOnly && r.Reviewed {
		return false
	}
	return true
}

func cloneStrikes(r *anomaly.StrikeRecord) *anomaly.StrikeRecord {
	c := *r
	if r.LockedAt != nil {
		t := *r.LockedAt
		c.LockedAt = &t
	}
	if r.UnlockedAt != nil {
		t := *r.UnlockedAt
		c.UnlockedAt = &t
	}
	return &c
}

func cloneRecord(r *anomaly.Record) *anomaly.Record {
	c := *r
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}
