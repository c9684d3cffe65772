package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/anomaly"
	"rollcall/pkg/platform/sentinel"
)

func TestInMemoryStrikes(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	key := anomaly.Key{SessionID: "s1", IdentityID: "alice"}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := s.GetStrikes(ctx, key)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	rec, err := s.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
		assert.Zero(t, r.FailureCount, "missing record starts fresh")
		r.RegisterFailure(3, now)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FailureCount)

	boom := errors.New("boom")
	_, err = s.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
		r.FailureCount = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetStrikes(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailureCount, "failed callback writes nothing")

	got.Lock(anomaly.LockReasonProxy, now)
	again, err := s.GetStrikes(ctx, key)
	require.NoError(t, err)
	assert.False(t, again.Locked, "returned records must not alias stored state")
}

func TestInMemoryAnomalies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	records := []*anomaly.Record{
		{ID: "a", IdentityID: "alice", SessionID: "s1", Type: anomaly.TypeProxyAttempt, CreatedAt: base},
		{ID: "b", IdentityID: "bob", SessionID: "s1", Type: anomaly.TypeIdentityMismatch, CreatedAt: base.Add(time.Minute)},
		{ID: "c", IdentityID: "alice", SessionID: "s2", Type: anomaly.TypeSessionLocked, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, s.AppendAnomaly(ctx, r))
	}
	assert.ErrorIs(t, s.AppendAnomaly(ctx, records[0]), sentinel.ErrConflict)

	all, err := s.ListAnomalies(ctx, anomaly.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	alice, err := s.ListAnomalies(ctx, anomaly.Filter{IdentityID: "alice", Limit: 1})
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "c", alice[0].ID)

	_, err = s.UpdateAnomaly(ctx, "b", func(r *anomaly.Record) error {
		r.MarkReviewed("prof", base)
		return nil
	})
	require.NoError(t, err)

	open, err := s.ListAnomalies(ctx, anomaly.Filter{SessionID: "s1", UnreviewedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)

	_, err = s.UpdateAnomaly(ctx, "missing", func(*anomaly.Record) error { return nil })
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.GetAnomaly(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
