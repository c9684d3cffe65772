//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/anomaly"
	"rollcall/internal/anomaly/store"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "strike_records", "anomalies"))
}

func (s *PostgresStoreSuite) TestConcurrentFailuresCrossOnce() {
	ctx := context.Background()
	key := anomaly.Key{SessionID: "cs101", IdentityID: "alice"}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		crosses int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var crossed bool
			_, err := s.store.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
				crossed = r.RegisterFailure(3, now)
				return nil
			})
			s.NoError(err)
			if crossed {
				mu.Lock()
				crosses++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, crosses)
	rec, err := s.store.GetStrikes(ctx, key)
	s.Require().NoError(err)
	s.Equal(10, rec.FailureCount)
	s.True(rec.Locked)
	s.Equal(anomaly.LockReasonStrikes, rec.LockReason)
	s.Require().NotNil(rec.LockedAt)
	s.True(now.Equal(*rec.LockedAt))
}

func (s *PostgresStoreSuite) TestUnlockRoundTrip() {
	ctx := context.Background()
	key := anomaly.Key{SessionID: "cs101", IdentityID: "bob"}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, err := s.store.GetStrikes(ctx, key)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
		return r.Unlock("prof", now)
	})
	s.Error(err)

	_, err = s.store.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
		r.Lock(anomaly.LockReasonProxy, now)
		return nil
	})
	s.Require().NoError(err)

	rec, err := s.store.UpdateStrikes(ctx, key, func(r *anomaly.StrikeRecord) error {
		return r.Unlock("prof", now.Add(time.Minute))
	})
	s.Require().NoError(err)
	s.False(rec.Locked)

	got, err := s.store.GetStrikes(ctx, key)
	s.Require().NoError(err)
	s.Equal("prof", got.UnlockedBy)
	s.Require().NotNil(got.UnlockedAt)
	s.Equal(anomaly.LockReasonProxy, got.LockReason)
}

func (s *PostgresStoreSuite) TestAnomalyLog() {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	confidence := 0.21

	first := &anomaly.Record{
		ID: uuid.NewString(), IdentityID: "alice", SessionID: "cs101",
		Type: anomaly.TypeProxyAttempt, Reason: "matched bob", Confidence: &confidence, CreatedAt: base,
	}
	second := &anomaly.Record{
		ID: uuid.NewString(), SessionID: "cs101",
		Type: anomaly.TypeVerificationFailed, Reason: "no face", CreatedAt: base.Add(time.Minute),
	}
	s.Require().NoError(s.store.AppendAnomaly(ctx, first))
	s.Require().NoError(s.store.AppendAnomaly(ctx, second))
	s.ErrorIs(s.store.AppendAnomaly(ctx, first), sentinel.ErrConflict)

	got, err := s.store.GetAnomaly(ctx, first.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Confidence)
	s.InDelta(0.21, *got.Confidence, 1e-9)

	bySession, err := s.store.ListAnomalies(ctx, anomaly.Filter{SessionID: "cs101"})
	s.Require().NoError(err)
	s.Require().Len(bySession, 2)
	s.Equal(second.ID, bySession[0].ID)
	s.Empty(bySession[0].IdentityID)

	_, err = s.store.UpdateAnomaly(ctx, first.ID, func(r *anomaly.Record) error {
		r.MarkReviewed("prof", base.Add(time.Hour))
		return nil
	})
	s.Require().NoError(err)

	open, err := s.store.ListAnomalies(ctx, anomaly.Filter{UnreviewedOnly: true, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(second.ID, open[0].ID)

	_, err = s.store.GetAnomaly(ctx, "not-a-uuid")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.UpdateAnomaly(ctx, uuid.NewString(), func(*anomaly.Record) error { return nil })
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTrackerSuccessLeavesNoRow() {
	ctx := context.Background()
	tracker, err := anomaly.New(s.store)
	s.Require().NoError(err)
	key := anomaly.Key{SessionID: "cs101", IdentityID: "bob"}

	s.Require().NoError(tracker.RecordSuccess(ctx, key))
	_, err = s.store.GetStrikes(ctx, key)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, _, err = tracker.RecordFailure(ctx, key)
	s.Require().NoError(err)
	s.Require().NoError(tracker.RecordSuccess(ctx, key))
	rec, err := s.store.GetStrikes(ctx, key)
	s.Require().NoError(err)
	s.Zero(rec.FailureCount)
}
