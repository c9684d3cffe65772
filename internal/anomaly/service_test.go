package anomaly_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/anomaly"
	"rollcall/internal/anomaly/store"
	"rollcall/internal/notify"
	"rollcall/internal/platform/metrics"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/middleware/requesttime"
	"rollcall/pkg/platform/sentinel"
)

type TrackerSuite struct {
	suite.Suite
	store    *store.InMemoryStore
	metrics  *metrics.Metrics
	recorder *notify.Recorder
	tracker  *anomaly.Tracker
	ctx      context.Context
	now      time.Time
	key      anomaly.Key
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.recorder = notify.NewRecorder()
	tracker, err := anomaly.New(s.store,
		anomaly.WithMetrics(s.metrics),
		anomaly.WithPublisher(s.recorder),
	)
	s.Require().NoError(err)
	s.tracker = tracker
	s.now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
	s.key = anomaly.Key{SessionID: "cs101-wk3", IdentityID: "alice"}
}

func (s *TrackerSuite) TestRequiresStore() {
	_, err := anomaly.New(nil)
	s.Error(err)
}

func (s *TrackerSuite) TestLocksOnThirdFailure() {
	for i := 1; i <= 2; i++ {
		rec, crossed, err := s.tracker.RecordFailure(s.ctx, s.key)
		s.Require().NoError(err)
		s.False(crossed)
		s.Equal(i, rec.FailureCount)
		s.False(rec.Locked)
	}

	rec, crossed, err := s.tracker.RecordFailure(s.ctx, s.key)
	s.Require().NoError(err)
	s.True(crossed)
	s.True(rec.Locked)
	s.Equal(anomaly.LockReasonStrikes, rec.LockReason)
	s.Require().NotNil(rec.LockedAt)
	s.True(s.now.Equal(*rec.LockedAt))

	locked, err := s.tracker.IsLocked(s.ctx, s.key)
	s.Require().NoError(err)
	s.True(locked)

	logged, err := s.tracker.ListBySession(s.ctx, s.key.SessionID)
	s.Require().NoError(err)
	s.Require().Len(logged, 1)
	s.Equal(anomaly.TypeSessionLocked, logged[0].Type)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Lockouts.WithLabelValues(string(anomaly.LockReasonStrikes))))
	s.Len(s.recorder.OfType(notify.EventAnomalyAlert), 1)
}

func (s *TrackerSuite) TestFurtherFailuresDoNotRecross() {
	for range 5 {
		_, _, err := s.tracker.RecordFailure(s.ctx, s.key)
		s.Require().NoError(err)
	}
	logged, err := s.tracker.ListBySession(s.ctx, s.key.SessionID)
	s.Require().NoError(err)
	s.Len(logged, 1, "only the crossing logs session_locked")
}

func (s *TrackerSuite) TestConcurrentFailuresCrossExactlyOnce() {
	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		crosses int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, crossed, err := s.tracker.RecordFailure(s.ctx, s.key)
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
	rec, err := s.tracker.Strikes(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(workers, rec.FailureCount)
	s.True(rec.Locked)
}

func (s *TrackerSuite) TestSuccessResetsCounterButNotLock() {
	_, _, err := s.tracker.RecordFailure(s.ctx, s.key)
	s.Require().NoError(err)
	_, _, err = s.tracker.RecordFailure(s.ctx, s.key)
	s.Require().NoError(err)
	s.Require().NoError(s.tracker.RecordSuccess(s.ctx, s.key))

	rec, err := s.tracker.Strikes(s.ctx, s.key)
	s.Require().NoError(err)
	s.Zero(rec.FailureCount)

	_, _, err = s.tracker.LockNow(s.ctx, s.key, anomaly.LockReasonProxy, "proxy")
	s.Require().NoError(err)
	s.Require().NoError(s.tracker.RecordSuccess(s.ctx, s.key))
	locked, err := s.tracker.IsLocked(s.ctx, s.key)
	s.Require().NoError(err)
	s.True(locked)
}

func (s *TrackerSuite) TestSuccessDoesNotCreateRecords() {
	s.Require().NoError(s.tracker.RecordSuccess(s.ctx, s.key))

	_, err := s.store.GetStrikes(s.ctx, s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)

	rec, err := s.tracker.Strikes(s.ctx, s.key)
	s.Require().NoError(err)
	s.Zero(rec.FailureCount)
	s.False(rec.Locked)
}

func (s *TrackerSuite) TestProxyLockLogsNoSessionLockedAnomaly() {
	_, _, err := s.tracker.LockNow(s.ctx, s.key, anomaly.LockReasonProxy, "similarity below floor")
	s.Require().NoError(err)

	records, err := s.tracker.ListBySession(s.ctx, s.key.SessionID)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *TrackerSuite) TestLockNowIsImmediateAndReportsChange() {
	rec, changed, err := s.tracker.LockNow(s.ctx, s.key, anomaly.LockReasonProxy, "similarity below floor")
	s.Require().NoError(err)
	s.True(changed)
	s.True(rec.Locked)
	s.Equal(anomaly.LockReasonProxy, rec.LockReason)
	s.Zero(rec.FailureCount)

	_, changed, err = s.tracker.LockNow(s.ctx, s.key, anomaly.LockReasonProxy, "again")
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Lockouts.WithLabelValues(string(anomaly.LockReasonProxy))))
}

func (s *TrackerSuite) TestUnlock() {
	_, err := s.tracker.Unlock(s.ctx, s.key, "prof-x")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "unlocking an unlocked key")

	for range 3 {
		_, _, err := s.tracker.RecordFailure(s.ctx, s.key)
		s.Require().NoError(err)
	}
	_, err = s.tracker.Unlock(s.ctx, s.key, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	rec, err := s.tracker.Unlock(s.ctx, s.key, "prof-x")
	s.Require().NoError(err)
	s.False(rec.Locked)
	s.Zero(rec.FailureCount)
	s.Equal("prof-x", rec.UnlockedBy)

	_, crossed, err := s.tracker.RecordFailure(s.ctx, s.key)
	s.Require().NoError(err)
	s.False(crossed, "counter restarts after unlock")
}

func (s *TrackerSuite) TestInvalidKey() {
	_, _, err := s.tracker.RecordFailure(s.ctx, anomaly.Key{SessionID: "s"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *TrackerSuite) TestCustomThreshold() {
	tracker, err := anomaly.New(s.store, anomaly.WithThreshold(1))
	s.Require().NoError(err)
	_, crossed, err := tracker.RecordFailure(s.ctx, s.key)
	s.Require().NoError(err)
	s.True(crossed)
	s.Equal(1, tracker.Threshold())
}

func (s *TrackerSuite) TestReviewIsIdempotent() {
	confidence := 0.2
	rec, err := s.tracker.LogAnomaly(s.ctx, anomaly.Entry{
		IdentityID: "alice",
		SessionID:  "cs101-wk3",
		Type:       anomaly.TypeProxyAttempt,
		Reason:     "face matched bob",
		Confidence: &confidence,
	})
	s.Require().NoError(err)

	first, err := s.tracker.MarkReviewed(s.ctx, rec.ID, "prof-x")
	s.Require().NoError(err)
	s.True(first.Reviewed)

	later := requesttime.WithTime(context.Background(), s.now.Add(time.Hour))
	second, err := s.tracker.MarkReviewed(later, rec.ID, "prof-y")
	s.Require().NoError(err)
	s.Equal("prof-x", second.ReviewedBy)
	s.True(s.now.Equal(*second.ReviewedAt))

	_, err = s.tracker.MarkReviewed(s.ctx, "missing", "prof-x")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.tracker.Get(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TrackerSuite) TestListings() {
	for i, id := range []string{"alice", "alice", "bob"} {
		ctx := requesttime.WithTime(context.Background(), s.now.Add(time.Duration(i)*time.Minute))
		_, err := s.tracker.LogAnomaly(ctx, anomaly.Entry{
			IdentityID: id,
			SessionID:  "cs101-wk3",
			Type:       anomaly.TypeIdentityMismatch,
			Reason:     "low similarity",
		})
		s.Require().NoError(err)
	}

	byAlice, err := s.tracker.ListByIdentity(s.ctx, "alice", 0)
	s.Require().NoError(err)
	s.Require().Len(byAlice, 2)
	s.True(byAlice[0].CreatedAt.After(byAlice[1].CreatedAt), "newest first")

	limited, err := s.tracker.ListByIdentity(s.ctx, "alice", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	_, err = s.tracker.MarkReviewed(s.ctx, byAlice[0].ID, "prof-x")
	s.Require().NoError(err)
	unreviewed, err := s.tracker.ListUnreviewed(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(unreviewed, 2)
	for _, r := range unreviewed {
		s.False(r.Reviewed)
	}
}

func (s *TrackerSuite) TestLogAnomalyRequiresType() {
	_, err := s.tracker.LogAnomaly(s.ctx, anomaly.Entry{Reason: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestStrikeRecordTransitions(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := anomaly.NewStrikeRecord(anomaly.Key{SessionID: "s", IdentityID: "i"})

	assert.False(t, r.RegisterFailure(2, now))
	assert.True(t, r.RegisterFailure(2, now))
	assert.False(t, r.RegisterFailure(2, now), "already locked")
	assert.Equal(t, 3, r.FailureCount)

	assert.False(t, r.Lock(anomaly.LockReasonProxy, now))
	assert.Equal(t, anomaly.LockReasonStrikes, r.LockReason, "first reason sticks")

	assert.NoError(t, r.Unlock("prof", now))
	assert.Error(t, r.Unlock("prof", now))
	assert.Equal(t, anomaly.Key{SessionID: "s", IdentityID: "i"}, r.Key())
}
