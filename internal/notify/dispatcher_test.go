package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/platform/metrics"
	"rollcall/pkg/platform/middleware/requesttime"
)

func event(n int) Event {
	return Event{ID: fmt.Sprintf("e-%d", n), Type: EventAttendanceUpdate, SessionID: "s1"}
}

func TestRingBuffer(t *testing.T) {
	b := NewRingBuffer(3)
	for i := range 3 {
		assert.False(t, b.Enqueue(event(i)))
	}
	assert.True(t, b.Enqueue(event(3)), "full buffer drops the oldest")
	assert.Equal(t, int64(1), b.Dropped())

	got := b.DequeueBatch(2)
	require.Len(t, got, 2)
	assert.Equal(t, "e-1", got[0].ID)
	assert.Equal(t, "e-2", got[1].ID)

	got = b.DequeueBatch(10)
	require.Len(t, got, 1)
	assert.Equal(t, "e-3", got[0].ID)
	assert.Nil(t, b.DequeueBatch(1))
	assert.Zero(t, b.Len())
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure(), "second failure opens")
	assert.False(t, cb.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow(), "half-open after cooldown")
	assert.True(t, cb.RecordFailure(), "a failed probe reopens")
	assert.False(t, cb.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.RecordFailure(), "success resets the failure count")
}

// flakySink fails while failing is set.
type flakySink struct {
	mu      sync.Mutex
	failing bool
	calls   int
	got     []Event
}

func (s *flakySink) Send(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failing {
		return errors.New("broker unavailable")
	}
	s.got = append(s.got, events...)
	return nil
}

func (s *flakySink) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type DispatcherSuite struct {
	suite.Suite
	sink    *flakySink
	metrics *metrics.Metrics
	ctx     context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.sink = &flakySink{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ctx = context.Background()
}

func (s *DispatcherSuite) newDispatcher(opts ...Option) *Dispatcher {
	d, err := NewDispatcher(s.sink, append([]Option{WithMetrics(s.metrics)}, opts...)...)
	s.Require().NoError(err)
	return d
}

func (s *DispatcherSuite) TestRequiresSink() {
	_, err := NewDispatcher(nil)
	s.Error(err)
}

func (s *DispatcherSuite) TestFlushDeliversInOrder() {
	d := s.newDispatcher()
	for i := range 250 {
		d.Publish(s.ctx, event(i))
	}
	s.Equal(250, d.Flush(s.ctx))
	s.Equal(3, s.sink.calls, "batches of 100")
	s.Equal("e-0", s.sink.got[0].ID)
	s.Equal("e-249", s.sink.got[249].ID)
	s.Equal(250.0, testutil.ToFloat64(s.metrics.NotifyDelivered))
}

func (s *DispatcherSuite) TestOverflowIsCounted() {
	d := s.newDispatcher(WithBuffer(2))
	for i := range 5 {
		d.Publish(s.ctx, event(i))
	}
	s.Equal(2, d.Pending())
	s.Equal(3.0, testutil.ToFloat64(s.metrics.NotifyDropped.WithLabelValues("overflow")))
}

func (s *DispatcherSuite) TestOpenCircuitDropsWithoutCallingSink() {
	d := s.newDispatcher(WithCircuitBreaker(NewCircuitBreaker(1, time.Hour)))
	s.sink.failing = true

	d.Publish(s.ctx, event(1))
	s.Zero(d.Flush(s.ctx))
	s.Equal(1, s.sink.calls)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyCircuitOpen))

	d.Publish(s.ctx, event(2))
	s.Zero(d.Flush(s.ctx))
	s.Equal(1, s.sink.calls, "open circuit skips the sink")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.NotifyDropped.WithLabelValues("circuit_open")))
}

func (s *DispatcherSuite) TestRunDeliversAndDrainsOnShutdown() {
	d := s.newDispatcher(WithFlushInterval(10 * time.Millisecond))
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Publish(ctx, event(1))
	s.Require().Eventually(func() bool { return s.sink.received() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	s.NoError(<-done)

	d.Publish(s.ctx, event(2))
	s.Equal(1, d.Pending(), "nothing consumes after Run returns")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Publish(context.Background(), Event{Type: EventAnomalyAlert})
	require.NoError(t, r.Send(context.Background(), []Event{{Type: EventAttendanceUpdate}}))
	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(EventAnomalyAlert), 1)
}

func TestNewEventUsesRequestTime(t *testing.T) {
	at := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
	ctx := requesttime.WithTime(context.Background(), at)
	e := NewEvent(ctx, EventAnomalyAlert, "s1", "i1", map[string]any{"type": "proxy_attempt"})
	assert.Equal(t, at, e.OccurredAt)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "s1", e.SessionID)
}
