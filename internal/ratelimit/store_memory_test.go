package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestInMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := NewInMemory(WithClock(c.now))

	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "client:a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		c.advance(10 * time.Second)
	}

	res, err := store.Allow(ctx, "client:a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, c.t.Add(30*time.Second), res.ResetAt, "resets when the oldest request leaves the window")

	other, err := store.Allow(ctx, "client:b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	c.advance(31 * time.Second)
	res, err = store.Allow(ctx, "client:a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "the oldest request slid out")
	assert.Equal(t, 0, res.Remaining)
}

func TestInMemoryRejectedRequestsAreNotCounted(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := NewInMemory(WithClock(c.now))

	_, err := store.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		res, err := store.Allow(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	c.advance(time.Minute + time.Millisecond)
	res, err := store.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryCleanup(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := NewInMemory(WithClock(c.now))

	_, _ = store.Allow(ctx, "old", 5, time.Minute)
	c.advance(2 * time.Minute)
	_, _ = store.Allow(ctx, "fresh", 5, time.Minute)

	assert.Equal(t, 1, store.Cleanup(time.Minute))
	assert.Len(t, store.windows, 1)
	assert.Contains(t, store.windows, "fresh")
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	r := &Result{ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, r.RetryAfter(now))

	r.ResetAt = now.Add(-time.Second)
	assert.Equal(t, time.Second, r.RetryAfter(now))
}
