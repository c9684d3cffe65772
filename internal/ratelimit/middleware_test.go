package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"rollcall/internal/platform/metrics"
	"rollcall/pkg/platform/middleware/metadata"
)

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func call(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/cs101/verify", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	metadata.ClientMetadata(h).ServeHTTP(w, req)
	return w
}

func TestPerClientLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(NewInMemory(), 2, time.Minute, WithMetrics(m)).PerClient(ok)

	w := call(h, "192.0.2.1:1000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, call(h, "192.0.2.1:1001").Code)

	w = call(h, "192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))

	assert.Equal(t, http.StatusNoContent, call(h, "192.0.2.2:1000").Code, "other clients are unaffected")
}

func TestPerClientFailsOpen(t *testing.T) {
	h := New(brokenStore{}, 1, time.Minute).PerClient(ok)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, call(h, "192.0.2.1:1000").Code)
	}
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	h := New(NewInMemory(), 0, time.Minute).PerClient(ok)
	for i := 0; i < 5; i++ {
		w := call(h, "192.0.2.1:1000")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	var nilLimiter *Limiter
	assert.Equal(t, http.StatusNoContent, call(nilLimiter.PerClient(ok), "192.0.2.1:1000").Code)
}
