package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"rollcall/internal/platform/metrics"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/platform/middleware/metadata"
	"rollcall/pkg/requestcontext"
)

// Limiter applies one per-client limit. A zero limit disables it.
type Limiter struct {
	store   Store
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{store: store, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) enabled() bool {
	return l != nil && l.store != nil && l.limit > 0 && l.window > 0
}

// PerClient limits requests by client IP. It must run after
// metadata.ClientMetadata. Store faults fail open.
func (l *Limiter) PerClient(next http.Handler) http.Handler {
	if !l.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := metadata.GetClientIP(ctx)

		res, err := l.store.Allow(ctx, "client:"+ip, l.limit, l.window)
		if err != nil {
			if l.logger != nil {
				l.logger.ErrorContext(ctx, "rate limit check failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			l.metrics.IncrementRateLimited()
			if l.logger != nil {
				l.logger.WarnContext(ctx, "client rate limited",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", ip,
					"path", r.URL.Path,
				)
			}
			h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter(l.now()).Seconds())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
