// Package httpapi assembles the HTTP surface: the shared middleware chain,
// operational endpoints and the versioned API routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/platform/metrics"
	"rollcall/internal/platform/middleware"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/platform/middleware/auth"
	"rollcall/pkg/platform/middleware/metadata"
	"rollcall/pkg/platform/middleware/request"
	"rollcall/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// PublicRoutes are reachable without a token.
type PublicRoutes interface {
	Register(r chi.Router)
}

// AuthorityRoutes require a valid authority token.
type AuthorityRoutes interface {
	RegisterAuthority(r chi.Router)
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Config carries everything the router needs. Public and Authority are
// mounted under /v1; ClientLimit, when set, guards the public routes only.
type Config struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Tokens      auth.TokenValidator
	ClientLimit func(http.Handler) http.Handler
	Health      map[string]HealthCheck
	Public      []PublicRoutes
	Authority   []AuthorityRoutes
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))

	r.Get("/healthz", health(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Group(func(public chi.Router) {
			if cfg.ClientLimit != nil {
				public.Use(cfg.ClientLimit)
			}
			for _, routes := range cfg.Public {
				routes.Register(public)
			}
		})
		api.Group(func(authority chi.Router) {
			authority.Use(auth.RequireAuthority(cfg.Tokens, cfg.Logger))
			for _, routes := range cfg.Authority {
				routes.RegisterAuthority(authority)
			}
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
