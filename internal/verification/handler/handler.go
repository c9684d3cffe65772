package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/proximity"
	"rollcall/internal/verification"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/platform/middleware/metadata"
	"rollcall/pkg/platform/sentinel"
	"rollcall/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Sessions

// Service defines the interface for verification operations.
type Service interface {
	Verify(ctx context.Context, req verification.Request) (*verification.Response, error)
}

// Sessions stores the proximity reference of each session.
type Sessions interface {
	Set(sessionID string, ref proximity.Reference) error
	Reference(ctx context.Context, sessionID string) (proximity.Reference, error)
}

// Handler wires verification endpoints to the verification service.
type Handler struct {
	service  Service
	sessions Sessions
	logger   *slog.Logger
}

func New(service Service, sessions Sessions, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		logger:   logger,
	}
}

// Register mounts the attendee-facing endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions/{sessionID}/verify", h.HandleVerify)
}

// RegisterAuthority mounts endpoints that require an authority token.
func (h *Handler) RegisterAuthority(r chi.Router) {
	r.Put("/sessions/{sessionID}/reference", h.HandleSetReference)
	r.Get("/sessions/{sessionID}/reference", h.HandleGetReference)
}

// HandleVerify handles POST /sessions/{sessionID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resp, err := h.service.Verify(ctx, req.ToDomain(sessionID))
	if err != nil {
		h.logger.WarnContext(ctx, "verification rejected",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestID,
		"session_id", sessionID,
		"identity_id", req.IdentityID,
		"client_ip", metadata.GetClientIP(ctx),
		"outcome", resp.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, StatusFor(resp.Outcome), resp)
}

// StatusFor maps an outcome to its HTTP status. Rejections are still a
// completed decision and use 200.
func StatusFor(o verification.Outcome) int {
	switch o {
	case verification.OutcomeNotFound:
		return http.StatusNotFound
	case verification.OutcomeTimeout:
		return http.StatusGatewayTimeout
	case verification.OutcomeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// HandleSetReference handles PUT /sessions/{sessionID}/reference.
func (h *Handler) HandleSetReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	ref, ok := httputil.DecodeAndPrepare[proximity.Reference](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.sessions.Set(sessionID, *ref); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session reference set",
		"request_id", requestID,
		"session_id", sessionID,
		"authority_id", requestcontext.AuthorityID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, ref)
}

// HandleGetReference handles GET /sessions/{sessionID}/reference.
func (h *Handler) HandleGetReference(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	ref, err := h.sessions.Reference(r.Context(), sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session has no reference data"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ref)
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "session id is required"))
		return "", false
	}
	return id, true
}
