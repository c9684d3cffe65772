package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/otp"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	platformstrings "rollcall/pkg/platform/strings"
	"rollcall/pkg/requestcontext"
)

const maxBatchSize = 1000

// CodeService issues and inspects one-time codes.
type CodeService interface {
	Issue(ctx context.Context, sessionID, identityID string) (*otp.Issued, error)
	IssueBatch(ctx context.Context, sessionID string, identityIDs []string) (*otp.BatchResult, error)
	Resend(ctx context.Context, sessionID, identityID string) (*otp.ResendResult, error)
	ResendRemaining(ctx context.Context, sessionID, identityID string) (int, error)
	RemainingTTL(ctx context.Context, sessionID, identityID string) (int, error)
}

// CodeHandler exposes code issuance to authorities and code status to
// attendees. Codes are only ever returned to the authority routes.
type CodeHandler struct {
	codes  CodeService
	logger *slog.Logger
}

func NewCodeHandler(codes CodeService, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{codes: codes, logger: logger}
}

func (h *CodeHandler) Register(r chi.Router) {
	r.Get("/sessions/{sessionID}/codes/{identityID}", h.HandleStatus)
}

func (h *CodeHandler) RegisterAuthority(r chi.Router) {
	r.Post("/sessions/{sessionID}/codes", h.HandleIssueBatch)
	r.Post("/sessions/{sessionID}/codes/{identityID}", h.HandleIssue)
	r.Post("/sessions/{sessionID}/codes/{identityID}/resend", h.HandleResend)
}

// IssueBatchRequest is the body of POST /sessions/{sessionID}/codes.
type IssueBatchRequest struct {
	IdentityIDs []string `json:"identity_ids"`
}

// Validate trims the roster and drops blank and repeated ids.
func (r *IssueBatchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.IdentityIDs) > maxBatchSize {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d identities per batch", maxBatchSize)
	}
	r.IdentityIDs = platformstrings.DedupeAndTrim(r.IdentityIDs)
	if len(r.IdentityIDs) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "identity_ids is required")
	}
	return nil
}

type IssuedResponse struct {
	SessionID  string    `json:"session_id"`
	IdentityID string    `json:"identity_id"`
	Code       string    `json:"code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type BatchResponse struct {
	SessionID  string            `json:"session_id"`
	Codes      map[string]string `json:"codes"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Duplicates int               `json:"duplicates"`
}

type ResendResponse struct {
	*otp.ResendResult
	Code string `json:"code,omitempty"`
}

type CodeStatusResponse struct {
	TTLSeconds       int `json:"ttl_seconds"`
	ResendsRemaining int `json:"resends_remaining"`
}

// HandleIssueBatch handles POST /sessions/{sessionID}/codes.
func (h *CodeHandler) HandleIssueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.codes.IssueBatch(ctx, sessionID, req.IdentityIDs)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch issue failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, BatchResponse{
		SessionID:  sessionID,
		Codes:      res.Codes,
		ExpiresAt:  res.ExpiresAt,
		Duplicates: res.Duplicates,
	})
}

// HandleIssue handles POST /sessions/{sessionID}/codes/{identityID}.
func (h *CodeHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, identityID, ok := sessionIdentityParams(w, r)
	if !ok {
		return
	}
	issued, err := h.codes.Issue(ctx, sessionID, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, IssuedResponse{
		SessionID:  issued.SessionID,
		IdentityID: issued.IdentityID,
		Code:       issued.Code,
		ExpiresAt:  issued.ExpiresAt,
	})
}

// HandleResend handles POST /sessions/{sessionID}/codes/{identityID}/resend.
// An exhausted budget is reported as 429 with the result body.
func (h *CodeHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, identityID, ok := sessionIdentityParams(w, r)
	if !ok {
		return
	}
	res, err := h.codes.Resend(ctx, sessionID, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Accepted {
		status = http.StatusTooManyRequests
	}
	httputil.WriteJSON(w, status, ResendResponse{ResendResult: res, Code: res.Code})
}

// HandleStatus handles GET /sessions/{sessionID}/codes/{identityID}.
func (h *CodeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, identityID, ok := sessionIdentityParams(w, r)
	if !ok {
		return
	}
	ttl, err := h.codes.RemainingTTL(ctx, sessionID, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	remaining, err := h.codes.ResendRemaining(ctx, sessionID, identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CodeStatusResponse{TTLSeconds: ttl, ResendsRemaining: remaining})
}

func sessionIdentityParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return "", "", false
	}
	identityID, ok := identityParam(w, r)
	if !ok {
		return "", "", false
	}
	return sessionID, identityID, true
}

func identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "identityID"))
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity id is required"))
		return "", false
	}
	return id, true
}
