package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/anomaly"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/requestcontext"
)

// AnomalyService exposes the strike state and the anomaly log to
// authorities.
type AnomalyService interface {
	Strikes(ctx context.Context, key anomaly.Key) (*anomaly.StrikeRecord, error)
	Unlock(ctx context.Context, key anomaly.Key, authorityID string) (*anomaly.StrikeRecord, error)
	Get(ctx context.Context, anomalyID string) (*anomaly.Record, error)
	MarkReviewed(ctx context.Context, anomalyID, reviewerID string) (*anomaly.Record, error)
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*anomaly.Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]*anomaly.Record, error)
	ListUnreviewed(ctx context.Context, limit int) ([]*anomaly.Record, error)
}

// AnomalyHandler serves the authority-only lock and review endpoints. The
// acting authority always comes from the verified token.
type AnomalyHandler struct {
	anomalies AnomalyService
	logger    *slog.Logger
}

func NewAnomalyHandler(anomalies AnomalyService, logger *slog.Logger) *AnomalyHandler {
	return &AnomalyHandler{anomalies: anomalies, logger: logger}
}

func (h *AnomalyHandler) RegisterAuthority(r chi.Router) {
	r.Get("/sessions/{sessionID}/identities/{identityID}/strikes", h.HandleStrikes)
	r.Post("/sessions/{sessionID}/identities/{identityID}/unlock", h.HandleUnlock)
	r.Get("/anomalies", h.HandleList)
	r.Get("/anomalies/{anomalyID}", h.HandleGet)
	r.Post("/anomalies/{anomalyID}/review", h.HandleReview)
}

type AnomalyListResponse struct {
	Anomalies []*anomaly.Record `json:"anomalies"`
	Count     int               `json:"count"`
}

func (h *AnomalyHandler) HandleStrikes(w http.ResponseWriter, r *http.Request) {
	sessionID, identityID, ok := sessionIdentityParams(w, r)
	if !ok {
		return
	}
	rec, err := h.anomalies.Strikes(r.Context(), anomaly.Key{SessionID: sessionID, IdentityID: identityID})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleUnlock handles POST /sessions/{sessionID}/identities/{identityID}/unlock.
func (h *AnomalyHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, identityID, ok := sessionIdentityParams(w, r)
	if !ok {
		return
	}
	authorityID := requestcontext.AuthorityID(ctx)

	rec, err := h.anomalies.Unlock(ctx, anomaly.Key{SessionID: sessionID, IdentityID: identityID}, authorityID)
	if err != nil {
		h.logger.WarnContext(ctx, "unlock rejected",
			"request_id", requestID,
			"session_id", sessionID,
			"identity_id", identityID,
			"authority_id", authorityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /anomalies. Exactly one of identity_id, session_id
// or unreviewed=true selects the listing.
func (h *AnomalyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	var (
		records []*anomaly.Record
		err     error
	)
	identityID := strings.TrimSpace(q.Get("identity_id"))
	sessionID := strings.TrimSpace(q.Get("session_id"))
	switch {
	case identityID != "":
		records, err = h.anomalies.ListByIdentity(ctx, identityID, limit)
	case sessionID != "":
		records, err = h.anomalies.ListBySession(ctx, sessionID)
	case q.Get("unreviewed") == "true":
		records, err = h.anomalies.ListUnreviewed(ctx, limit)
	default:
		err = dErrors.New(dErrors.CodeInvalidInput, "one of identity_id, session_id or unreviewed=true is required")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*anomaly.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, AnomalyListResponse{Anomalies: records, Count: len(records)})
}

func (h *AnomalyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.anomalies.Get(r.Context(), chi.URLParam(r, "anomalyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleReview handles POST /anomalies/{anomalyID}/review.
func (h *AnomalyHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.anomalies.MarkReviewed(ctx, chi.URLParam(r, "anomalyID"), requestcontext.AuthorityID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
