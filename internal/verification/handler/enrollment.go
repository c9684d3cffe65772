package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/biometric"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/requestcontext"
)

const maxEnrollmentShots = 20

// EnrollmentService builds and removes biometric enrollments.
type EnrollmentService interface {
	Enroll(ctx context.Context, identityID, name string, shots []biometric.Sample) (*biometric.EnrollmentResult, error)
	Remove(ctx context.Context, identityID string) error
	Stats() biometric.Stats
}

type EnrollmentHandler struct {
	enroller EnrollmentService
	logger   *slog.Logger
}

func NewEnrollmentHandler(enroller EnrollmentService, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enroller: enroller, logger: logger}
}

func (h *EnrollmentHandler) RegisterAuthority(r chi.Router) {
	r.Put("/identities/{identityID}/enrollment", h.HandleEnroll)
	r.Delete("/identities/{identityID}/enrollment", h.HandleRemove)
	r.Get("/index/stats", h.HandleStats)
}

// EnrollRequest is the body of PUT /identities/{identityID}/enrollment.
type EnrollRequest struct {
	Name  string             `json:"name"`
	Shots []biometric.Sample `json:"shots"`
}

func (r *EnrollRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Shots) > maxEnrollmentShots {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d shots are accepted", maxEnrollmentShots)
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len(r.Shots) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "shots is required")
	}
	return nil
}

// HandleEnroll handles PUT /identities/{identityID}/enrollment. Rejected
// enrollments are a completed decision: 409 for a duplicate or existing
// enrollment and 422 for the quality gates, with the full result body.
func (h *EnrollmentHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	identityID, ok := identityParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EnrollRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.enroller.Enroll(ctx, identityID, req.Name, req.Shots)
	if err != nil {
		h.logger.ErrorContext(ctx, "enrollment failed",
			"request_id", requestID,
			"identity_id", identityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrollment processed",
		"request_id", requestID,
		"identity_id", identityID,
		"outcome", res.Outcome,
		"valid_shots", res.ValidShots,
	)
	httputil.WriteJSON(w, enrollmentStatus(res.Outcome), res)
}

func enrollmentStatus(o biometric.EnrollmentOutcome) int {
	switch o {
	case biometric.OutcomeEnrolled:
		return http.StatusCreated
	case biometric.OutcomeDuplicate, biometric.OutcomeAlreadyEnrolled:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// HandleRemove handles DELETE /identities/{identityID}/enrollment.
func (h *EnrollmentHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityParam(w, r)
	if !ok {
		return
	}
	if err := h.enroller.Remove(r.Context(), identityID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EnrollmentHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.enroller.Stats())
}
