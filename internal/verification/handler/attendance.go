package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/attendance"
	"rollcall/pkg/platform/httputil"
)

// AttendanceReader lists attendance records.
type AttendanceReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]*attendance.Record, error)
	ListByIdentity(ctx context.Context, identityID string) ([]*attendance.Record, error)
}

type AttendanceHandler struct {
	records AttendanceReader
	logger  *slog.Logger
}

func NewAttendanceHandler(records AttendanceReader, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{records: records, logger: logger}
}

func (h *AttendanceHandler) RegisterAuthority(r chi.Router) {
	r.Get("/sessions/{sessionID}/attendance", h.HandleSession)
	r.Get("/identities/{identityID}/attendance", h.HandleIdentity)
}

type AttendanceResponse struct {
	Records []*attendance.Record `json:"records"`
	Summary attendance.Summary   `json:"summary"`
}

func (h *AttendanceHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	records, err := h.records.ListBySession(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAttendanceResponse(records))
}

func (h *AttendanceHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	identityID, ok := identityParam(w, r)
	if !ok {
		return
	}
	records, err := h.records.ListByIdentity(r.Context(), identityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newAttendanceResponse(records))
}

func newAttendanceResponse(records []*attendance.Record) AttendanceResponse {
	if records == nil {
		records = []*attendance.Record{}
	}
	return AttendanceResponse{Records: records, Summary: attendance.Summarize(records)}
}
