package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"rollcall/internal/anomaly"
	anomalystore "rollcall/internal/anomaly/store"
	"rollcall/internal/attendance"
	"rollcall/internal/biometric"
	biometricstore "rollcall/internal/biometric/store"
	"rollcall/internal/otp"
	"rollcall/internal/otp/cache"
	"rollcall/pkg/testutil"
)

// AuthoritySuite drives the authority routes against in-memory services.
type AuthoritySuite struct {
	suite.Suite
	router  chi.Router
	tracker *anomaly.Tracker
	records *attendance.InMemoryStore
	ctx     context.Context
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = context.Background()

	codes, err := otp.New(cache.NewInMemory())
	s.Require().NoError(err)
	enroller, err := biometric.NewEnroller(biometricstore.NewInMemory(), biometric.NewFlatIndex(3), biometric.NewPrecomputedExtractor(3))
	s.Require().NoError(err)
	s.tracker, err = anomaly.New(anomalystore.NewInMemory())
	s.Require().NoError(err)
	s.records = attendance.NewInMemoryStore()

	s.router = chi.NewRouter()
	codeHandler := NewCodeHandler(codes, logger)
	codeHandler.Register(s.router)
	codeHandler.RegisterAuthority(s.router)
	NewEnrollmentHandler(enroller, logger).RegisterAuthority(s.router)
	NewAnomalyHandler(s.tracker, logger).RegisterAuthority(s.router)
	NewAttendanceHandler(s.records, logger).RegisterAuthority(s.router)
}

// do sends a request as authority; an empty authority sends none.
func (s *AuthoritySuite) do(method, path, body, authority string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(method, path, body)
	if authority != "" {
		req = testutil.WithAuthority(req, authority)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *AuthoritySuite) decode(w *httptest.ResponseRecorder) map[string]any {
	return testutil.DecodeJSON[map[string]any](s.T(), w)
}

func (s *AuthoritySuite) TestCodeLifecycle() {
	w := s.do(http.MethodPost, "/sessions/cs101/codes/alice", "", "prof")
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Regexp(`^[0-9]{4}$`, s.decode(w)["code"])

	w = s.do(http.MethodGet, "/sessions/cs101/codes/alice", "", "")
	s.Require().Equal(http.StatusOK, w.Code)
	status := s.decode(w)
	s.GreaterOrEqual(status["ttl_seconds"], 59.0)
	s.Equal(2.0, status["resends_remaining"])

	for i := 0; i < 2; i++ {
		w = s.do(http.MethodPost, "/sessions/cs101/codes/alice/resend", "", "prof")
		s.Require().Equal(http.StatusOK, w.Code)
		s.Regexp(`^[0-9]{4}$`, s.decode(w)["code"])
	}
	w = s.do(http.MethodPost, "/sessions/cs101/codes/alice/resend", "", "prof")
	s.Equal(http.StatusTooManyRequests, w.Code)
	body := s.decode(w)
	s.Equal(false, body["accepted"])
	s.NotContains(body, "code")

	w = s.do(http.MethodGet, "/sessions/cs101/codes/bob", "", "")
	s.Equal(float64(otp.MissingTTL), s.decode(w)["ttl_seconds"])
}

func (s *AuthoritySuite) TestIssueBatch() {
	w := s.do(http.MethodPost, "/sessions/cs101/codes", `{"identity_ids":["alice","bob","alice"]}`, "prof")
	s.Require().Equal(http.StatusCreated, w.Code)
	codes := s.decode(w)["codes"].(map[string]any)
	s.Len(codes, 2)

	w = s.do(http.MethodPost, "/sessions/cs101/codes", `{"identity_ids":[]}`, "prof")
	testutil.AssertError(s.T(), w, http.StatusBadRequest, "invalid_input")
}

func (s *AuthoritySuite) TestEnrollment() {
	shots := `{"name":"Alice","shots":[{"embedding":[1,0,0]},{"embedding":[0.99,0.1,0]},{"embedding":[0.98,0,0.1]}]}`

	w := s.do(http.MethodPut, "/identities/alice/enrollment", shots, "prof")
	s.Require().Equal(http.StatusCreated, w.Code)
	s.Equal("enrolled", s.decode(w)["outcome"])

	w = s.do(http.MethodPut, "/identities/alice/enrollment", shots, "prof")
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/identities/bob/enrollment", `{"name":"Bob","shots":[{"embedding":[0,1,0]}]}`, "prof")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("insufficient_samples", s.decode(w)["outcome"])

	w = s.do(http.MethodGet, "/index/stats", "", "prof")
	s.Equal(1.0, s.decode(w)["entries"])

	w = s.do(http.MethodDelete, "/identities/alice/enrollment", "", "prof")
	s.Equal(http.StatusNoContent, w.Code)
	w = s.do(http.MethodDelete, "/identities/alice/enrollment", "", "prof")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *AuthoritySuite) TestUnlockAndReview() {
	key := anomaly.Key{SessionID: "cs101", IdentityID: "alice"}
	for i := 0; i < 3; i++ {
		_, _, err := s.tracker.RecordFailure(s.ctx, key)
		s.Require().NoError(err)
	}

	w := s.do(http.MethodGet, "/sessions/cs101/identities/alice/strikes", "", "prof")
	s.Equal(true, s.decode(w)["locked"])

	w = s.do(http.MethodPost, "/sessions/cs101/identities/alice/unlock", "", "")
	testutil.AssertError(s.T(), w, http.StatusUnauthorized, "unauthorized")

	w = s.do(http.MethodPost, "/sessions/cs101/identities/alice/unlock", "", "prof")
	s.Require().Equal(http.StatusOK, w.Code)
	rec := s.decode(w)
	s.Equal(false, rec["locked"])
	s.Equal(0.0, rec["failure_count"])

	w = s.do(http.MethodPost, "/sessions/cs101/identities/alice/unlock", "", "prof")
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/anomalies?session_id=cs101", "", "prof")
	s.Require().Equal(http.StatusOK, w.Code)
	list := s.decode(w)
	s.Equal(1.0, list["count"])
	id := list["anomalies"].([]any)[0].(map[string]any)["id"].(string)

	w = s.do(http.MethodPost, "/anomalies/"+id+"/review", "", "prof")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("prof", s.decode(w)["reviewed_by"])

	w = s.do(http.MethodPost, "/anomalies/"+id+"/review", "", "dean")
	s.Equal("prof", s.decode(w)["reviewed_by"])

	w = s.do(http.MethodGet, "/anomalies?unreviewed=true", "", "prof")
	s.Equal(0.0, s.decode(w)["count"])

	w = s.do(http.MethodGet, "/anomalies/missing", "", "prof")
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/anomalies", "", "prof")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/anomalies?identity_id=alice&limit=x", "", "prof")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *AuthoritySuite) TestAttendanceSummary() {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, rec := range []*attendance.Record{
		{ID: "r1", SessionID: "cs101", IdentityID: "alice", Status: attendance.StatusVerified, RecordedAt: at},
		{ID: "r2", SessionID: "cs101", IdentityID: "bob", Status: attendance.StatusFailed, RecordedAt: at.Add(time.Minute)},
	} {
		_, err := s.records.Put(s.ctx, rec)
		s.Require().NoError(err)
	}

	w := s.do(http.MethodGet, "/sessions/cs101/attendance", "", "prof")
	s.Require().Equal(http.StatusOK, w.Code)
	summary := s.decode(w)["summary"].(map[string]any)
	s.Equal(2.0, summary["total"])
	s.Equal(0.5, summary["rate"])

	w = s.do(http.MethodGet, "/identities/carol/attendance", "", "prof")
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(s.decode(w)["records"])
}
