// Package verification composes the code, biometric, liveness and proximity
// factors into one attendance decision per request and applies the strike
// and proxy-attempt policy to failures.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/anomaly"
	"rollcall/internal/attendance"
	"rollcall/internal/biometric"
	"rollcall/internal/notify"
	"rollcall/internal/platform/metrics"
	"rollcall/internal/proximity"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/audit"
	"rollcall/pkg/platform/middleware/requesttime"
	"rollcall/pkg/platform/sentinel"
)

type Service struct {
	identities IdentityDirectory
	extractor  biometric.Extractor
	codes      CodeVerifier
	strikes    StrikeTracker
	attendance AttendanceStore
	sessions   SessionDirectory
	liveness   LivenessDetector
	flow       proximity.OpticalFlow
	publisher  notify.Publisher
	config     func() Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = func() Config { return cfg }
	}
}

// WithConfigSource reads the policy once per request, for hot reload.
func WithConfigSource(fn func() Config) Option {
	return func(s *Service) {
		if fn != nil {
			s.config = fn
		}
	}
}

func WithSessions(d SessionDirectory) Option {
	return func(s *Service) {
		s.sessions = d
	}
}

func WithLivenessDetector(d LivenessDetector) Option {
	return func(s *Service) {
		s.liveness = d
	}
}

func WithOpticalFlow(f proximity.OpticalFlow) Option {
	return func(s *Service) {
		s.flow = f
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func New(
	identities IdentityDirectory,
	extractor biometric.Extractor,
	verifier CodeVerifier,
	strikes StrikeTracker,
	records AttendanceStore,
	opts ...Option,
) (*Service, error) {
	if identities == nil {
		return nil, errors.New("identity directory is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if verifier == nil {
		return nil, errors.New("code verifier is required")
	}
	if strikes == nil {
		return nil, errors.New("strike tracker is required")
	}
	if records == nil {
		return nil, errors.New("attendance store is required")
	}
	s := &Service{
		identities: identities,
		extractor:  extractor,
		codes:      verifier,
		strikes:    strikes,
		attendance: records,
		publisher:  notify.Nop{},
		tracer:     otel.Tracer("rollcall/verification"),
	}
	cfg := DefaultConfig()
	s.config = func() Config { return cfg }
	for _, opt := range opts {
		opt(s)
	}
	if s.flow == nil {
		s.flow = proximity.NewSparseTracker()
	}
	return s, nil
}

// Verify decides one attendance claim. Expected failures are reported in the
// Response; the error return is reserved for malformed requests.
func (s *Service) Verify(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cfg := s.config()
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "verification.Verify",
		trace.WithAttributes(
			attribute.String("session_id", req.SessionID),
			attribute.String("identity_id", req.IdentityID),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	resp := s.verify(ctx, cfg, req)
	s.metrics.ObserveVerification(string(resp.Outcome), time.Since(start))
	span.SetAttributes(
		attribute.String("outcome", string(resp.Outcome)),
		attribute.Bool("success", resp.Success),
	)
	if resp.Outcome == OutcomeInternal || resp.Outcome == OutcomeTimeout {
		span.SetStatus(codes.Error, resp.Message)
	}
	return resp, nil
}

func (s *Service) verify(ctx context.Context, cfg Config, req Request) *Response {
	key := anomaly.Key{SessionID: req.SessionID, IdentityID: req.IdentityID}

	enrollment, err := s.identities.Get(ctx, req.IdentityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return &Response{Outcome: OutcomeNotFound, Message: "identity not found"}
		}
		return s.fault(ctx, req, "identity lookup", err)
	}

	strikes, err := s.strikes.Strikes(ctx, key)
	if err != nil {
		return s.fault(ctx, req, "strike lookup", err)
	}
	if strikes.Locked {
		audit.Log(ctx, s.logger, audit.EventVerificationRejected,
			"session_id", req.SessionID,
			"identity_id", req.IdentityID,
			"lock_reason", string(strikes.LockReason),
		)
		return &Response{
			Outcome: OutcomeLocked,
			Locked:  true,
			Message: "identity is locked for this session, contact an authority",
		}
	}

	ev, err := s.evaluate(ctx, cfg, req, enrollment)
	if err != nil {
		return s.fault(ctx, req, "factor evaluation", err)
	}

	ac := biometric.AttemptContext{At: requesttime.Now(ctx), Attempts: strikes.FailureCount + 1}
	matcher := biometric.NewMatcher(cfg.Matcher, cfg.Adaptive)
	if ev.biometric.Evaluated {
		m := matcher.Classify(ev.similarity, ev.code.Valid, ac)
		ev.biometric.Match = &m
		ev.biometric.Confidence = biometric.ConfidenceScore(m.Similarity)
		ev.biometric.Message = m.Message
	}

	resp := &Response{Factors: Factors{
		Code:      ev.code,
		Biometric: ev.biometric,
		Liveness:  ev.liveness,
		Sensors:   ev.sensors,
	}}
	resp.FailedFactors = failedFactors(resp.Factors)
	for _, f := range resp.FailedFactors {
		s.metrics.IncrementFactorFailure(f)
	}

	if len(resp.FailedFactors) == 0 {
		return s.succeed(ctx, key, resp)
	}
	return s.fail(ctx, cfg, key, resp)
}

type evaluation struct {
	code       *CodeFactor
	biometric  *BiometricFactor
	similarity float64
	liveness   *LivenessFactor
	sensors    *proximity.Report
}

// evaluate runs the independent factor checks concurrently. The biometric
// tier is classified afterwards because the soft tier depends on the code.
func (s *Service) evaluate(ctx context.Context, cfg Config, req Request, enrollment *biometric.Enrollment) (*evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "verification.evaluate")
	defer span.End()

	ev := &evaluation{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := s.codes.Verify(gctx, req.SessionID, req.IdentityID, req.Code)
		if err != nil {
			return fmt.Errorf("verify code: %w", err)
		}
		ev.code = &CodeFactor{Valid: res.Valid, Expired: res.Expired, Malformed: res.Malformed, Message: res.Message}
		return nil
	})

	g.Go(func() error {
		ext, err := s.extractor.Extract(gctx, req.Sample)
		if err != nil {
			return fmt.Errorf("extract embedding: %w", err)
		}
		ev.biometric = &BiometricFactor{Extraction: ext.Status}
		if !ext.OK() {
			ev.biometric.Message = ext.Reason
			return nil
		}
		if len(ext.Vector) != len(enrollment.Embedding) {
			ev.biometric.Extraction = biometric.ExtractionInvalidImage
			ev.biometric.Message = fmt.Sprintf("embedding dimension %d does not match enrollment dimension %d",
				len(ext.Vector), len(enrollment.Embedding))
			return nil
		}
		ev.biometric.Evaluated = true
		ev.similarity = biometric.Cosine(ext.Vector, enrollment.Embedding)
		return nil
	})

	g.Go(func() error {
		lf, err := s.checkLiveness(gctx, cfg, req)
		if err != nil {
			return err
		}
		ev.liveness = lf
		return nil
	})

	g.Go(func() error {
		report, err := s.checkProximity(gctx, cfg, req)
		if err != nil {
			return err
		}
		ev.sensors = report
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "factor evaluation failed")
		return nil, err
	}
	return ev, nil
}

func (s *Service) checkLiveness(ctx context.Context, cfg Config, req Request) (*LivenessFactor, error) {
	if len(req.Frames) > 0 && len(req.Motion) > 0 {
		res, err := proximity.NewCorrelator(s.flow, cfg.Proximity).Verify(ctx, req.Frames, req.Motion)
		if err != nil {
			return nil, fmt.Errorf("motion liveness: %w", err)
		}
		return &LivenessFactor{
			Passed:    res.Passed,
			Evaluated: true,
			Method:    "motion_correlation",
			Value:     res.Value,
			Message:   res.Message,
		}, nil
	}
	if s.liveness != nil {
		passed, reason, err := s.liveness.Detect(ctx, req.Sample)
		if err != nil {
			return nil, fmt.Errorf("liveness detector: %w", err)
		}
		return &LivenessFactor{Passed: passed, Evaluated: true, Method: "detector", Message: reason}, nil
	}
	if cfg.RequireLiveness {
		return &LivenessFactor{Method: "none", Message: "liveness evidence is required"}, nil
	}
	return &LivenessFactor{Passed: true, Method: "none", Message: "liveness not evaluated"}, nil
}

func (s *Service) checkProximity(ctx context.Context, cfg Config, req Request) (*proximity.Report, error) {
	var ref proximity.Reference
	if s.sessions != nil {
		r, err := s.sessions.Reference(ctx, req.SessionID)
		switch {
		case err == nil:
			ref = r
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return nil, fmt.Errorf("session reference: %w", err)
		}
	}
	report, err := proximity.NewValidator(cfg.Proximity).Aggregate(ctx, req.Readings, ref)
	if err != nil {
		return nil, fmt.Errorf("proximity: %w", err)
	}
	return report, nil
}

func failedFactors(f Factors) []string {
	var failed []string
	if f.Code == nil || !f.Code.Valid {
		failed = append(failed, FactorCode)
	}
	if !f.Biometric.Passed() {
		failed = append(failed, FactorBiometric)
	}
	if f.Liveness == nil || !f.Liveness.Passed {
		failed = append(failed, FactorLiveness)
	}
	if f.Sensors != nil && !f.Sensors.Passed {
		failed = append(failed, FactorProximity)
	}
	return failed
}

func (s *Service) succeed(ctx context.Context, key anomaly.Key, resp *Response) *Response {
	if err := s.strikes.RecordSuccess(ctx, key); err != nil {
		return s.faultKey(ctx, key, "record success", err)
	}
	if err := s.codes.Invalidate(ctx, key.SessionID, key.IdentityID); err != nil {
		return s.faultKey(ctx, key, "invalidate code", err)
	}

	match := resp.Factors.Biometric.Match
	rec, err := s.attendance.Put(ctx, &attendance.Record{
		ID:           uuid.NewString(),
		SessionID:    key.SessionID,
		IdentityID:   key.IdentityID,
		Status:       attendance.StatusVerified,
		Confidence:   match.Similarity,
		CodeVerified: true,
		RecordedAt:   requesttime.Now(ctx),
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		resp.Outcome = OutcomeAlreadyRecorded
		resp.Message = "attendance already recorded for this session"
		if rec != nil {
			resp.AttendanceRecordID = rec.ID
		}
		return resp
	}
	if err != nil {
		return s.faultKey(ctx, key, "record attendance", err)
	}

	resp.Success = true
	resp.Outcome = OutcomeVerified
	resp.AttendanceRecordID = rec.ID
	resp.RequiresReview = match.RequiresReview
	resp.Message = fmt.Sprintf("attendance verified, %s", match.Message)

	audit.Log(ctx, s.logger, audit.EventVerificationSucceeded,
		"session_id", key.SessionID,
		"identity_id", key.IdentityID,
		"similarity", match.Similarity,
		"tier", string(match.Tier),
		"requires_review", match.RequiresReview,
	)
	s.publisher.Publish(ctx, notify.NewEvent(ctx, notify.EventAttendanceUpdate, key.SessionID, key.IdentityID, rec))
	return resp
}

// classify names the anomaly category of a failed attempt. A valid code with
// a compared but rejected face is evidence of impersonation.
func classify(resp *Response, nearMissFloor float64) (anomaly.Type, bool) {
	code, bio := resp.Factors.Code, resp.Factors.Biometric
	if code != nil && code.Valid && bio != nil && bio.Evaluated && !bio.Passed() {
		if bio.Similarity() >= nearMissFloor {
			return anomaly.TypeIdentityMismatch, false
		}
		return anomaly.TypeProxyAttempt, true
	}
	return anomaly.TypeVerificationFailed, false
}

func (s *Service) fail(ctx context.Context, cfg Config, key anomaly.Key, resp *Response) *Response {
	resp.Outcome = OutcomeFailed
	kind, proxy := classify(resp, cfg.NearMissFloor)
	resp.Anomaly = kind

	strikes, _, err := s.strikes.RecordFailure(ctx, key)
	if err != nil {
		return s.faultKey(ctx, key, "record failure", err)
	}
	if proxy {
		strikes, _, err = s.strikes.LockNow(ctx, key, anomaly.LockReasonProxy,
			fmt.Sprintf("valid code with similarity %.3f", resp.Factors.Biometric.Similarity()))
		if err != nil {
			return s.faultKey(ctx, key, "lock proxy attempt", err)
		}
	}
	resp.Locked = strikes.Locked

	entry := anomaly.Entry{
		IdentityID: key.IdentityID,
		SessionID:  key.SessionID,
		Type:       kind,
		Reason:     "failed factors: " + strings.Join(resp.FailedFactors, ", "),
	}
	if resp.Factors.Biometric.Evaluated {
		sim := resp.Factors.Biometric.Similarity()
		entry.Confidence = &sim
	}
	if _, err := s.strikes.LogAnomaly(ctx, entry); err != nil {
		return s.faultKey(ctx, key, "log anomaly", err)
	}

	rec, err := s.attendance.Put(ctx, &attendance.Record{
		ID:           uuid.NewString(),
		SessionID:    key.SessionID,
		IdentityID:   key.IdentityID,
		Status:       attendance.StatusFailed,
		Confidence:   max(0, resp.Factors.Biometric.Similarity()),
		CodeVerified: resp.Factors.Code != nil && resp.Factors.Code.Valid,
		RecordedAt:   requesttime.Now(ctx),
	})
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
	case err != nil:
		return s.faultKey(ctx, key, "record attendance", err)
	default:
		resp.AttendanceRecordID = rec.ID
		s.publisher.Publish(ctx, notify.NewEvent(ctx, notify.EventAttendanceUpdate, key.SessionID, key.IdentityID, rec))
	}

	resp.Message = failureMessage(resp)
	audit.Log(ctx, s.logger, audit.EventVerificationFailed,
		"session_id", key.SessionID,
		"identity_id", key.IdentityID,
		"failed_factors", resp.FailedFactors,
		"anomaly", string(kind),
		"locked", resp.Locked,
	)
	return resp
}

func failureMessage(resp *Response) string {
	var reasons []string
	f := resp.Factors
	if f.Code != nil && !f.Code.Valid {
		reasons = append(reasons, f.Code.Message)
	}
	if f.Biometric != nil && !f.Biometric.Passed() {
		reasons = append(reasons, f.Biometric.Message)
	}
	if f.Liveness != nil && !f.Liveness.Passed {
		reasons = append(reasons, f.Liveness.Message)
	}
	if f.Sensors != nil {
		for _, sensor := range f.Sensors.Failed {
			reasons = append(reasons, f.Sensors.Results[sensor].Message)
		}
	}
	msg := "verification failed: " + strings.Join(reasons, "; ")
	switch {
	case resp.Anomaly == anomaly.TypeProxyAttempt:
		msg += "; proxy attempt detected, identity locked for this session"
	case resp.Locked:
		msg += "; identity locked after repeated failures"
	}
	return msg
}

func (s *Service) faultKey(ctx context.Context, key anomaly.Key, step string, err error) *Response {
	return s.fault(ctx, Request{SessionID: key.SessionID, IdentityID: key.IdentityID}, step, err)
}

// fault converts a collaborator failure into a timeout or internal outcome.
// Side effects already applied are not rolled back.
func (s *Service) fault(ctx context.Context, req Request, step string, err error) *Response {
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		dErrors.HasCode(err, dErrors.CodeTimeout)
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "verification fault",
			"step", step,
			"session_id", req.SessionID,
			"identity_id", req.IdentityID,
			"timeout", timedOut,
			"error", err,
		)
	}
	if timedOut {
		return &Response{Outcome: OutcomeTimeout, Message: fmt.Sprintf("%s timed out", step)}
	}
	return &Response{Outcome: OutcomeInternal, Message: "internal error"}
}
