package verification

import (
	"time"

	"rollcall/internal/anomaly"
	"rollcall/internal/biometric"
	"rollcall/internal/proximity"
	dErrors "rollcall/pkg/domain-errors"
)

// Outcome is the decision class of one verification attempt.
type Outcome string

const (
	OutcomeVerified        Outcome = "verified"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeFailed          Outcome = "failed"
	OutcomeLocked          Outcome = "locked"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeInternal        Outcome = "internal"
)

// Factor names used in FailedFactors and metrics.
const (
	FactorCode      = "code"
	FactorBiometric = "biometric"
	FactorLiveness  = "liveness"
	FactorProximity = "proximity"
)

// Config holds the per-request policy. It is read once at the start of every
// Verify so hot-reloaded values apply to the next request.
type Config struct {
	RequestTimeout  time.Duration
	NearMissFloor   float64
	RequireLiveness bool
	Matcher         biometric.Thresholds
	Adaptive        biometric.AdaptivePolicy
	Proximity       proximity.Thresholds
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		NearMissFloor:  0.25,
		Matcher:        biometric.DefaultThresholds(),
		Adaptive:       biometric.DefaultAdaptivePolicy(),
		Proximity:      proximity.DefaultThresholds(),
	}
}

// Request is one identity claim with its evidence. Frames and Motion feed the
// motion-liveness check; Readings feed the proximity validators.
type Request struct {
	SessionID  string
	IdentityID string
	Code       string
	Sample     biometric.Sample
	Readings   proximity.Readings
	Frames     []proximity.Frame
	Motion     []proximity.MotionSample
}

func (r *Request) validate() error {
	if r.SessionID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session_id is required")
	}
	if r.IdentityID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	return nil
}

type CodeFactor struct {
	Valid     bool   `json:"valid"`
	Expired   bool   `json:"expired"`
	Malformed bool   `json:"malformed,omitempty"`
	Message   string `json:"message"`
}

type BiometricFactor struct {
	Evaluated  bool                       `json:"evaluated"`
	Extraction biometric.ExtractionStatus `json:"extraction"`
	Match      *biometric.MatchResult     `json:"match,omitempty"`
	Confidence int                        `json:"confidence"`
	Message    string                     `json:"message"`
}

// Similarity is the raw similarity, or 0 when nothing was compared.
func (b *BiometricFactor) Similarity() float64 {
	if b == nil || b.Match == nil {
		return 0
	}
	return b.Match.Similarity
}

func (b *BiometricFactor) Passed() bool {
	return b != nil && b.Match != nil && b.Match.IsMatch
}

type LivenessFactor struct {
	Passed    bool    `json:"passed"`
	Evaluated bool    `json:"evaluated"`
	Method    string  `json:"method"`
	Value     float64 `json:"value,omitempty"`
	Message   string  `json:"message"`
}

type Factors struct {
	Code      *CodeFactor       `json:"code,omitempty"`
	Biometric *BiometricFactor  `json:"biometric,omitempty"`
	Liveness  *LivenessFactor   `json:"liveness,omitempty"`
	Sensors   *proximity.Report `json:"sensors,omitempty"`
}

// Response always names the factors that drove the outcome.
type Response struct {
	Success            bool         `json:"success"`
	Outcome            Outcome      `json:"outcome"`
	Factors            Factors      `json:"factors"`
	FailedFactors      []string     `json:"failed_factors,omitempty"`
	Message            string       `json:"message"`
	AttendanceRecordID string       `json:"attendance_record_id,omitempty"`
	RequiresReview     bool         `json:"requires_review,omitempty"`
	Locked             bool         `json:"locked,omitempty"`
	Anomaly            anomaly.Type `json:"anomaly,omitempty"`
}
