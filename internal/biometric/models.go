package biometric

import (
	"context"
	"time"
)

// Enrollment is the stored biometric signature of one identity. Embedding is
// unit length.
type Enrollment struct {
	IdentityID string    `json:"identity_id"`
	Name       string    `json:"name"`
	Embedding  []float64 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists enrollments. Implementations return sentinel.ErrNotFound for
// unknown identities and sentinel.ErrConflict when saving over an existing one.
type Store interface {
	Save(ctx context.Context, e *Enrollment) error
	Get(ctx context.Context, identityID string) (*Enrollment, error)
	Delete(ctx context.Context, identityID string) error
	List(ctx context.Context) ([]*Enrollment, error)
}

// ExtractionStatus tags the outcome of turning a sample into an embedding.
type ExtractionStatus string

const (
	ExtractionOK           ExtractionStatus = "ok"
	ExtractionNoFace       ExtractionStatus = "no_face_detected"
	ExtractionInvalidImage ExtractionStatus = "invalid_image"
)

// Sample is a biometric capture as received from a device: either an
// embedding computed on the device, raw image bytes, or a capture-side
// failure status.
type Sample struct {
	Embedding []float64 `json:"embedding,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Extraction is the tagged result of an Extractor. Vector is only set when
// Status is ExtractionOK.
type Extraction struct {
	Status ExtractionStatus
	Vector []float64
	Reason string
}

func (e Extraction) OK() bool {
	return e.Status == ExtractionOK
}

// Extractor turns a sample into a fixed-dimension embedding. Expected
// failures are reported through Extraction.Status; the error return is
// reserved for faults such as an unreachable model server.
type Extractor interface {
	Extract(ctx context.Context, s Sample) (Extraction, error)
}

// EnrollmentOutcome names why an enrollment did or did not happen.
type EnrollmentOutcome string

const (
	OutcomeEnrolled            EnrollmentOutcome = "enrolled"
	OutcomeInsufficientSamples EnrollmentOutcome = "insufficient_samples"
	OutcomeInconsistentSamples EnrollmentOutcome = "inconsistent_samples"
	OutcomeDuplicate           EnrollmentOutcome = "duplicate_enrollment"
	OutcomeAlreadyEnrolled     EnrollmentOutcome = "already_enrolled"
)

// ShotReport records the quality gate result of one enrollment shot.
type ShotReport struct {
	Index  int              `json:"index"`
	Status ExtractionStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// EnrollmentResult is returned for every enrollment attempt.
type EnrollmentResult struct {
	Outcome     EnrollmentOutcome `json:"outcome"`
	Enrollment  *Enrollment       `json:"enrollment,omitempty"`
	ValidShots  int               `json:"valid_shots"`
	Shots       []ShotReport      `json:"shots"`
	Consistency *Consistency      `json:"consistency,omitempty"`
	Duplicate   *SearchResult     `json:"duplicate,omitempty"`
	Message     string            `json:"message"`
}

func (r *EnrollmentResult) Enrolled() bool {
	return r.Outcome == OutcomeEnrolled
}
