package biometric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rollcall/internal/platform/metrics"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/audit"
	"rollcall/pkg/platform/middleware/requesttime"
	"rollcall/pkg/platform/sentinel"
)

// EnrollmentConfig holds the multi-shot enrollment policy.
type EnrollmentConfig struct {
	MinShots           int
	DuplicateThreshold float64
	ConsistencyAverage float64
	ConsistencyMinimum float64
}

func DefaultEnrollmentConfig() EnrollmentConfig {
	return EnrollmentConfig{
		MinShots:           3,
		DuplicateThreshold: 0.90,
		ConsistencyAverage: 0.7,
		ConsistencyMinimum: 0.5,
	}
}

// Enroller builds centroid enrollments from several shots and keeps the store
// and the index in step. Enrollments are serialized so two near-identical
// faces cannot both pass the duplicate check.
type Enroller struct {
	store     Store
	index     Index
	extractor Extractor
	config    EnrollmentConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu sync.Mutex
}

type EnrollerOption func(*Enroller)

func WithEnrollerLogger(logger *slog.Logger) EnrollerOption {
	return func(e *Enroller) {
		e.logger = logger
	}
}

func WithEnrollmentConfig(cfg EnrollmentConfig) EnrollerOption {
	return func(e *Enroller) {
		e.config = cfg
	}
}

func WithEnrollerMetrics(m *metrics.Metrics) EnrollerOption {
	return func(e *Enroller) {
		e.metrics = m
	}
}

func NewEnroller(store Store, index Index, extractor Extractor, opts ...EnrollerOption) (*Enroller, error) {
	if store == nil {
		return nil, errors.New("enrollment store is required")
	}
	if index == nil {
		return nil, errors.New("vector index is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	e := &Enroller{
		store:     store,
		index:     index,
		extractor: extractor,
		config:    DefaultEnrollmentConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enroll extracts every shot, discards those failing the quality gate and
// stores the normalized mean of the rest.
func (e *Enroller) Enroll(ctx context.Context, identityID, name string, shots []Sample) (*EnrollmentResult, error) {
	if identityID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}

	result := &EnrollmentResult{Shots: make([]ShotReport, 0, len(shots))}
	vectors := make([][]float64, 0, len(shots))
	for i, shot := range shots {
		ex, err := e.extractor.Extract(ctx, shot)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "embedding extraction failed")
		}
		result.Shots = append(result.Shots, ShotReport{Index: i, Status: ex.Status, Reason: ex.Reason})
		if ex.OK() {
			vectors = append(vectors, ex.Vector)
		}
	}
	result.ValidShots = len(vectors)

	if len(vectors) < e.config.MinShots {
		result.Outcome = OutcomeInsufficientSamples
		result.Message = fmt.Sprintf("%d valid shots, at least %d required", len(vectors), e.config.MinShots)
		return e.reject(ctx, identityID, result), nil
	}

	consistency := MeasureConsistency(vectors)
	result.Consistency = &consistency
	if consistency.Average < e.config.ConsistencyAverage {
		result.Outcome = OutcomeInconsistentSamples
		result.Message = fmt.Sprintf("low consistency (average %.2f), captures too different", consistency.Average)
		return e.reject(ctx, identityID, result), nil
	}
	if consistency.Minimum < e.config.ConsistencyMinimum {
		result.Outcome = OutcomeInconsistentSamples
		result.Message = fmt.Sprintf("outlier shot detected (minimum %.2f), re-capture needed", consistency.Minimum)
		return e.reject(ctx, identityID, result), nil
	}

	centroid, err := Centroid(vectors)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.Get(ctx, identityID); err == nil {
		result.Outcome = OutcomeAlreadyEnrolled
		result.Message = "identity is already enrolled"
		return e.reject(ctx, identityID, result), nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up enrollment")
	}

	dup, err := e.index.CheckDuplicate(centroid, e.config.DuplicateThreshold)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		result.Outcome = OutcomeDuplicate
		result.Duplicate = dup
		result.Message = fmt.Sprintf("face already enrolled as %s (similarity %.3f)", dup.IdentityID, dup.Similarity)
		return e.reject(ctx, identityID, result), nil
	}

	enrollment := &Enrollment{
		IdentityID: identityID,
		Name:       name,
		Embedding:  centroid,
		CreatedAt:  requesttime.Now(ctx),
	}
	if err := e.store.Save(ctx, enrollment); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			result.Outcome = OutcomeAlreadyEnrolled
			result.Message = "identity is already enrolled"
			return e.reject(ctx, identityID, result), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save enrollment")
	}
	if _, err := e.index.Add(identityID, name, centroid); err != nil {
		if delErr := e.store.Delete(ctx, identityID); delErr != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "failed to roll back enrollment after index error",
				"identity_id", identityID,
				"error", delErr,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to index enrollment")
	}

	e.metrics.IncrementEnrollment(string(OutcomeEnrolled))
	e.metrics.SetIndexSize(e.index.Len())
	audit.Log(ctx, e.logger, audit.EventEnrollmentCreated,
		"identity_id", identityID,
		"valid_shots", result.ValidShots,
	)

	result.Outcome = OutcomeEnrolled
	result.Enrollment = enrollment
	result.Message = fmt.Sprintf("enrolled from %d shots", result.ValidShots)
	return result, nil
}

// Remove deletes an enrollment and rebuilds the index without it.
func (e *Enroller) Remove(ctx context.Context, identityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Delete(ctx, identityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "enrollment not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete enrollment")
	}
	e.index.Remove(identityID)
	e.metrics.SetIndexSize(e.index.Len())
	audit.Log(ctx, e.logger, audit.EventEnrollmentRemoved, "identity_id", identityID)
	return nil
}

// Identify runs a global nearest-neighbour search. Verification never uses it;
// it binds decisions to the claimed identity instead.
func (e *Enroller) Identify(ctx context.Context, sample Sample, k int) ([]SearchResult, error) {
	ex, err := e.extractor.Extract(ctx, sample)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "embedding extraction failed")
	}
	if !ex.OK() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, ex.Reason)
	}
	return e.index.Search(ex.Vector, k)
}

func (e *Enroller) Stats() Stats {
	return e.index.Stats()
}

func (e *Enroller) reject(ctx context.Context, identityID string, r *EnrollmentResult) *EnrollmentResult {
	e.metrics.IncrementEnrollment(string(r.Outcome))
	audit.Log(ctx, e.logger, audit.EventEnrollmentRejected,
		"identity_id", identityID,
		"outcome", string(r.Outcome),
		"reason", r.Message,
	)
	return r
}

// Warm rebuilds index from every stored enrollment. Call it once at startup.
func Warm(ctx context.Context, store Store, index Index) (int, error) {
	all, err := store.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list enrollments")
	}
	entries := make([]Entry, 0, len(all))
	for _, en := range all {
		entries = append(entries, Entry{IdentityID: en.IdentityID, Name: en.Name, Vector: en.Embedding})
	}
	if err := index.Rebuild(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
