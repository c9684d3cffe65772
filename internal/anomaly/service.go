package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"rollcall/internal/notify"
	"rollcall/internal/platform/metrics"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/audit"
	"rollcall/pkg/platform/middleware/requesttime"
	"rollcall/pkg/platform/sentinel"
)

const (
	DefaultThreshold = 3

	defaultIdentityLimit   = 50
	defaultUnreviewedLimit = 100
)

// Tracker owns the strike state machine and the anomaly log.
type Tracker struct {
	store     Store
	threshold int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher notify.Publisher
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithThreshold sets how many failures lock a key. Values below 1 are ignored.
func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n >= 1 {
			t.threshold = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(t *Tracker) {
		t.publisher = p
	}
}

func New(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("anomaly store is required")
	}
	t := &Tracker{
		store:     store,
		threshold: DefaultThreshold,
		publisher: notify.Nop{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tracker) Threshold() int {
	return t.threshold
}

// Strikes returns the record for key, or a fresh unlocked one.
func (t *Tracker) Strikes(ctx context.Context, key Key) (*StrikeRecord, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	rec, err := t.store.GetStrikes(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return NewStrikeRecord(key), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get strike record")
	}
	return rec, nil
}

func (t *Tracker) IsLocked(ctx context.Context, key Key) (bool, error) {
	rec, err := t.Strikes(ctx, key)
	if err != nil {
		return false, err
	}
	return rec.Locked, nil
}

// RecordFailure counts a failed attempt. The call that crosses the threshold
// locks the key and logs the session_locked anomaly; concurrent callers never
// both see the crossing.
func (t *Tracker) RecordFailure(ctx context.Context, key Key) (*StrikeRecord, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}
	now := requesttime.Now(ctx)
	var crossed bool
	rec, err := t.store.UpdateStrikes(ctx, key, func(r *StrikeRecord) error {
		crossed = r.RegisterFailure(t.threshold, now)
		return nil
	})
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record failure")
	}
	if crossed {
		t.onLocked(ctx, rec, fmt.Sprintf("%d failed verification attempts", rec.FailureCount))
		if _, err := t.LogAnomaly(ctx, Entry{
			IdentityID: key.IdentityID,
			SessionID:  key.SessionID,
			Type:       TypeSessionLocked,
			Reason:     fmt.Sprintf("locked after %d failed attempts", rec.FailureCount),
		}); err != nil {
			return rec, true, err
		}
	}
	return rec, crossed, nil
}

// RecordSuccess resets the failure counter. The lock state is unchanged.
// Records are created by failures only, so a key with no record or no
// failures is left untouched.
func (t *Tracker) RecordSuccess(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	current, err := t.store.GetStrikes(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to get strike record")
	}
	if current.FailureCount == 0 {
		return nil
	}

	now := requesttime.Now(ctx)
	if _, err := t.store.UpdateStrikes(ctx, key, func(r *StrikeRecord) error {
		r.ResetFailures(now)
		return nil
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset failures")
	}
	return nil
}

// LockNow hard-locks key regardless of the counter. It reports whether this
// call changed the state. Unlike a threshold crossing it logs no
// session_locked anomaly; the caller records the anomaly that caused it.
func (t *Tracker) LockNow(ctx context.Context, key Key, reason LockReason, detail string) (*StrikeRecord, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}
	now := requesttime.Now(ctx)
	var locked bool
	rec, err := t.store.UpdateStrikes(ctx, key, func(r *StrikeRecord) error {
		locked = r.Lock(reason, now)
		return nil
	})
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock identity")
	}
	if locked {
		t.onLocked(ctx, rec, detail)
	}
	return rec, locked, nil
}

// Unlock clears a lock on behalf of authorityID. Unlocking a key that is not
// locked is an InvalidState error and changes nothing.
func (t *Tracker) Unlock(ctx context.Context, key Key, authorityID string) (*StrikeRecord, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	if authorityID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authority id is required to unlock")
	}
	now := requesttime.Now(ctx)
	rec, err := t.store.UpdateStrikes(ctx, key, func(r *StrikeRecord) error {
		return r.Unlock(authorityID, now)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unlock identity")
	}

	audit.Log(ctx, t.logger, audit.EventIdentityUnlocked,
		"session_id", key.SessionID,
		"identity_id", key.IdentityID,
		"unlocked_by", authorityID,
	)
	return rec, nil
}

// LogAnomaly appends an anomaly record and alerts observers.
func (t *Tracker) LogAnomaly(ctx context.Context, e Entry) (*Record, error) {
	if e.Type == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "anomaly type is required")
	}
	rec := &Record{
		ID:         uuid.NewString(),
		IdentityID: e.IdentityID,
		SessionID:  e.SessionID,
		Type:       e.Type,
		Reason:     e.Reason,
		Confidence: e.Confidence,
		CreatedAt:  requesttime.Now(ctx),
	}
	if err := t.store.AppendAnomaly(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to log anomaly")
	}

	t.metrics.IncrementAnomaly(string(e.Type))
	audit.Log(ctx, t.logger, audit.EventAnomalyLogged,
		"anomaly_id", rec.ID,
		"type", string(rec.Type),
		"session_id", rec.SessionID,
		"identity_id", rec.IdentityID,
		"reason", rec.Reason,
	)
	t.publisher.Publish(ctx, notify.NewEvent(ctx, notify.EventAnomalyAlert, rec.SessionID, rec.IdentityID, rec))
	return rec, nil
}

// MarkReviewed is idempotent: reviewing twice keeps the first reviewer.
func (t *Tracker) MarkReviewed(ctx context.Context, anomalyID, reviewerID string) (*Record, error) {
	if reviewerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer id is required")
	}
	now := requesttime.Now(ctx)
	var changed bool
	rec, err := t.store.UpdateAnomaly(ctx, anomalyID, func(r *Record) error {
		changed = r.MarkReviewed(reviewerID, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "anomaly not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark anomaly reviewed")
	}
	if changed {
		audit.Log(ctx, t.logger, audit.EventAnomalyReviewed,
			"anomaly_id", anomalyID,
			"reviewed_by", reviewerID,
		)
	}
	return rec, nil
}

func (t *Tracker) Get(ctx context.Context, anomalyID string) (*Record, error) {
	rec, err := t.store.GetAnomaly(ctx, anomalyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "anomaly not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get anomaly")
	}
	return rec, nil
}

// ListByIdentity returns the newest anomalies for an identity, 50 by default.
func (t *Tracker) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultIdentityLimit
	}
	return t.list(ctx, Filter{IdentityID: identityID, Limit: limit})
}

// ListBySession returns every anomaly in a session, newest first.
func (t *Tracker) ListBySession(ctx context.Context, sessionID string) ([]*Record, error) {
	return t.list(ctx, Filter{SessionID: sessionID})
}

// ListUnreviewed returns the newest unreviewed anomalies, 100 by default.
func (t *Tracker) ListUnreviewed(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultUnreviewedLimit
	}
	return t.list(ctx, Filter{UnreviewedOnly: true, Limit: limit})
}

func (t *Tracker) list(ctx context.Context, f Filter) ([]*Record, error) {
	recs, err := t.store.ListAnomalies(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list anomalies")
	}
	return recs, nil
}

func (t *Tracker) onLocked(ctx context.Context, rec *StrikeRecord, detail string) {
	t.metrics.IncrementLockout(string(rec.LockReason))
	audit.Log(ctx, t.logger, audit.EventIdentityLocked,
		"session_id", rec.SessionID,
		"identity_id", rec.IdentityID,
		"reason", string(rec.LockReason),
		"failure_count", rec.FailureCount,
		"detail", detail,
	)
}
