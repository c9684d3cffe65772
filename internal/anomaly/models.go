package anomaly

import (
	"context"
	"time"

	dErrors "rollcall/pkg/domain-errors"
)

// Key scopes a strike record to one identity within one session.
type Key struct {
	SessionID  string
	IdentityID string
}

func (k Key) validate() error {
	if k.SessionID == "" || k.IdentityID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session id and identity id are required")
	}
	return nil
}

type LockReason string

const (
	LockReasonStrikes LockReason = "strike_threshold"
	LockReasonProxy   LockReason = "proxy_attempt"
)

// StrikeRecord is the lock state machine for one Key. A record that was never
// written is unlocked with zero failures.
type StrikeRecord struct {
	SessionID    string     `json:"session_id"`
	IdentityID   string     `json:"identity_id"`
	FailureCount int        `json:"failure_count"`
	Locked       bool       `json:"locked"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	LockReason   LockReason `json:"lock_reason,omitempty"`
	UnlockedBy   string     `json:"unlocked_by,omitempty"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func NewStrikeRecord(key Key) *StrikeRecord {
	return &StrikeRecord{SessionID: key.SessionID, IdentityID: key.IdentityID}
}

func (r *StrikeRecord) Key() Key {
	return Key{SessionID: r.SessionID, IdentityID: r.IdentityID}
}

// RegisterFailure counts one failure and locks the record when the count
// reaches threshold. It reports whether this call caused the lock.
func (r *StrikeRecord) RegisterFailure(threshold int, now time.Time) bool {
	r.FailureCount++
	r.UpdatedAt = now
	if r.Locked || r.FailureCount < threshold {
		return false
	}
	r.lock(LockReasonStrikes, now)
	return true
}

// Lock locks the record immediately. It reports false when already locked.
func (r *StrikeRecord) Lock(reason LockReason, now time.Time) bool {
	r.UpdatedAt = now
	if r.Locked {
		return false
	}
	r.lock(reason, now)
	return true
}

func (r *StrikeRecord) lock(reason LockReason, now time.Time) {
	r.Locked = true
	r.LockedAt = &now
	r.LockReason = reason
}

// Unlock clears the lock and the failure count on behalf of an authority.
func (r *StrikeRecord) Unlock(authorityID string, now time.Time) error {
	if !r.Locked {
		return dErrors.New(dErrors.CodeInvalidState, "identity is not locked for this session")
	}
	r.Locked = false
	r.FailureCount = 0
	r.UnlockedBy = authorityID
	r.UnlockedAt = &now
	r.UpdatedAt = now
	return nil
}

// ResetFailures zeroes the counter and leaves the lock untouched.
func (r *StrikeRecord) ResetFailures(now time.Time) {
	r.FailureCount = 0
	r.UpdatedAt = now
}

type Type string

const (
	TypeSessionLocked      Type = "session_locked"
	TypeIdentityMismatch   Type = "identity_mismatch"
	TypeProxyAttempt       Type = "proxy_attempt"
	TypeVerificationFailed Type = "verification_failed"
)

// Record is one append-only anomaly log entry. Only the review fields ever
// change after creation.
type Record struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identity_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Type       Type       `json:"type"`
	Reason     string     `json:"reason"`
	Confidence *float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Reviewed   bool       `json:"reviewed"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// MarkReviewed records the first review. Later calls keep the original
// reviewer and time.
func (r *Record) MarkReviewed(reviewerID string, now time.Time) bool {
	if r.Reviewed {
		return false
	}
	r.Reviewed = true
	r.ReviewedBy = reviewerID
	r.ReviewedAt = &now
	return true
}

// Entry is the input to LogAnomaly.
type Entry struct {
	IdentityID string
	SessionID  string
	Type       Type
	Reason     string
	Confidence *float64
}

// Filter selects anomaly records, newest first. Empty fields do not filter.
type Filter struct {
	IdentityID     string
	SessionID      string
	UnreviewedOnly bool
	Limit          int
}

// Store persists strike records and anomalies. UpdateStrikes must run fn
// atomically per key: no other update for the same key may interleave
// between reading the record and writing fn's result. A missing record is
// passed to fn as a fresh unlocked record. If fn returns an error nothing is
// written.
type Store interface {
	GetStrikes(ctx context.Context, key Key) (*StrikeRecord, error)
	UpdateStrikes(ctx context.Context, key Key, fn func(*StrikeRecord) error) (*StrikeRecord, error)

	AppendAnomaly(ctx context.Context, record *Record) error
	GetAnomaly(ctx context.Context, id string) (*Record, error)
	UpdateAnomaly(ctx context.Context, id string, fn func(*Record) error) (*Record, error)
	ListAnomalies(ctx context.Context, filter Filter) ([]*Record, error)
}
