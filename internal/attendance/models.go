// Package attendance holds the per-session attendance record and its stores.
// A verified record is terminal; a failed one may be replaced by a later
// attempt in the same session.
package attendance

import (
	"context"
	"time"
)

type Status string

const (
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

type Record struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	IdentityID   string    `json:"identity_id"`
	Status       Status    `json:"status"`
	Confidence   float64   `json:"confidence"`
	CodeVerified bool      `json:"code_verified"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (r *Record) Verified() bool {
	return r.Status == StatusVerified
}

// Store persists attendance records, one per (session, identity).
//
// Put writes rec unless a verified record already exists for the pair, in
// which case it returns the existing record with sentinel.ErrAlreadyUsed. An
// overwritten record keeps its original ID.
type Store interface {
	Get(ctx context.Context, sessionID, identityID string) (*Record, error)
	Put(ctx context.Context, rec *Record) (*Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Record, error)
	ListByIdentity(ctx context.Context, identityID string) ([]*Record, error)
}

// Summary counts outcomes over a set of records.
type Summary struct {
	Total    int     `json:"total"`
	Verified int     `json:"verified"`
	Failed   int     `json:"failed"`
	Rate     float64 `json:"rate"`
}

func Summarize(records []*Record) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		if r.Verified() {
			s.Verified++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.Rate = float64(s.Verified) / float64(s.Total)
	}
	return s
}
