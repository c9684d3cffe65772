package verification

import (
	"context"

	"rollcall/internal/anomaly"
	"rollcall/internal/attendance"
	"rollcall/internal/biometric"
	"rollcall/internal/otp"
	"rollcall/internal/proximity"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks IdentityDirectory,CodeVerifier,StrikeTracker,AttendanceStore,SessionDirectory,LivenessDetector

// IdentityDirectory resolves a claimed identity to its enrollment. Unknown
// identities return sentinel.ErrNotFound.
type IdentityDirectory interface {
	Get(ctx context.Context, identityID string) (*biometric.Enrollment, error)
}

type CodeVerifier interface {
	Verify(ctx context.Context, sessionID, identityID, candidate string) (*otp.VerifyResult, error)
	Invalidate(ctx context.Context, sessionID, identityID string) error
}

type StrikeTracker interface {
	Strikes(ctx context.Context, key anomaly.Key) (*anomaly.StrikeRecord, error)
	RecordFailure(ctx context.Context, key anomaly.Key) (*anomaly.StrikeRecord, bool, error)
	RecordSuccess(ctx context.Context, key anomaly.Key) error
	LockNow(ctx context.Context, key anomaly.Key, reason anomaly.LockReason, detail string) (*anomaly.StrikeRecord, bool, error)
	LogAnomaly(ctx context.Context, e anomaly.Entry) (*anomaly.Record, error)
}

type AttendanceStore interface {
	Put(ctx context.Context, rec *attendance.Record) (*attendance.Record, error)
}

// SessionDirectory supplies the proximity reference of a session. Sessions
// without reference data return sentinel.ErrNotFound and skip proximity.
type SessionDirectory interface {
	Reference(ctx context.Context, sessionID string) (proximity.Reference, error)
}

// LivenessDetector is an anti-spoof capability used when a request carries no
// frames and motion samples.
type LivenessDetector interface {
	Detect(ctx context.Context, sample biometric.Sample) (passed bool, reason string, err error)
}
