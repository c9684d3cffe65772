package otp

import (
	"strings"
	"time"
)

// MissingTTL is returned by RemainingTTL when no live code exists for the key.
// It mirrors the Redis TTL reply for a missing key.
const MissingTTL = -2

// Config holds the code lifecycle parameters.
type Config struct {
	Length          int
	TTL             time.Duration
	MaxResends      int
	BatchRetryLimit int
}

func DefaultConfig() Config {
	return Config{
		Length:          4,
		TTL:             60 * time.Second,
		MaxResends:      2,
		BatchRetryLimit: 100,
	}
}

// ResendCounterTTL outlives a single code so the budget cannot be reset by
// waiting out one code.
func (c Config) ResendCounterTTL() time.Duration {
	return 10 * c.TTL
}

// VerifyResult distinguishes a missing or expired code from a mismatch.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Expired   bool   `json:"expired"`
	Malformed bool   `json:"malformed,omitempty"`
	Message   string `json:"message"`
}

// ResendResult reports the outcome of a resend request. Code is only set when
// Accepted, for delivery to the identity; it is never serialized.
type ResendResult struct {
	Accepted  bool      `json:"accepted"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Message   string    `json:"message"`
	Code      string    `json:"-"`
}

// Issued is a freshly stored code.
type Issued struct {
	SessionID  string
	IdentityID string
	Code       string
	ExpiresAt  time.Time
}

// BatchResult maps identity IDs to their codes. Duplicates counts codes that
// collided with another code in the same batch after the retry bound.
type BatchResult struct {
	Codes      map[string]string
	ExpiresAt  time.Time
	Duplicates int
}

var keySegmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// sanitizeKeySegment percent-escapes '%' and ':' so distinct identifiers
// always map to distinct keys and none can address another key's slot.
func sanitizeKeySegment(s string) string {
	return keySegmentEscaper.Replace(s)
}

func codeKey(sessionID, identityID string) string {
	return "otp:" + sanitizeKeySegment(sessionID) + ":" + sanitizeKeySegment(identityID)
}

func resendKey(sessionID, identityID string) string {
	return "otp_resend:" + sanitizeKeySegment(sessionID) + ":" + sanitizeKeySegment(identityID)
}
