// Package cache provides the TTL key/value stores backing one-time codes.
package cache

import (
	"context"
	"time"
)

// Cache is the OTP cache collaborator. Implementations must treat an expired
// key exactly like a missing one.
type Cache interface {
	// Set stores value under key, replacing any existing value and TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value and true, or "" and false when absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining lifetime and true, or 0 and false when absent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// IncrementBelow atomically increments the integer counter at key and
	// refreshes its TTL, but only while the current value is below limit. A
	// missing key counts as 0. It returns the counter after the call and
	// whether it was incremented. A value that is not a non-negative integer
	// is reported as limit and never incremented.
	IncrementBelow(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool, error)
}
