package verification

import (
	"context"
	"sync"

	"rollcall/internal/proximity"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
)

// SessionRegistry keeps session reference data in memory. Authorities set it
// when a session opens.
type SessionRegistry struct {
	mu   sync.RWMutex
	refs map[string]proximity.Reference
}

var _ SessionDirectory = (*SessionRegistry)(nil)

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{refs: make(map[string]proximity.Reference)}
}

func (r *SessionRegistry) Reference(_ context.Context, sessionID string) (proximity.Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[sessionID]
	if !ok {
		return proximity.Reference{}, sentinel.ErrNotFound
	}
	return ref, nil
}

// Set replaces the reference of a session after validating its coordinates
// and pressure.
func (r *SessionRegistry) Set(sessionID string, ref proximity.Reference) error {
	if sessionID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "session id is required")
	}
	if ref.Location != nil && !ref.Location.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "reference location is out of range")
	}
	if ref.RadiusMeters < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "radius must not be negative")
	}
	if ref.Pressure != nil && !proximity.PlausiblePressure(*ref.Pressure) {
		return dErrors.New(dErrors.CodeInvalidInput, "reference pressure is out of range")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[sessionID] = ref
	return nil
}

func (r *SessionRegistry) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refs, sessionID)
}
