// Package notify fans verification events out to observers. Delivery is best
// effort: publishing never blocks a request and never fails it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rollcall/pkg/platform/middleware/requesttime"
)

type EventType string

const (
	EventAttendanceUpdate EventType = "attendance_update"
	EventAnomalyAlert     EventType = "anomaly_alert"
)

// Event is one notification. SessionID is used as the partition key so a
// session's observers see its events in order.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	IdentityID string    `json:"identity_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the request time.
func NewEvent(ctx context.Context, t EventType, sessionID, identityID string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		SessionID:  sessionID,
		IdentityID: identityID,
		OccurredAt: requesttime.Now(ctx),
		Payload:    payload,
	}
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Sink delivers a batch of events to an external system.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
