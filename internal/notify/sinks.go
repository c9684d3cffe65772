package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// LogSink writes events as structured log lines. Used when no broker is
// configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, events []Event) error {
	if s.logger == nil {
		return nil
	}
	for _, e := range events {
		s.logger.InfoContext(ctx, "notification",
			"event_id", e.ID,
			"type", string(e.Type),
			"session_id", e.SessionID,
			"identity_id", e.IdentityID,
		)
	}
	return nil
}

// Recorder keeps every event in memory. It is both a Publisher and a Sink.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Send(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
