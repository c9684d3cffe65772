// Package audit defines the audit trail events of the verification engine and
// the structured-log sink they are written to.
package audit

import (
	"context"
	"log/slog"

	"rollcall/pkg/requestcontext"
)

// Log writes an audit line with the event name, its category and the request
// ID when one is present. A nil logger discards the event.
func Log(ctx context.Context, logger *slog.Logger, event AuditEvent, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if authorityID := requestcontext.AuthorityID(ctx); authorityID != "" {
		attrs = append(attrs, "authority_id", authorityID)
	}
	attrs = append(attrs,
		"event", string(event),
		"category", string(event.Category()),
		"log_type", "audit",
	)
	logger.InfoContext(ctx, string(event), attrs...)
}
