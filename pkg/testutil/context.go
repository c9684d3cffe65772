package testutil

import (
	"net/http"

	"rollcall/pkg/requestcontext"
)

// WithAuthority simulates the authority middleware for handler tests.
func WithAuthority(req *http.Request, authorityID string) *http.Request {
	return req.WithContext(requestcontext.WithAuthorityID(req.Context(), authorityID))
}
