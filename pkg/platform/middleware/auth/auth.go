package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"rollcall/pkg/requestcontext"
)

// TokenValidator validates an authority bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the claims the middleware needs from a validated token.
type Claims struct {
	AuthorityID string
	Role        string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuthority rejects requests without a valid authority bearer token and
// injects the authority ID into the request context for downstream services.
func RequireAuthority(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			if claims.AuthorityID == "" {
				writeJSONError(w, http.StatusForbidden, "forbidden", "Token does not identify an authority")
				return
			}

			ctx = requestcontext.WithAuthorityID(ctx, claims.AuthorityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
