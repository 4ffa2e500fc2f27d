package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"profilevault/internal/sessiontoken"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/platform/httputil"
	"profilevault/pkg/requestcontext"
)

// SessionValidator verifies a session token and returns its claims.
type SessionValidator interface {
	Validate(tokenString string) (*sessiontoken.Claims, error)
}

// RequireSession guards data-plane endpoints with a profile session token.
// On success the profile and session IDs land in the request context, so
// handlers never parse the token themselves.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session token required"))
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "session rejected",
					"request_id", requestcontext.RequestID(ctx), "error", err)
				httputil.WriteError(w, err)
				return
			}

			profileID, err := id.ParseProfileID(claims.ProfileID)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims"))
				return
			}

			ctx = requestcontext.WithProfileID(ctx, profileID)
			ctx = requestcontext.WithSessionID(ctx, claims.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
