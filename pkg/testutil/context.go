package testutil

import (
	"net/http"

	id "profilevault/pkg/domain"
	"profilevault/pkg/requestcontext"
)

// WithProfile adds an authenticated profile ID to the request context,
// simulating what the session middleware does for authenticated requests.
func WithProfile(req *http.Request, profileID id.ProfileID) *http.Request {
	ctx := requestcontext.WithProfileID(req.Context(), profileID)
	return req.WithContext(ctx)
}

// WithSession adds both profile and session IDs to the request context.
func WithSession(req *http.Request, profileID id.ProfileID, sessionID string) *http.Request {
	ctx := requestcontext.WithProfileID(req.Context(), profileID)
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	return req.WithContext(ctx)
}

// WithClientMetadata adds client IP and User-Agent to the request context,
// bypassing the metadata middleware.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent)
	return req.WithContext(ctx)
}
