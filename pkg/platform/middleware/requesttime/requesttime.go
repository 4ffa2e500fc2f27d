// Package requesttime pins a single "now" to each HTTP request. Every
// operation in the request sees the same timestamp, so audit events, risk
// scoring windows, and domain timestamps stay consistent.
package requesttime

import (
	"net/http"
	"time"

	"profilevault/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
