package httpserver

import (
	"net/http"
	"time"
)

// New builds the vault's HTTP server. Header and idle timeouts are set so a
// stalled client cannot pin a connection; handler-level work is bounded by
// the request context instead of a global write timeout, since export
// bundles can be large.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
