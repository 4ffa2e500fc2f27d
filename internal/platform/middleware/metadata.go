package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/mssola/useragent"

	"profilevault/pkg/requestcontext"
)

// Metadata extracts client IP, User-Agent, and a device fingerprint into the
// request context. The fingerprint is a digest of the UA's stable parts plus
// the client IP; the device_trust access condition compares it against
// fingerprints the profile has seen before.
//
// Bots are never trusted. Deliberately a weak signal on its own, which is why
// device_trust is only one of several access conditions.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		rawUA := r.UserAgent()
		ctx := requestcontext.WithClientMetadata(r.Context(), ip, rawUA)

		ua := useragent.New(rawUA)
		name, version := ua.Browser()
		fingerprint := deviceFingerprint(ip, ua.OS(), name, version)
		ctx = requestcontext.WithDeviceFingerprint(ctx, fingerprint)
		ctx = requestcontext.WithDeviceTrusted(ctx, !ua.Bot() && rawUA != "")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceFingerprint(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
