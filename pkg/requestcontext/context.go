// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services and the access-condition evaluator
// consume them. Keeping the package free of net/http lets domain code import
// only what it needs.
//
// Usage in services (read values):
//
//	profileID := requestcontext.ProfileID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithMFAVerified(ctx, true)
package requestcontext

import (
	"context"
	"time"

	id "profilevault/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	profileIDKey         struct{}
	sessionIDKey         struct{}
	clientIPKey          struct{}
	userAgentKey         struct{}
	deviceFingerprintKey struct{}
	deviceTrustedKey     struct{}
	mfaVerifiedKey       struct{}
	requestIDKey         struct{}
	requestTimeKey       struct{}
)

// ProfileID retrieves the active (authenticated) profile ID from the context.
// Returns the zero value if not set.
func ProfileID(ctx context.Context) id.ProfileID {
	if profileID, ok := ctx.Value(profileIDKey{}).(id.ProfileID); ok {
		return profileID
	}
	return ""
}

// WithProfileID injects the active profile ID into the context.
func WithProfileID(ctx context.Context, profileID id.ProfileID) context.Context {
	return context.WithValue(ctx, profileIDKey{}, profileID)
}

// SessionID retrieves the profile session ID (token JTI) from the context.
func SessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return sessionID
	}
	return ""
}

// WithSessionID injects a session ID into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// DeviceFingerprint retrieves the pre-computed device fingerprint.
func DeviceFingerprint(ctx context.Context) string {
	if fp, ok := ctx.Value(deviceFingerprintKey{}).(string); ok {
		return fp
	}
	return ""
}

// WithDeviceFingerprint injects a device fingerprint into a context.
func WithDeviceFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, deviceFingerprintKey{}, fingerprint)
}

// DeviceTrusted reports whether middleware classified the requesting device as
// trusted. Input for the device_trust access condition.
func DeviceTrusted(ctx context.Context) bool {
	if trusted, ok := ctx.Value(deviceTrustedKey{}).(bool); ok {
		return trusted
	}
	return false
}

// WithDeviceTrusted marks the requesting device as trusted or not.
func WithDeviceTrusted(ctx context.Context, trusted bool) context.Context {
	return context.WithValue(ctx, deviceTrustedKey{}, trusted)
}

// MFAVerified reports whether the current session completed MFA. Input for the
// mfa_verified access condition.
func MFAVerified(ctx context.Context) bool {
	if verified, ok := ctx.Value(mfaVerifiedKey{}).(bool); ok {
		return verified
	}
	return false
}

// WithMFAVerified records the MFA state of the current session.
func WithMFAVerified(ctx context.Context, verified bool) context.Context {
	return context.WithValue(ctx, mfaVerifiedKey{}, verified)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need consistent time within a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
