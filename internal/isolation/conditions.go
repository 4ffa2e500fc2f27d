package isolation

import (
	"context"

	"profilevault/pkg/requestcontext"
)

// ConditionKind is the closed set of access-control condition types.
type ConditionKind string

const (
	ConditionTimeWindow  ConditionKind = "time_window"
	ConditionIPWhitelist ConditionKind = "ip_whitelist"
	ConditionDeviceTrust ConditionKind = "device_trust"
	ConditionMFAVerified ConditionKind = "mfa_verified"
)

// Condition is one guard on an access control. Exactly the fields for its
// kind are set; unknown kinds never evaluate true.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// time_window: hours in [StartHour, EndHour), local to the request clock.
	StartHour int `json:"start_hour,omitempty"`
	EndHour   int `json:"end_hour,omitempty"`

	// ip_whitelist
	AllowedIPs []string `json:"allowed_ips,omitempty"`
}

// Evaluate reports whether the condition holds for the current request
// context. All inputs come from request context values so handlers and tests
// control them the same way.
func (c Condition) Evaluate(ctx context.Context) bool {
	switch c.Kind {
	case ConditionTimeWindow:
		hour := requestcontext.Now(ctx).Hour()
		if c.StartHour <= c.EndHour {
			return hour >= c.StartHour && hour < c.EndHour
		}
		// Window wraps midnight.
		return hour >= c.StartHour || hour < c.EndHour
	case ConditionIPWhitelist:
		clientIP := requestcontext.ClientIP(ctx)
		if clientIP == "" {
			return false
		}
		for _, allowed := range c.AllowedIPs {
			if clientIP == allowed {
				return true
			}
		}
		return false
	case ConditionDeviceTrust:
		return requestcontext.DeviceTrusted(ctx)
	case ConditionMFAVerified:
		return requestcontext.MFAVerified(ctx)
	default:
		return false
	}
}

// evaluateAll reports whether every condition holds.
func evaluateAll(ctx context.Context, conditions []Condition) bool {
	for _, condition := range conditions {
		if !condition.Evaluate(ctx) {
			return false
		}
	}
	return true
}
