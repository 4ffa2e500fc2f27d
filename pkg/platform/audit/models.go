package audit

import (
	"time"

	id "profilevault/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: profile creation/deletion, export, import, key rotation.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. These feed the violation-alert trail and the optional
	// Kafka sink. Examples: cross-profile denials, integrity violations,
	// contamination, barrier breaches, quarantines.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	// Examples: data isolated/retrieved, self-access, profile switches.
	CategoryOperations EventCategory = "operations"
)

// Severity grades security events. Medium is the floor for expected-path
// denials; critical implies an invariant was threatened.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Severity  Severity      `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`

	// ProfileID is the acting profile; TargetProfile is set when the action
	// crossed (or attempted to cross) a profile boundary.
	ProfileID     id.ProfileID `json:"profile_id,omitempty"`
	TargetProfile id.ProfileID `json:"target_profile,omitempty"`

	Collection string `json:"collection,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Evidence carries free-form facts supporting the decision, e.g. the
	// matched rule or the mismatched checksum prefix.
	Evidence []string `json:"evidence,omitempty"`

	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string `json:"request_id,omitempty"`
}

// Action names an audit event.
type Action string

const (
	// Profile lifecycle
	ActionProfileCreated  Action = "profile_created"
	ActionProfileSwitched Action = "profile_switched"
	ActionProfileLocked   Action = "profile_locked"
	ActionProfileUnlocked Action = "profile_unlocked"
	ActionProfileDeleted  Action = "profile_deleted"
	ActionProfileExported Action = "profile_exported"
	ActionProfileImported Action = "profile_imported"
	ActionKeysRotated     Action = "keys_rotated"
	ActionUnlockFailed    Action = "unlock_failed"

	// Data plane
	ActionDataIsolated  Action = "data_isolated"
	ActionDataRetrieved Action = "data_retrieved"
	ActionShareGranted  Action = "share_granted"
	ActionShareRevoked  Action = "share_revoked"

	// Isolation and access control
	ActionSelfAccess         Action = "self_access"
	ActionCrossProfileDenied Action = "cross_profile_denied"
	ActionPolicyDenied       Action = "policy_denied"
	ActionPolicyOverride     Action = "policy_override"
	ActionIntegrityViolation Action = "integrity_violation"
	ActionContamination      Action = "contamination_detected"
	ActionLeakageScan        Action = "leakage_scan"
	ActionIsolationVerified  Action = "isolation_verified"

	// Barriers
	ActionBarrierCreated  Action = "barrier_created"
	ActionBarrierBlocked  Action = "barrier_blocked"
	ActionBarrierBreached Action = "barrier_breached"
	ActionBarrierReset    Action = "barrier_reset"
	ActionQuarantined     Action = "operation_quarantined"
	ActionQuarantineFreed Action = "quarantine_released"
)

// actionCategories maps each action to its category; unmapped actions default
// to operations.
var actionCategories = map[Action]EventCategory{
	ActionProfileCreated:  CategoryCompliance,
	ActionProfileDeleted:  CategoryCompliance,
	ActionProfileExported: CategoryCompliance,
	ActionProfileImported: CategoryCompliance,
	ActionKeysRotated:     CategoryCompliance,

	ActionUnlockFailed:       CategorySecurity,
	ActionCrossProfileDenied: CategorySecurity,
	ActionPolicyDenied:       CategorySecurity,
	ActionPolicyOverride:     CategorySecurity,
	ActionIntegrityViolation: CategorySecurity,
	ActionContamination:      CategorySecurity,
	ActionBarrierBlocked:     CategorySecurity,
	ActionBarrierBreached:    CategorySecurity,
	ActionBarrierReset:       CategorySecurity,
	ActionQuarantined:        CategorySecurity,
	ActionQuarantineFreed:    CategorySecurity,
}

// CategoryOf returns the category an action belongs to.
func CategoryOf(action Action) EventCategory {
	if category, ok := actionCategories[action]; ok {
		return category
	}
	return CategoryOperations
}
