package barrier

import (
	"time"

	id "profilevault/pkg/domain"
)

// Type names the enforcement dimension a barrier guards.
type Type string

const (
	TypeAccessControl  Type = "access_control"
	TypeDataEncryption Type = "data_encryption"
	TypeTemporal       Type = "temporal"
	TypeCryptographic  Type = "cryptographic"
)

// Valid reports whether the type is a known enforcement dimension.
func (t Type) Valid() bool {
	switch t {
	case TypeAccessControl, TypeDataEncryption, TypeTemporal, TypeCryptographic:
		return true
	default:
		return false
	}
}

// OperationSharedRead is the operation the data plane reports when a
// recipient reads through a granted share. The default profile barriers let
// it pass ahead of the deny-all rule; a stricter barrier can deny it by
// naming it explicitly.
const OperationSharedRead = "read_shared"

// Strength grades a barrier. Higher strengths add rules at initialization
// time; enforcement itself treats all strengths alike.
type Strength string

const (
	StrengthBasic    Strength = "basic"
	StrengthStandard Strength = "standard"
	StrengthHigh     Strength = "high"
	StrengthMilitary Strength = "military"
	StrengthQuantum  Strength = "quantum"
)

// strengthRank orders strengths for comparisons.
var strengthRank = map[Strength]int{
	StrengthBasic:    0,
	StrengthStandard: 1,
	StrengthHigh:     2,
	StrengthMilitary: 3,
	StrengthQuantum:  4,
}

// AtLeast reports whether s is at or above other.
func (s Strength) AtLeast(other Strength) bool {
	return strengthRank[s] >= strengthRank[other]
}

// Valid reports whether the strength is a known grade.
func (s Strength) Valid() bool {
	_, ok := strengthRank[s]
	return ok
}

// StrengthFor maps a profile's security level to its default barrier
// strength.
func StrengthFor(level id.SecurityLevel) Strength {
	switch level {
	case id.SensitivityTopSecret:
		return StrengthQuantum
	case id.SensitivitySecret:
		return StrengthMilitary
	case id.SensitivityConfidential:
		return StrengthHigh
	case id.SensitivityInternal:
		return StrengthStandard
	default:
		return StrengthBasic
	}
}

// RuleAction is what a matching rule does.
type RuleAction string

const (
	// ActionDeny blocks the operation and records a breach attempt. A deny
	// match short-circuits the whole enforcement pass.
	ActionDeny RuleAction = "deny"
	// ActionAudit logs the operation and lets evaluation continue.
	ActionAudit RuleAction = "audit"
	// ActionAllow settles this barrier in the operation's favor; later
	// barriers still apply.
	ActionAllow RuleAction = "allow"
)

// Valid reports whether the action is one the enforcement pass understands.
func (a RuleAction) Valid() bool {
	switch a {
	case ActionDeny, ActionAudit, ActionAllow:
		return true
	default:
		return false
	}
}

// Rule is one ordered entry in a barrier's rule list. Empty Operations means
// the rule matches every operation.
type Rule struct {
	Action      RuleAction `json:"action"`
	Operations  []string   `json:"operations,omitempty"`
	Description string     `json:"description,omitempty"`
}

// matches reports whether the rule applies to an operation.
func (r Rule) matches(operation string) bool {
	if len(r.Operations) == 0 {
		return true
	}
	for _, op := range r.Operations {
		if op == operation || op == "*" {
			return true
		}
	}
	return false
}

// Status is a barrier's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBreached Status = "breached"
)

// breachThreshold is the attempt count at which a barrier transitions to
// breached: the 10th recorded attempt flips it, the 9th leaves it active.
const breachThreshold = 10

// BreachAttempt is the append-only evidence record for a blocked operation.
type BreachAttempt struct {
	ID        string       `json:"id"`
	BarrierID id.BarrierID `json:"barrier_id"`
	Timestamp time.Time    `json:"timestamp"`
	Source    id.ProfileID `json:"source"`
	Target    id.ProfileID `json:"target"`
	Operation string       `json:"operation"`
	Evidence  []string     `json:"evidence,omitempty"`
	RiskScore int          `json:"risk_score"`
	Resolved  bool         `json:"resolved"`
}

// SecurityBarrier guards operations between a (source, target) profile pair.
// Either side may be the wildcard profile.
type SecurityBarrier struct {
	ID             id.BarrierID    `json:"id"`
	Source         id.ProfileID    `json:"source"`
	Target         id.ProfileID    `json:"target"`
	Type           Type            `json:"type"`
	Strength       Strength        `json:"strength"`
	Rules          []Rule          `json:"rules"`
	Status         Status          `json:"status"`
	BreachAttempts []BreachAttempt `json:"breach_attempts,omitempty"`
	Created        time.Time       `json:"created"`
}

// Matches reports whether the barrier guards the given pair, honoring
// wildcards on either side.
func (b *SecurityBarrier) Matches(source, target id.ProfileID) bool {
	sourceOK := b.Source == id.WildcardProfile || b.Source == source
	targetOK := b.Target == id.WildcardProfile || b.Target == target
	return sourceOK && targetOK
}

// RecordBreach appends an attempt and flips the barrier to breached once the
// attempt count reaches the threshold.
func (b *SecurityBarrier) RecordBreach(attempt BreachAttempt) {
	b.BreachAttempts = append(b.BreachAttempts, attempt)
	if len(b.BreachAttempts) >= breachThreshold {
		b.Status = StatusBreached
	}
}

// Reset restores a barrier to active and clears its recorded attempts. Only
// an administrator invokes this; there is no automatic recovery.
func (b *SecurityBarrier) Reset() {
	b.Status = StatusActive
	b.BreachAttempts = nil
}

// AccessRequest is the input to barrier enforcement and risk scoring.
type AccessRequest struct {
	Source    id.ProfileID `json:"source"`
	Target    id.ProfileID `json:"target"`
	Operation string       `json:"operation"`
	Resource  string       `json:"resource,omitempty"`
}

// Decision is the outcome of an enforcement pass.
type Decision struct {
	Allowed   bool           `json:"allowed"`
	BlockedBy id.BarrierID   `json:"blocked_by,omitempty"`
	Evidence  []string       `json:"evidence,omitempty"`
	Evaluated []id.BarrierID `json:"evaluated,omitempty"`
}

// RiskAssessment is the result of the unauthorized-access heuristics. Score
// is reported unclamped; Detected is set above 50.
type RiskAssessment struct {
	Score    int      `json:"score"`
	Detected bool     `json:"detected"`
	Factors  []string `json:"factors,omitempty"`
}

// QuarantineItem holds a suspicious request pending manual review.
type QuarantineItem struct {
	ID            string        `json:"id"`
	Request       AccessRequest `json:"request"`
	Evidence      []string      `json:"evidence,omitempty"`
	RiskScore     int           `json:"risk_score"`
	QuarantinedAt time.Time     `json:"quarantined_at"`
	Released      bool          `json:"released"`
	ReleasedAt    *time.Time    `json:"released_at,omitempty"`
	ReviewNote    string        `json:"review_note,omitempty"`
}
