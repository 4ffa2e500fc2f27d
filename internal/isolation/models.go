package isolation

import (
	"time"

	id "profilevault/pkg/domain"
)

// Operation names the data-plane verbs the policy allow-lists.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationDelete Operation = "delete"
	OperationQuery  Operation = "query"
)

// Restriction is an extra requirement attached to an allowed operation.
type Restriction string

const (
	RestrictionMFA           Restriction = "mfa_required"
	RestrictionTrustedDevice Restriction = "trusted_device"
)

// OperationRule allow-lists one operation over a set of collections, with
// optional restrictions that must hold at evaluation time.
type OperationRule struct {
	Operation    Operation           `json:"operation"`
	Collections  []id.CollectionName `json:"collections,omitempty"`
	Restrictions []Restriction       `json:"restrictions,omitempty"`
}

// Policy is a profile's isolation ruleset. The operation rules are derived
// from the security level and regenerated whenever it changes; access
// controls accrete through admin overrides and share grants.
//
// AllowCrossProfileAccess is false unless an administrator explicitly
// overrides it; the override itself is audited by the caller. The flag
// gates wildcard-resource controls only; resource-scoped controls installed
// by share grants stand on their own.
type Policy struct {
	ProfileID               id.ProfileID     `json:"profile_id"`
	SecurityLevel           id.SecurityLevel `json:"security_level"`
	AllowCrossProfileAccess bool             `json:"allow_cross_profile_access"`
	EncryptionRequired      bool             `json:"encryption_required"`
	DataRetentionDays       int              `json:"data_retention_days"`
	Rules                   []OperationRule  `json:"rules"`
	AccessControls          []AccessControl  `json:"access_controls,omitempty"`
	CreatedAt               time.Time        `json:"created_at"`
}

// AccessControl grants cross-profile permissions on one resource, guarded by
// conditions that must all hold. An empty Grantee admits any requester;
// share grants pin it to the recipient.
type AccessControl struct {
	Grantee     id.ProfileID `json:"grantee,omitempty"`
	Resource    string       `json:"resource"`
	Permissions []Operation  `json:"permissions"`
	Conditions  []Condition  `json:"conditions,omitempty"`
}

// AccessRecord is one entry in a boundary's rolling access log.
type AccessRecord struct {
	Time      time.Time    `json:"time"`
	Requester id.ProfileID `json:"requester"`
	Operation Operation    `json:"operation"`
	Resource  string       `json:"resource"`
	Allowed   bool         `json:"allowed"`
}

// CollectionStats counts a collection's items and how many are encrypted.
type CollectionStats struct {
	Items     int `json:"items"`
	Encrypted int `json:"encrypted"`
}

// accessLogCapacity bounds a boundary's rolling access log.
const accessLogCapacity = 100

// Boundary is the runtime view of a profile's isolation state: per-collection
// counts, the recent access pattern, and the last computed integrity score.
type Boundary struct {
	ProfileID      id.ProfileID               `json:"profile_id"`
	Collections    map[string]CollectionStats `json:"collections"`
	IsolationScore float64                    `json:"isolation_score"`
	VerifiedAt     time.Time                  `json:"verified_at"`

	accessLog []AccessRecord
	logHead   int
	logCount  int
}

func newBoundary(profileID id.ProfileID) *Boundary {
	return &Boundary{
		ProfileID:   profileID,
		Collections: make(map[string]CollectionStats),
		accessLog:   make([]AccessRecord, accessLogCapacity),
	}
}

// recordAccess appends to the rolling log, overwriting the oldest entry once
// the log is full.
func (b *Boundary) recordAccess(record AccessRecord) {
	b.accessLog[b.logHead] = record
	b.logHead = (b.logHead + 1) % accessLogCapacity
	if b.logCount < accessLogCapacity {
		b.logCount++
	}
}

// AccessLog returns the logged accesses, oldest first.
func (b *Boundary) AccessLog() []AccessRecord {
	out := make([]AccessRecord, 0, b.logCount)
	start := b.logHead - b.logCount
	if start < 0 {
		start += accessLogCapacity
	}
	for i := 0; i < b.logCount; i++ {
		out = append(out, b.accessLog[(start+i)%accessLogCapacity])
	}
	return out
}
