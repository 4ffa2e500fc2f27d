package segregation

import (
	"encoding/json"
	"time"

	id "profilevault/pkg/domain"
)

// IsolationState records which guarantees were applied when the item was
// stored.
type IsolationState struct {
	Encrypted  bool `json:"encrypted"`
	Segregated bool `json:"segregated"`
	Verified   bool `json:"verified"`
}

// ItemMetadata carries the integrity material for a stored item. Checksum is
// a digest of the stored payload; ProfileChecksum binds the payload to its
// owning namespace.
type ItemMetadata struct {
	Created         time.Time `json:"created"`
	Modified        time.Time `json:"modified"`
	Checksum        []byte    `json:"checksum"`
	ProfileChecksum []byte    `json:"profile_checksum"`
}

// IsolatedData is the persisted envelope for every item a profile stores.
// Data holds the plaintext JSON for low-sensitivity items, or the serialized
// encryption envelope when the item was encrypted.
type IsolatedData struct {
	ID        string          `json:"id"`
	ProfileID id.ProfileID    `json:"profile_id"`
	Data      json.RawMessage `json:"data"`
	Isolation IsolationState  `json:"isolation"`
	Metadata  ItemMetadata    `json:"metadata"`
}

// ViolationType classifies what a scan found wrong with a stored item.
type ViolationType string

const (
	// ViolationContamination means an item's embedded owner does not match
	// the namespace it was found in.
	ViolationContamination ViolationType = "contamination"
	// ViolationCorruption means an item's checksum no longer matches its
	// payload.
	ViolationCorruption ViolationType = "corruption"
	// ViolationExpiredShare means a data share passed its expiry without
	// being revoked.
	ViolationExpiredShare ViolationType = "expired_share"
)

// Violation is one finding from an isolation or leakage scan.
type Violation struct {
	Type       ViolationType `json:"type"`
	Collection string        `json:"collection"`
	RecordID   string        `json:"record_id"`
	Expected   id.ProfileID  `json:"expected,omitempty"`
	Found      id.ProfileID  `json:"found,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// IsolationReport summarizes a per-profile isolation scan. Score is the
// percentage of scanned items that passed both the ownership and the
// integrity check; an empty profile scores 100.
type IsolationReport struct {
	ProfileID    id.ProfileID `json:"profile_id"`
	Collections  int          `json:"collections"`
	Items        int          `json:"items"`
	Contaminated int          `json:"contaminated"`
	Corrupted    int          `json:"corrupted"`
	Score        float64      `json:"score"`
	Violations   []Violation  `json:"violations,omitempty"`
	CheckedAt    time.Time    `json:"checked_at"`
}

// LeakageReport summarizes a global scan across every profile namespace plus
// the share ledger. SecurityScore is 100 minus 10 per violation, floored at
// zero.
type LeakageReport struct {
	ProfilesScanned int         `json:"profiles_scanned"`
	ItemsScanned    int         `json:"items_scanned"`
	Violations      []Violation `json:"violations,omitempty"`
	ExpiredShares   []Share     `json:"expired_shares,omitempty"`
	SecurityScore   int         `json:"security_score"`
	Recommendations []string    `json:"recommendations,omitempty"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// Share grants one profile time-bounded read access to a single record owned
// by another profile. Shares are the only sanctioned path across the
// profile boundary and are revocable at any time.
type Share struct {
	ID         string            `json:"id"`
	Owner      id.ProfileID      `json:"owner"`
	Recipient  id.ProfileID      `json:"recipient"`
	Collection id.CollectionName `json:"collection"`
	RecordID   string            `json:"record_id"`
	Granted    time.Time         `json:"granted"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Revoked    bool              `json:"revoked"`
	RevokedAt  *time.Time        `json:"revoked_at,omitempty"`
}

// Expired reports whether the share has passed its expiry without being
// revoked.
func (s Share) Expired(now time.Time) bool {
	return !s.Revoked && now.After(s.ExpiresAt)
}

// Usable reports whether the share currently grants access.
func (s Share) Usable(now time.Time) bool {
	return !s.Revoked && !now.After(s.ExpiresAt)
}

// Resource names the shared record for policy and barrier evaluation:
// <collection>/<recordID>.
func (s Share) Resource() string {
	return s.Collection.String() + "/" + s.RecordID
}
