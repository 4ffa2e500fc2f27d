package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "profilevault/pkg/domain-errors"
)

// ProfileID identifies an isolated profile (tenant) inside the process. It is a
// caller-visible slug rather than a UUID because it doubles as the namespace
// prefix for every collection the profile owns.
type ProfileID string

// CollectionName is the logical (un-namespaced) name of a collection, e.g.
// "transactions". The stored collection is always <ProfileID>_<CollectionName>.
type CollectionName string

// RecordID identifies a single record within a collection.
type RecordID string

// BarrierID identifies a security barrier.
type BarrierID string

var (
	profilePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)
	collectionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// ParseProfileID validates the invariant: profile IDs are non-empty slugs and
// never contain '_', so a namespaced collection name can always be split back
// into (profile, collection) at the first underscore.
func ParseProfileID(raw string) (ProfileID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "profile id is required")
	}
	if !profilePattern.MatchString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "profile id must be a slug of letters, digits or '-'")
	}
	return ProfileID(raw), nil
}

// ParseCollectionName validates a logical collection name.
func ParseCollectionName(raw string) (CollectionName, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "collection name is required")
	}
	if !collectionPattern.MatchString(raw) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "collection name must be a slug of letters, digits, '-' or '_'")
	}
	return CollectionName(raw), nil
}

// NewRecordID generates a fresh record ID.
func NewRecordID() RecordID {
	return RecordID(uuid.NewString())
}

// NewBarrierID generates a fresh barrier ID.
func NewBarrierID() BarrierID {
	return BarrierID(uuid.NewString())
}

func (p ProfileID) String() string { return string(p) }

func (c CollectionName) String() string { return string(c) }

func (r RecordID) String() string { return string(r) }

func (b BarrierID) String() string { return string(b) }

// IsZero reports whether the ID is unset.
func (p ProfileID) IsZero() bool { return p == "" }

// WildcardProfile matches any profile in barrier source/target positions.
const WildcardProfile ProfileID = "*"

// Namespaced returns the stored collection name for a profile's logical
// collection: <profileID>_<collection>.
func Namespaced(profileID ProfileID, collection CollectionName) string {
	return string(profileID) + "_" + string(collection)
}

// NamespacePrefix returns the prefix shared by every collection a profile owns.
func NamespacePrefix(profileID ProfileID) string {
	return string(profileID) + "_"
}
