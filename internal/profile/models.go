// Package profile owns the profile lifecycle: creation, switching, lock and
// unlock, key rotation, deletion, and the export/import bundle format. It is
// the only writer of the profiles collection.
package profile

import (
	"sort"
	"time"

	"profilevault/internal/encryption"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
)

// DefaultCollections is the logical collection set every profile starts with.
// The stored names are namespaced per profile; the map lives on the profile
// record so callers never build namespace strings by hand.
var DefaultCollections = []id.CollectionName{
	"transactions",
	"breakthroughs",
	"settings",
	"research",
	"documents",
}

// EncryptionConfig is derived from the security level at creation and
// regenerated when the level changes.
type EncryptionConfig struct {
	SecurityLevel id.SecurityLevel `json:"security_level"`
	Layers        int              `json:"layers"`
	Required      bool             `json:"required"`
}

// RotationSchedule tracks when profile keys were last rotated and how often
// they should be. Rotation itself is a manual operation; the schedule only
// reports overdue state.
type RotationSchedule struct {
	Every       time.Duration `json:"every"`
	LastRotated time.Time     `json:"last_rotated"`
}

// Overdue reports whether the schedule calls for a rotation at the given time.
func (r RotationSchedule) Overdue(now time.Time) bool {
	if r.Every <= 0 {
		return false
	}
	return now.Sub(r.LastRotated) >= r.Every
}

// SyncConfig gates background synchronization of a profile's collections.
type SyncConfig struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval,omitempty"`
}

// AuditConfig selects how much of a profile's activity is recorded.
type AuditConfig struct {
	Verbose   bool `json:"verbose"`
	Retention int  `json:"retention_days"`
}

// Profile is the aggregate root for one isolated tenant.
//
// Invariants:
//   - ID never contains '_' (it prefixes every namespaced collection)
//   - Collections maps logical names to their namespaced stored names
//   - Version increases by one on every persisted mutation
//   - a locked profile rejects switch, export, and key rotation
type Profile struct {
	ID             id.ProfileID      `json:"profile_id"`
	Username       string            `json:"username"`
	SecurityLevel  id.SecurityLevel  `json:"security_level"`
	Encryption     EncryptionConfig  `json:"encryption"`
	KeyRotation    RotationSchedule  `json:"key_rotation"`
	Collections    map[string]string `json:"collections"`
	Sync           SyncConfig        `json:"sync"`
	Audit          AuditConfig       `json:"audit"`
	PassphraseHash string            `json:"passphrase_hash,omitempty"`
	Created        time.Time         `json:"created"`
	LastAccessed   time.Time         `json:"last_accessed"`
	LastModified   time.Time         `json:"last_modified"`
	Version        int               `json:"version"`
	Locked         bool              `json:"is_locked"`
}

// NewProfile builds a profile with configuration derived from its security
// level. The passphrase hash is set separately by the service.
func NewProfile(profileID id.ProfileID, username string, level id.SecurityLevel, now time.Time) (*Profile, error) {
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username cannot be empty")
	}
	if len(username) > 128 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username must be 128 characters or less")
	}
	if !level.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown security level")
	}

	collections := make(map[string]string, len(DefaultCollections))
	for _, name := range DefaultCollections {
		collections[name.String()] = id.Namespaced(profileID, name)
	}

	return &Profile{
		ID:            profileID,
		Username:      username,
		SecurityLevel: level,
		Encryption:    encryptionConfigFor(level),
		KeyRotation:   rotationScheduleFor(level, now),
		Collections:   collections,
		Sync:          SyncConfig{Enabled: level < id.SensitivitySecret, Interval: time.Hour},
		Audit:         auditConfigFor(level),
		Created:       now,
		LastAccessed:  now,
		LastModified:  now,
		Version:       1,
	}, nil
}

func encryptionConfigFor(level id.SecurityLevel) EncryptionConfig {
	return EncryptionConfig{
		SecurityLevel: level,
		Layers:        len(encryption.LayersFor(level)),
		Required:      level.AtLeast(id.SensitivityConfidential),
	}
}

func rotationScheduleFor(level id.SecurityLevel, now time.Time) RotationSchedule {
	every := 90 * 24 * time.Hour
	if level.AtLeast(id.SensitivitySecret) {
		every = 30 * 24 * time.Hour
	}
	return RotationSchedule{Every: every, LastRotated: now}
}

func auditConfigFor(level id.SecurityLevel) AuditConfig {
	retention := 3 * 365
	if level.AtLeast(id.SensitivitySecret) {
		retention = 7 * 365
	}
	return AuditConfig{Verbose: level.AtLeast(id.SensitivityConfidential), Retention: retention}
}

// CanLock checks whether the profile can transition to locked.
// Use with ApplyLock in Execute callbacks.
func (p *Profile) CanLock() error {
	if p.Locked {
		return dErrors.New(dErrors.CodeInvariantViolation, "profile is already locked")
	}
	return nil
}

// ApplyLock transitions the profile to locked.
func (p *Profile) ApplyLock(now time.Time) {
	p.Locked = true
	p.touch(now)
}

// CanUnlock checks whether the profile can transition to unlocked.
func (p *Profile) CanUnlock() error {
	if !p.Locked {
		return dErrors.New(dErrors.CodeInvariantViolation, "profile is not locked")
	}
	return nil
}

// ApplyUnlock transitions the profile to unlocked.
func (p *Profile) ApplyUnlock(now time.Time) {
	p.Locked = false
	p.touch(now)
}

// MarkAccessed records a profile switch without bumping the version; access
// is not a mutation of the profile's configuration.
func (p *Profile) MarkAccessed(now time.Time) {
	p.LastAccessed = now
}

// MarkRotated records a completed key rotation.
func (p *Profile) MarkRotated(now time.Time) {
	p.KeyRotation.LastRotated = now
	p.touch(now)
}

func (p *Profile) touch(now time.Time) {
	p.LastModified = now
	p.Version++
}

// NamespacedCollections returns the stored collection names in stable order.
func (p *Profile) NamespacedCollections() []string {
	out := make([]string, 0, len(p.Collections))
	for _, namespaced := range p.Collections {
		out = append(out, namespaced)
	}
	sort.Strings(out)
	return out
}
