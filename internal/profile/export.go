package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"profilevault/internal/keys"
	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/requestcontext"
)

const exportSaltSize = 16

// bundle is the plaintext interior of an export: the profile record plus the
// full contents of every namespaced collection.
type bundle struct {
	Profile     *Profile                   `json:"profile"`
	Collections map[string][]bundledRecord `json:"collections"`
	ExportedAt  time.Time                  `json:"exported_at"`
}

type bundledRecord struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Export is the sealed portable form of a profile. The key is PBKDF2-derived
// from a caller-supplied password with a fresh salt; the checksum covers the
// plaintext bundle and is re-verified on import before anything is restored.
type Export struct {
	ProfileID  id.ProfileID `json:"profile_id"`
	Salt       []byte       `json:"salt"`
	Nonce      []byte       `json:"nonce"`
	Ciphertext []byte       `json:"ciphertext"`
	Checksum   []byte       `json:"checksum"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Export serializes the profile with all its collection contents and seals
// the bundle with a password-derived key.
func (s *Service) Export(ctx context.Context, profileID id.ProfileID, password string) (*Export, error) {
	if password == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export password cannot be empty")
	}
	profile, err := s.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.Locked {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "profile %s is locked", profileID)
	}

	plaintext, err := s.marshalBundle(ctx, profile)
	if err != nil {
		return nil, err
	}

	salt, err := s.provider.RandomBytes(exportSaltSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivation, "could not generate export salt")
	}
	nonce, err := s.provider.RandomBytes(s.provider.NonceSize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivation, "could not generate export nonce")
	}
	key := s.provider.DeriveKey([]byte(password), salt, keys.Iterations)
	ciphertext, err := s.provider.AEADEncrypt(key, nonce, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal export bundle: %w", err)
	}

	export := &Export{
		ProfileID:  profileID,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Checksum:   s.provider.Digest(plaintext),
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}

	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityMedium,
		Action:    audit.ActionProfileExported,
		ProfileID: profileID,
		Decision:  "exported",
	})
	return export, nil
}

// Import opens an export bundle, verifies its checksum, and restores the
// profile with every collection it was exported with. Importing over an
// existing profile is a conflict.
func (s *Service) Import(ctx context.Context, export *Export, password string) (*Profile, error) {
	if export == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export bundle is required")
	}
	key := s.provider.DeriveKey([]byte(password), export.Salt, keys.Iterations)
	plaintext, err := s.provider.AEADDecrypt(key, export.Nonce, export.Ciphertext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "could not open export bundle")
	}
	if !bytes.Equal(s.provider.Digest(plaintext), export.Checksum) {
		return nil, dErrors.New(dErrors.CodeIntegrityViolation, "export bundle checksum mismatch")
	}

	var b bundle
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return nil, fmt.Errorf("decode export bundle: %w", err)
	}
	if b.Profile == nil || b.Profile.ID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export bundle has no profile")
	}

	exists, err := s.store.Exists(ctx, b.Profile.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, dErrors.Newf(dErrors.CodeConflict, "profile %s already exists", b.Profile.ID)
	}

	if err := s.store.Save(ctx, b.Profile); err != nil {
		return nil, err
	}
	for collection, records := range b.Collections {
		for _, record := range records {
			if err := s.records.Set(ctx, collection, record.ID, record.Data); err != nil {
				return nil, fmt.Errorf("restore %s/%s: %w", collection, record.ID, err)
			}
		}
	}

	s.isolation.EnsureProfile(ctx, b.Profile.ID, b.Profile.SecurityLevel, DefaultCollections)
	if _, err := s.barriers.InitializeProfileBarriers(ctx, b.Profile.ID, b.Profile.SecurityLevel); err != nil {
		return nil, fmt.Errorf("initialize barriers for %s: %w", b.Profile.ID, err)
	}

	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityMedium,
		Action:    audit.ActionProfileImported,
		ProfileID: b.Profile.ID,
		Decision:  "imported",
	})
	return b.Profile, nil
}

// snapshotBackup writes the profile's current bundle to the backup collection
// before a hard delete.
func (s *Service) snapshotBackup(ctx context.Context, profile *Profile) error {
	plaintext, err := s.marshalBundle(ctx, profile)
	if err != nil {
		return err
	}
	backupID := fmt.Sprintf("%s-%s", profile.ID, id.NewRecordID())
	if err := s.records.Set(ctx, recordstore.CollectionProfileBackups, backupID, plaintext); err != nil {
		return fmt.Errorf("store backup %s: %w", backupID, err)
	}
	return nil
}

func (s *Service) marshalBundle(ctx context.Context, profile *Profile) ([]byte, error) {
	collections, err := s.records.Collections(ctx, id.NamespacePrefix(profile.ID))
	if err != nil {
		return nil, fmt.Errorf("list collections for %s: %w", profile.ID, err)
	}

	b := bundle{
		Profile:     profile,
		Collections: make(map[string][]bundledRecord, len(collections)),
		ExportedAt:  requestcontext.Now(ctx).UTC(),
	}
	for _, collection := range collections {
		entries, err := s.records.Query(ctx, collection, nil)
		if err != nil {
			return nil, fmt.Errorf("read collection %s: %w", collection, err)
		}
		records := make([]bundledRecord, 0, len(entries))
		for _, entry := range entries {
			records = append(records, bundledRecord{ID: entry.ID, Data: entry.Data})
		}
		b.Collections[collection] = records
	}

	plaintext, err := json.Marshal(&b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return plaintext, nil
}
