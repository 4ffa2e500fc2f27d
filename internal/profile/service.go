package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"profilevault/internal/barrier"
	"profilevault/internal/cryptoprov"
	"profilevault/internal/isolation"
	"profilevault/internal/keys"
	"profilevault/internal/platform/metrics"
	"profilevault/internal/profile/secrets"
	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/platform/sentinel"
	"profilevault/pkg/requestcontext"
)

// Service owns the profile lifecycle. Creation and deletion fan out to the
// isolation and barrier managers so a profile's policy, boundary, and default
// barriers always exist exactly as long as the profile does.
type Service struct {
	store     *Store
	records   recordstore.Store
	keys      *keys.Service
	provider  cryptoprov.Provider
	isolation *isolation.Manager
	barriers  *barrier.Manager
	audit     *audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(pub *audit.Publisher) Option {
	return func(s *Service) { s.audit = pub }
}

func NewService(store *Store, records recordstore.Store, keySvc *keys.Service, provider cryptoprov.Provider, isolationMgr *isolation.Manager, barrierMgr *barrier.Manager, opts ...Option) *Service {
	s := &Service{
		store:     store,
		records:   records,
		keys:      keySvc,
		provider:  provider,
		isolation: isolationMgr,
		barriers:  barrierMgr,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams carries everything needed to create a profile.
type CreateParams struct {
	ProfileID     string
	Username      string
	SecurityLevel id.SecurityLevel
	Passphrase    string
}

// Create validates the input, persists the profile, and initializes its
// isolation policy, boundary, and default barriers.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Profile, error) {
	profileID, err := id.ParseProfileID(params.ProfileID)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, dErrors.Newf(dErrors.CodeConflict, "profile %s already exists", profileID)
	}

	now := requestcontext.Now(ctx).UTC()
	profile, err := NewProfile(profileID, params.Username, params.SecurityLevel, now)
	if err != nil {
		return nil, err
	}
	if params.Passphrase != "" {
		hash, err := secrets.Hash(params.Passphrase)
		if err != nil {
			return nil, err
		}
		profile.PassphraseHash = hash
	}

	if err := s.store.Save(ctx, profile); err != nil {
		return nil, err
	}

	s.isolation.EnsureProfile(ctx, profileID, params.SecurityLevel, DefaultCollections)
	if _, err := s.barriers.InitializeProfileBarriers(ctx, profileID, params.SecurityLevel); err != nil {
		return nil, fmt.Errorf("initialize barriers for %s: %w", profileID, err)
	}

	if s.metrics != nil {
		s.metrics.IncProfileCreated()
	}
	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityLow,
		Action:    audit.ActionProfileCreated,
		ProfileID: profileID,
		Decision:  "created",
		Reason:    fmt.Sprintf("security level %s", params.SecurityLevel),
	})
	s.logger.InfoContext(ctx, "profile created",
		"profile_id", profileID, "security_level", params.SecurityLevel.String())
	return profile, nil
}

// Get returns a profile by ID.
func (s *Service) Get(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	profile, err := s.store.Get(ctx, profileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "profile %s not found", profileID)
		}
		return nil, err
	}
	return profile, nil
}

// List returns all profiles.
func (s *Service) List(ctx context.Context) ([]*Profile, error) {
	return s.store.List(ctx)
}

// Switch marks the profile as the active one for the caller's session.
// Locked profiles cannot be switched to; unlock first.
func (s *Service) Switch(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	now := requestcontext.Now(ctx).UTC()
	profile, err := s.store.Execute(ctx, profileID, func(p *Profile) error {
		if p.Locked {
			return dErrors.Newf(dErrors.CodeForbidden, "profile %s is locked", profileID)
		}
		p.MarkAccessed(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "profile %s not found", profileID)
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityLow,
		Action:    audit.ActionProfileSwitched,
		ProfileID: profileID,
		Decision:  "switched",
	})
	return profile, nil
}

// Lock soft-deletes the profile: its data stays put but every operation
// through Switch is refused and its key material is evicted from memory.
func (s *Service) Lock(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	now := requestcontext.Now(ctx).UTC()
	profile, err := s.store.Execute(ctx, profileID, func(p *Profile) error {
		if err := p.CanLock(); err != nil {
			return err
		}
		p.ApplyLock(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.keys.Evict(profileID)
	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityMedium,
		Action:    audit.ActionProfileLocked,
		ProfileID: profileID,
		Decision:  "locked",
	})
	return profile, nil
}

// Unlock verifies the passphrase and clears the lock. A failed verification
// is recorded as a security event before the error is returned.
func (s *Service) Unlock(ctx context.Context, profileID id.ProfileID, passphrase string) (*Profile, error) {
	now := requestcontext.Now(ctx).UTC()
	profile, err := s.store.Execute(ctx, profileID, func(p *Profile) error {
		if err := p.CanUnlock(); err != nil {
			return err
		}
		if p.PassphraseHash == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "locked profile has no passphrase")
		}
		if err := secrets.Verify(passphrase, p.PassphraseHash); err != nil {
			return err
		}
		p.ApplyUnlock(now)
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.emit(ctx, audit.Event{
				Severity:  audit.SeverityHigh,
				Action:    audit.ActionUnlockFailed,
				ProfileID: profileID,
				Decision:  "denied",
				Reason:    "passphrase verification failed",
			})
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityMedium,
		Action:    audit.ActionProfileUnlocked,
		ProfileID: profileID,
		Decision:  "unlocked",
	})
	return profile, nil
}

// RotateKeys swaps the profile's seed, re-derives the key set, and stamps the
// rotation schedule. Existing ciphertext is NOT re-encrypted; callers must
// migrate data before the old keys fall out of reach.
func (s *Service) RotateKeys(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	now := requestcontext.Now(ctx).UTC()
	profile, err := s.store.Execute(ctx, profileID, func(p *Profile) error {
		if p.Locked {
			return dErrors.Newf(dErrors.CodeForbidden, "profile %s is locked", profileID)
		}
		if err := s.keys.Rotate(profileID); err != nil {
			return err
		}
		p.MarkRotated(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityMedium,
		Action:    audit.ActionKeysRotated,
		ProfileID: profileID,
		Decision:  "rotated",
	})
	return profile, nil
}

// Delete hard-deletes a profile. The caller must re-type the profile ID as
// confirmation. A backup bundle is written first, then every namespaced
// collection is dropped, then the profile record itself; policy, boundary,
// barriers, and cached keys are torn down last.
func (s *Service) Delete(ctx context.Context, profileID id.ProfileID, confirmation string) error {
	if confirmation != profileID.String() {
		return dErrors.New(dErrors.CodeInvalidInput, "confirmation does not match profile id")
	}

	profile, err := s.Get(ctx, profileID)
	if err != nil {
		return err
	}

	if err := s.snapshotBackup(ctx, profile); err != nil {
		return fmt.Errorf("backup before delete: %w", err)
	}

	collections, err := s.records.Collections(ctx, id.NamespacePrefix(profileID))
	if err != nil {
		return fmt.Errorf("list collections for %s: %w", profileID, err)
	}
	for _, collection := range collections {
		if err := s.records.DropCollection(ctx, collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", collection, err)
		}
	}

	if err := s.store.Delete(ctx, profileID); err != nil {
		return err
	}

	s.keys.Evict(profileID)
	s.isolation.RemoveProfile(profileID)
	if err := s.barriers.RemoveProfileBarriers(ctx, profileID); err != nil {
		s.logger.ErrorContext(ctx, "barriers not fully removed",
			"profile_id", profileID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.IncProfileDeleted()
	}
	s.emit(ctx, audit.Event{
		Severity:  audit.SeverityHigh,
		Action:    audit.ActionProfileDeleted,
		ProfileID: profileID,
		Decision:  "deleted",
		Reason:    fmt.Sprintf("%d collections dropped", len(collections)),
	})
	s.logger.InfoContext(ctx, "profile deleted",
		"profile_id", profileID, "collections_dropped", len(collections))
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	s.audit.Emit(ctx, event)
}
