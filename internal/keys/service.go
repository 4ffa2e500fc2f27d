// Package keys derives and caches per-profile symmetric keys.
//
// Every key is PBKDF2-derived from a per-profile random seed and a per-purpose
// salt. Seeds and keys live in memory only; nothing in this package ever
// touches the record store. Losing the process loses the seeds, which is the
// documented trade against key escrow.
package keys

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"profilevault/internal/cryptoprov"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
)

// Iterations is the fixed PBKDF2 iteration count. Seeds are 256-bit random
// values, so the stretch is for defense in depth rather than password
// hardening, but the count stays high so the same path is safe for
// password-derived material (export bundles).
const Iterations = 210_000

const seedSize = 32

// saltPrefix versions the derivation scheme; bump it and rotate if the scheme
// ever changes.
const saltPrefix = "profilevault:v1:"

// Key is a derived symmetric key together with its provenance. Created
// distinguishes "the seed was just minted" from "derived from an existing
// seed"; callers must treat the former as key creation, never key recovery.
type Key struct {
	Bytes   []byte
	Created bool
}

// Service derives, caches, and rotates per-profile keys.
type Service struct {
	provider cryptoprov.Provider
	logger   *slog.Logger

	mu    sync.Mutex
	seeds map[id.ProfileID][]byte
	cache map[string][]byte

	group singleflight.Group
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger for key lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(provider cryptoprov.Provider, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		logger:   slog.New(slog.DiscardHandler),
		seeds:    make(map[id.ProfileID][]byte),
		cache:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(profileID id.ProfileID, purpose Purpose) string {
	return string(profileID) + ":" + string(purpose)
}

// Derive returns the symmetric key for (profileID, purpose), deriving and
// caching it on first use. When no seed exists yet one is minted, and the
// returned Key reports Created=true.
//
// Concurrent calls for the same pair collapse into a single derivation.
func (s *Service) Derive(profileID id.ProfileID, purpose Purpose) (Key, error) {
	if profileID.IsZero() {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "profile id is required")
	}
	if !purpose.Valid() {
		return Key{}, dErrors.Newf(dErrors.CodeKeyDerivation, "unknown key purpose %q", purpose)
	}

	ck := cacheKey(profileID, purpose)

	s.mu.Lock()
	if key, ok := s.cache[ck]; ok {
		s.mu.Unlock()
		return Key{Bytes: key}, nil
	}
	s.mu.Unlock()

	result, err, _ := s.group.Do(ck, func() (any, error) {
		return s.deriveLocked(profileID, purpose)
	})
	if err != nil {
		return Key{}, err
	}
	return result.(Key), nil
}

func (s *Service) deriveLocked(profileID id.ProfileID, purpose Purpose) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.cache[cacheKey(profileID, purpose)]; ok {
		return Key{Bytes: key}, nil
	}

	seed, created := s.seeds[profileID], false
	if seed == nil {
		fresh, err := s.provider.RandomBytes(seedSize)
		if err != nil {
			return Key{}, dErrors.Wrap(err, dErrors.CodeKeyDerivation, "could not generate profile seed")
		}
		seed, created = fresh, true
		s.seeds[profileID] = seed
		s.logger.Info("profile seed created", "profile_id", profileID)
	}

	key := s.provider.DeriveKey(seed, salt(purpose), Iterations)
	if len(key) != cryptoprov.KeySize {
		return Key{}, dErrors.New(dErrors.CodeKeyDerivation, "derived key has wrong size")
	}
	s.cache[cacheKey(profileID, purpose)] = key
	return Key{Bytes: key, Created: created}, nil
}

func salt(purpose Purpose) []byte {
	return []byte(saltPrefix + string(purpose))
}

// Rotate replaces the profile's seed with a fresh random value, re-derives the
// full purpose set, and evicts every cache entry derived from the old seed.
//
// Rotation does NOT re-encrypt existing data; callers own that migration and
// must run it before the old keys fall out of reach.
func (s *Service) Rotate(profileID id.ProfileID) error {
	if profileID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "profile id is required")
	}

	fresh, err := s.provider.RandomBytes(seedSize)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeKeyDerivation, "could not generate rotation seed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, purpose := range AllPurposes {
		delete(s.cache, cacheKey(profileID, purpose))
	}
	s.seeds[profileID] = fresh
	for _, purpose := range AllPurposes {
		s.cache[cacheKey(profileID, purpose)] = s.provider.DeriveKey(fresh, salt(purpose), Iterations)
	}

	s.logger.Info("profile keys rotated", "profile_id", profileID)
	return nil
}

// Evict drops all in-memory key material for a profile. Used on profile
// deletion and lock.
func (s *Service) Evict(profileID id.ProfileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, purpose := range AllPurposes {
		delete(s.cache, cacheKey(profileID, purpose))
	}
	delete(s.seeds, profileID)
}
