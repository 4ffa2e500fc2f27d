package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	"profilevault/pkg/platform/sentinel"
)

// Store persists profiles in the global profiles collection and serializes
// mutations per profile: Execute holds that profile's lock across the whole
// load-mutate-save cycle, so two concurrent lock/unlock/rotate calls for the
// same profile can never interleave into a lost update.
type Store struct {
	records recordstore.Store

	mu    sync.Mutex
	locks map[id.ProfileID]*sync.Mutex
}

func NewStore(records recordstore.Store) *Store {
	return &Store{
		records: records,
		locks:   make(map[id.ProfileID]*sync.Mutex),
	}
}

func (s *Store) lockFor(profileID id.ProfileID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[profileID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[profileID] = lock
	}
	return lock
}

func (s *Store) Save(ctx context.Context, profile *Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.records.Set(ctx, recordstore.CollectionProfiles, profile.ID.String(), raw); err != nil {
		return fmt.Errorf("store profile %s: %w", profile.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, profileID id.ProfileID) (*Profile, error) {
	raw, err := s.records.Get(ctx, recordstore.CollectionProfiles, profileID.String())
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, fmt.Errorf("profile %s not found: %w", profileID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch profile %s: %w", profileID, err)
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", profileID, err)
	}
	return &profile, nil
}

// Exists reports whether a profile record is present without decoding it.
func (s *Store) Exists(ctx context.Context, profileID id.ProfileID) (bool, error) {
	_, err := s.records.Get(ctx, recordstore.CollectionProfiles, profileID.String())
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("fetch profile %s: %w", profileID, err)
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, profileID id.ProfileID) error {
	if err := s.records.Delete(ctx, recordstore.CollectionProfiles, profileID.String()); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return fmt.Errorf("profile %s not found: %w", profileID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("delete profile %s: %w", profileID, err)
	}
	s.mu.Lock()
	delete(s.locks, profileID)
	s.mu.Unlock()
	return nil
}

func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionProfiles, nil)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	profiles := make([]*Profile, 0, len(entries))
	for _, entry := range entries {
		var profile Profile
		if err := json.Unmarshal(entry.Data, &profile); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", entry.ID, err)
		}
		profiles = append(profiles, &profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

// Execute runs mutate against the current profile state under that profile's
// lock and persists the result. A mutate error aborts without saving.
func (s *Store) Execute(ctx context.Context, profileID id.ProfileID, mutate func(*Profile) error) (*Profile, error) {
	lock := s.lockFor(profileID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := s.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if err := mutate(profile); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
