package barrier

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

// Store persists barriers through the record store. Execute serializes
// read-modify-write cycles per barrier so concurrent breach recordings do not
// lose updates: the per-barrier lock is held across the load, the mutation,
// and the write-back.
type Store struct {
	records recordstore.Store

	mu    sync.Mutex
	locks map[id.BarrierID]*sync.Mutex
}

func NewStore(records recordstore.Store) *Store {
	return &Store{
		records: records,
		locks:   make(map[id.BarrierID]*sync.Mutex),
	}
}

func (s *Store) lockFor(barrierID id.BarrierID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[barrierID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[barrierID] = lock
	}
	return lock
}

// Save writes a barrier unconditionally. Use Execute for mutations of an
// existing barrier.
func (s *Store) Save(ctx context.Context, barrier *SecurityBarrier) error {
	raw, err := json.Marshal(barrier)
	if err != nil {
		return fmt.Errorf("encode barrier: %w", err)
	}
	if err := s.records.Set(ctx, recordstore.CollectionBarriers, barrier.ID.String(), raw); err != nil {
		return fmt.Errorf("store barrier: %w", err)
	}
	return nil
}

// Get loads one barrier.
func (s *Store) Get(ctx context.Context, barrierID id.BarrierID) (*SecurityBarrier, error) {
	raw, err := s.records.Get(ctx, recordstore.CollectionBarriers, barrierID.String())
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return nil, fmt.Errorf("barrier %s not found: %w", barrierID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch barrier: %w", err)
	}
	var barrier SecurityBarrier
	if err := json.Unmarshal(raw, &barrier); err != nil {
		return nil, fmt.Errorf("decode barrier: %w", err)
	}
	return &barrier, nil
}

// Delete removes a barrier and forgets its lock.
func (s *Store) Delete(ctx context.Context, barrierID id.BarrierID) error {
	if err := s.records.Delete(ctx, recordstore.CollectionBarriers, barrierID.String()); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return fmt.Errorf("barrier %s not found: %w", barrierID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("delete barrier: %w", err)
	}
	s.mu.Lock()
	delete(s.locks, barrierID)
	s.mu.Unlock()
	return nil
}

// List returns all barriers, ordered by ID for determinism.
func (s *Store) List(ctx context.Context) ([]*SecurityBarrier, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionBarriers, nil)
	if err != nil {
		return nil, fmt.Errorf("query barriers: %w", err)
	}
	barriers := make([]*SecurityBarrier, 0, len(entries))
	for _, entry := range entries {
		var barrier SecurityBarrier
		if err := json.Unmarshal(entry.Data, &barrier); err != nil {
			return nil, fmt.Errorf("decode barrier %s: %w", entry.ID, err)
		}
		barriers = append(barriers, &barrier)
	}
	sort.Slice(barriers, func(i, j int) bool { return barriers[i].ID < barriers[j].ID })
	return barriers, nil
}

// ForProfile returns every barrier naming the profile as source or target,
// including wildcard barriers.
func (s *Store) ForProfile(ctx context.Context, profileID id.ProfileID) ([]*SecurityBarrier, error) {
	barriers, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*SecurityBarrier
	for _, barrier := range barriers {
		if barrier.Source == profileID || barrier.Target == profileID ||
			barrier.Source == id.WildcardProfile || barrier.Target == id.WildcardProfile {
			out = append(out, barrier)
		}
	}
	return out, nil
}

// Execute runs mutate against the barrier under its lock and writes the
// result back. Check-then-act sequences like breach counting must go through
// here.
func (s *Store) Execute(ctx context.Context, barrierID id.BarrierID, mutate func(*SecurityBarrier) error) (*SecurityBarrier, error) {
	lock := s.lockFor(barrierID)
	lock.Lock()
	defer lock.Unlock()

	barrier, err := s.Get(ctx, barrierID)
	if err != nil {
		return nil, err
	}
	if err := mutate(barrier); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, barrier); err != nil {
		return nil, err
	}
	return barrier, nil
}
