package recordstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// InMemory keeps the default implementation lightweight and testable. It
// intentionally favors clarity over performance.
type InMemory struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{collections: make(map[string]map[string][]byte)}
}

func (s *InMemory) Get(_ context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.collections[collection][id]; ok {
		out := make([]byte, len(record))
		copy(out, record)
		return out, nil
	}
	return nil, ErrNotFound
}

func (s *InMemory) Set(_ context.Context, collection, id string, record []byte) error {
	stored := make([]byte, len(record))
	copy(stored, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string][]byte)
	}
	s.collections[collection][id] = stored
	return nil
}

func (s *InMemory) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *InMemory) Query(_ context.Context, collection string, filters []Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []Entry
	for id, record := range s.collections[collection] {
		if matchesFilters(record, filters) {
			out := make([]byte, len(record))
			copy(out, record)
			entries = append(entries, Entry{ID: id, Data: out})
		}
	}
	// Deterministic order keeps integrity scans and tests stable.
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *InMemory) Collections(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, records := range s.collections {
		if len(records) == 0 {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemory) DropCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// matchesFilters implements equality matching on top-level JSON fields.
// Values are compared through their JSON encoding so callers may pass
// strings, numbers, or bools without worrying about decode types.
func matchesFilters(record []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(record, &doc); err != nil {
		return false
	}
	for _, f := range filters {
		raw, ok := doc[f.Field]
		if !ok {
			return false
		}
		want, err := json.Marshal(f.Value)
		if err != nil {
			return false
		}
		if !jsonEqual(raw, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}
