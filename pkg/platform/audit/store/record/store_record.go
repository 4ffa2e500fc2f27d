// Package record persists audit events through the record store so the
// trail survives restarts whenever a durable backend is configured.
//
// All events land in the isolation-events collection. High and critical
// security events are additionally copied to the violation-alerts
// collection, which feeds the admin alert surface.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	audit "profilevault/pkg/platform/audit"
)

type Store struct {
	records recordstore.Store
}

func New(records recordstore.Store) *Store {
	return &Store{records: records}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	if err := s.records.Set(ctx, recordstore.CollectionIsolationEvents, event.ID, payload); err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}
	if event.Category == audit.CategorySecurity && isAlert(event.Severity) {
		if err := s.records.Set(ctx, recordstore.CollectionViolationAlerts, event.ID, payload); err != nil {
			return fmt.Errorf("persist violation alert: %w", err)
		}
	}
	return nil
}

func isAlert(severity audit.Severity) bool {
	return severity == audit.SeverityHigh || severity == audit.SeverityCritical
}

func (s *Store) ListByProfile(ctx context.Context, profileID id.ProfileID) ([]audit.Event, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionIsolationEvents,
		[]recordstore.Filter{{Field: "profile_id", Value: string(profileID)}})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return decodeSorted(entries)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionIsolationEvents, nil)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	events, err := decodeSorted(entries)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// ListAlerts returns the persisted violation alerts, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]audit.Event, error) {
	entries, err := s.records.Query(ctx, recordstore.CollectionViolationAlerts, nil)
	if err != nil {
		return nil, fmt.Errorf("query violation alerts: %w", err)
	}
	return decodeSorted(entries)
}

func decodeSorted(entries []recordstore.Entry) ([]audit.Event, error) {
	events := make([]audit.Event, 0, len(entries))
	for _, entry := range entries {
		var event audit.Event
		if err := json.Unmarshal(entry.Data, &event); err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", entry.ID, err)
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}
