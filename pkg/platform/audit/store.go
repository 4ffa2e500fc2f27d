package audit

import (
	"context"

	id "profilevault/pkg/domain"
)

// Store persists audit events. Implementations must be safe for concurrent
// use; Append must never mutate the passed event.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByProfile(ctx context.Context, profileID id.ProfileID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
