// Package recordstore defines the boundary to the underlying storage engine.
//
// The engine has no native tenancy concept: collections are flat, caller-named,
// and there are no transactions spanning collections. Everything the isolation
// subsystem guarantees is built on top of this contract, which is why it stays
// deliberately small.
package recordstore

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"

	pkgerrors "profilevault/pkg/platform/sentinel"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = pkgerrors.ErrNotFound

// Filter is an equality predicate on a top-level field of a stored JSON
// document. Query semantics are AND across filters.
type Filter struct {
	Field string
	Value any
}

// Entry pairs a record ID with its raw document, as returned by Query.
type Entry struct {
	ID   string
	Data []byte
}

// Store is the record-store contract. All implementations are safe for
// concurrent use; none of them provide cross-collection atomicity.
//
// Collections(prefix) and DropCollection exist for the tenancy layer: a
// profile's collections all share the <profileID>_ prefix, and profile
// deletion must be able to find and remove every one of them.
type Store interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Set(ctx context.Context, collection, id string, record []byte) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters []Filter) ([]Entry, error)
	Collections(ctx context.Context, prefix string) ([]string, error)
	DropCollection(ctx context.Context, collection string) error
}
