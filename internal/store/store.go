// Package store defines the storage-agnostic persistence contract shared by
// the on-device and remote backends. Adapters own raw storage only; business
// rules live above them.
package store

import (
	"context"

	"github.com/tankerflow/booking-engine/internal/realtime"
)

// Patch is a partial record keyed by camelCase field name (the json tag
// names of the domain structs). Updates merge a patch into the stored record
// field by field, last write wins. Adapters translate the keys to their own
// column naming at the boundary.
type Patch map[string]any

// nullValue is the type of the Null sentinel.
type nullValue struct{}

// Null is a Where value matching records where the field is absent or null,
// e.g. bookings with no driver assigned.
var Null = nullValue{}

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Query describes a filtered, sorted, paginated read. Where conditions are
// equality-only, keyed by camelCase field name; a zero Limit means no limit.
type Query struct {
	Where  map[string]any
	SortBy string
	Order  Order
	Limit  int
	Offset int
}

// Collection is the per-entity persistence contract. Both backends implement
// it with identical semantics:
//
//   - Get returns (nil, nil) when the record is absent.
//   - Update fails with domain.NotFoundError when the record is absent and
//     merges the patch last-write-wins otherwise.
//   - Delete is idempotent; deleting an absent record is a no-op.
//   - Subscribe registers a live-update listener for the records matching
//     filterKey (realtime.ParseFilter syntax; empty matches the whole
//     collection) and returns an idempotent unsubscribe function. Backends
//     without native push service this by polling (see
//     realtime.DefaultPollInterval).
//
// No operation is transactional across entities; composite flows are
// sequenced by the caller.
type Collection[T any] interface {
	Create(ctx context.Context, rec T) (string, error)
	Get(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q Query) ([]T, error)
	Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error)
}
