package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// Collection is the generic local implementation of the persistence
// contract. It stores records as JSON objects inside the collection blob and
// decodes them back to T on reads.
type Collection[T any] struct {
	store   *Store
	key     string
	entity  string
	manager *realtime.Manager
}

// NewCollection creates a collection over the blob stored under key. The
// entity name is used in error messages; manager services subscriptions and
// may be nil for collections that are never watched.
func NewCollection[T any](s *Store, key, entity string, manager *realtime.Manager) *Collection[T] {
	return &Collection[T]{store: s, key: key, entity: entity, manager: manager}
}

// Create appends the record to the collection, minting an identifier if the
// record carries none, and returns the identifier.
func (c *Collection[T]) Create(_ context.Context, rec T) (string, error) {
	row, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	err = c.store.mutate(c.key, func(rows []map[string]any) ([]map[string]any, error) {
		return append(rows, row), nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the record with the given id, or (nil, nil) if absent.
func (c *Collection[T]) Get(_ context.Context, id string) (*T, error) {
	rows, err := c.store.readRows(c.key)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row["id"] == id {
			return decodeRecord[T](row)
		}
	}
	return nil, nil
}

// Update merges the patch into the stored record field by field, last write
// wins. It fails with a NotFoundError if the record is absent.
func (c *Collection[T]) Update(_ context.Context, id string, patch store.Patch) error {
	normalized, err := normalizePatch(patch)
	if err != nil {
		return err
	}
	return c.store.mutate(c.key, func(rows []map[string]any) ([]map[string]any, error) {
		for _, row := range rows {
			if row["id"] == id {
				for field, value := range normalized {
					if value == store.Null {
						value = nil
					}
					row[field] = value
				}
				return rows, nil
			}
		}
		return nil, domain.NewNotFoundError(c.entity, id)
	})
}

// Delete removes the record if present; deleting an absent record is a
// no-op.
func (c *Collection[T]) Delete(_ context.Context, id string) error {
	return c.store.mutate(c.key, func(rows []map[string]any) ([]map[string]any, error) {
		out := rows[:0]
		for _, row := range rows {
			if row["id"] != id {
				out = append(out, row)
			}
		}
		return out, nil
	})
}

// Query returns the records matching q, sorted and paginated in memory.
func (c *Collection[T]) Query(_ context.Context, q store.Query) ([]T, error) {
	rows, err := c.store.readRows(c.key)
	if err != nil {
		return nil, err
	}

	where, err := normalizePatch(q.Where)
	if err != nil {
		return nil, err
	}
	var matched []map[string]any
	for _, row := range rows {
		if matchesWhere(row, where) {
			matched = append(matched, row)
		}
	}

	if q.SortBy != "" {
		field := q.SortBy
		desc := q.Order == store.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i][field], matched[j][field]) < 0
			if desc {
				return !less
			}
			return less
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]T, 0, len(matched))
	for _, row := range matched {
		rec, err := decodeRecord[T](row)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Subscribe registers a live-update listener for the records matching
// filterKey. The local store has no push channel, so the subscription is
// serviced by polling (realtime.DefaultPollInterval) behind the same
// interface.
func (c *Collection[T]) Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error) {
	if c.manager == nil {
		return nil, fmt.Errorf("collection %s has no subscription manager", c.key)
	}
	desc := realtime.Descriptor{
		Name:    c.key + "|" + filterKey,
		Table:   c.key,
		Filter:  realtime.ParseFilter(filterKey),
		OnError: onError,
	}
	return c.manager.Subscribe(desc, handler)
}

// encodeRecord converts a typed record to its stored JSON-object form,
// turning date fields into ISO-8601 strings along the way.
func encodeRecord(rec any) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("record not serializable: %v", err))
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("record not an object: %v", err))
	}
	return row, nil
}

func decodeRecord[T any](row map[string]any) (*T, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, domain.NewTransientStorageError(err)
	}
	rec := new(T)
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, domain.NewTransientStorageError(fmt.Errorf("corrupt record: %w", err))
	}
	return rec, nil
}

// normalizePatch round-trips patch values through JSON so they compare and
// merge in the same representation the blob uses (time.Time becomes an
// ISO-8601 string, ints become float64). The store.Null sentinel survives
// untouched.
func normalizePatch(patch map[string]any) (map[string]any, error) {
	if len(patch) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(patch))
	for field, value := range patch {
		if value == store.Null {
			out[field] = store.Null
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("field %s not serializable: %v", field, err))
		}
		var normalized any
		if err := json.Unmarshal(raw, &normalized); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("field %s: %v", field, err))
		}
		out[field] = normalized
	}
	return out, nil
}

// matchesWhere evaluates equality conditions against the stored form of a
// record. store.Null matches fields that are absent or JSON null.
func matchesWhere(row map[string]any, where map[string]any) bool {
	for field, want := range where {
		got, present := row[field]
		if want == store.Null {
			if present && got != nil {
				return false
			}
			continue
		}
		if !present || got == nil {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// compareValues orders the JSON scalar forms: numbers numerically, strings
// lexicographically (ISO-8601 dates order correctly this way), everything
// else by formatted value. Nils sort first.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch {
			case sa < sb:
				return -1
			case sa > sb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
