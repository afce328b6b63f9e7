package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/store"
)

// toSnakeCase converts a camelCase field name to its snake_case column name.
func toSnakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// translator converts camelCase patches and filters into column maps for one
// table, resolving foreign-key user fields and serializing JSON-object
// fields along the way.
type translator struct {
	resolver   *IdentityResolver
	userFK     map[string]bool // camelCase fields holding external user ids
	jsonFields map[string]bool // camelCase fields stored as jsonb
}

// patchColumns translates a patch for use with gorm Updates.
func (t translator) patchColumns(ctx context.Context, patch store.Patch) (map[string]any, error) {
	cols := make(map[string]any, len(patch))
	for field, value := range patch {
		col := toSnakeCase(field)
		switch {
		case value == store.Null:
			cols[col] = nil
		case t.userFK[field] && value != nil:
			external, ok := value.(string)
			if !ok {
				if p, isPtr := value.(*string); isPtr && p != nil {
					external = *p
				} else {
					return nil, domain.NewValidationError(fmt.Sprintf("field %s must be a user id", field))
				}
			}
			rowID, err := t.resolver.RowID(ctx, external)
			if err != nil {
				return nil, err
			}
			cols[col] = rowID
		case t.jsonFields[field]:
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, domain.NewValidationError(fmt.Sprintf("field %s not serializable: %v", field, err))
			}
			cols[col] = json.RawMessage(raw)
		default:
			cols[col] = value
		}
	}
	return cols, nil
}

// applyWhere translates equality conditions onto a gorm query. store.Null
// becomes an IS NULL predicate.
func (t translator) applyWhere(ctx context.Context, tx *gorm.DB, where map[string]any) (*gorm.DB, error) {
	for field, value := range where {
		col := toSnakeCase(field)
		if value == store.Null {
			tx = tx.Where(col + " IS NULL")
			continue
		}
		if t.userFK[field] {
			external, ok := value.(string)
			if !ok {
				return nil, domain.NewValidationError(fmt.Sprintf("field %s must be a user id", field))
			}
			rowID, err := t.resolver.RowID(ctx, external)
			if err != nil {
				return nil, err
			}
			tx = tx.Where(col+" = ?", rowID)
			continue
		}
		tx = tx.Where(col+" = ?", value)
	}
	return tx, nil
}

// applyOrder translates sort options onto a gorm query.
func applyOrder(tx *gorm.DB, q store.Query) *gorm.DB {
	if q.SortBy != "" {
		direction := "ASC"
		if q.Order == store.Desc {
			direction = "DESC"
		}
		tx = tx.Order(toSnakeCase(q.SortBy) + " " + direction)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx
}

// translateError maps backend failures onto the shared taxonomy. Callers
// handle gorm.ErrRecordNotFound themselves where absence is meaningful.
func translateError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.NewConflictError(op)
	}
	return domain.NewTransientStorageError(fmt.Errorf("%s: %w", op, err))
}

// recordSnapshot renders a domain record as the camelCase field map carried
// on change events.
func recordSnapshot(rec any) map[string]any {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil
	}
	return row
}
