package importer

import (
	"context"
	"fmt"

	"priceimporter/internal/record"
	"priceimporter/internal/storage"
)

// resolveDimension returns the surrogate id for the row of d whose natural key
// equals keyValues, inserting the row first if it does not exist yet.
//
// Semantics:
//   - Lookup first; an existing row wins and no sequence value is consumed.
//   - On miss, allocate an id and insert.
//   - If the insert loses a race to a concurrent inserter (unique violation),
//     re-run the lookup and return the id it finds. The violation is never
//     propagated.
//
// The resolver deliberately keeps no cache: a concurrent inserter's row must
// be observable after transaction boundaries, so every call re-consults the
// database.
func resolveDimension(ctx context.Context, tx storage.Tx, d Dimension, keyValues []any) (int64, error) {
	if len(keyValues) != len(d.KeyColumns) {
		return 0, fmt.Errorf("resolve %s: got %d key values for %d columns", d.Table, len(keyValues), len(d.KeyColumns))
	}
	for i, v := range keyValues {
		if v == nil {
			return 0, &record.ValidationError{Field: d.KeyColumns[i], Reason: "must not be null"}
		}
		if s, ok := v.(string); ok && s == "" {
			return 0, &record.ValidationError{Field: d.KeyColumns[i], Reason: "must not be empty"}
		}
	}

	id, found, err := tx.SelectID(ctx, d.Table, d.KeyColumns, keyValues)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", d.Table, err)
	}
	if found {
		return id, nil
	}

	id, err = tx.NextSequence(ctx, d.Sequence)
	if err != nil {
		return 0, err
	}

	columns := append([]string{"id"}, d.KeyColumns...)
	values := append([]any{id}, keyValues...)
	err = tx.Insert(ctx, d.Table, columns, values)
	if err == nil {
		return id, nil
	}
	if !storage.IsUniqueViolation(err) {
		return 0, fmt.Errorf("insert %s: %w", d.Table, err)
	}

	// Lost an insert race: the row exists now, take its id.
	id, found, err = tx.SelectID(ctx, d.Table, d.KeyColumns, keyValues)
	if err != nil {
		return 0, fmt.Errorf("re-lookup %s: %w", d.Table, err)
	}
	if !found {
		return 0, fmt.Errorf("lookup %s after unique violation: row vanished", d.Table)
	}
	return id, nil
}
