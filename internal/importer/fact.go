package importer

import (
	"context"
	"errors"
	"fmt"

	"priceimporter/internal/storage"
)

// ErrConcurrentUpdate reports that two importers raced on the same fact
// triple. The chunk should be rolled back and retried.
var ErrConcurrentUpdate = errors.New("importer: concurrent update of fact row")

// upsertFact inserts or updates the fact row keyed by the dimension id triple
// and returns its id.
//
// The steady state of repeated daily imports is overwrite, so this is
// read-then-write rather than blind insert: measures are updated in place
// when the triple exists. Concurrent importers of the same triple are not
// supported; the unique index on the triple is the safety net and a violation
// surfaces ErrConcurrentUpdate for the caller to retry.
func upsertFact(ctx context.Context, tx storage.Tx, f Fact, regionID, periodID, dateTimeID int64, rpr, totalDemand float64) (int64, error) {
	keyValues := []any{regionID, periodID, dateTimeID}

	id, found, err := tx.SelectID(ctx, f.Table, factKeyColumns, keyValues)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", f.Table, err)
	}
	if found {
		err := tx.Update(ctx, f.Table,
			[]string{"total_demand", "rpr"}, []any{totalDemand, rpr},
			[]string{"id"}, []any{id})
		if err != nil {
			return 0, fmt.Errorf("update %s: %w", f.Table, err)
		}
		return id, nil
	}

	id, err = tx.NextSequence(ctx, f.Sequence)
	if err != nil {
		return 0, err
	}
	err = tx.Insert(ctx, f.Table,
		[]string{"id", "total_demand", "rpr", "region_id", "period_id", "date_time_id"},
		[]any{id, totalDemand, rpr, regionID, periodID, dateTimeID})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
		}
		return 0, fmt.Errorf("insert %s: %w", f.Table, err)
	}
	return id, nil
}
