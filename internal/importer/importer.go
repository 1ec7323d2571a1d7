package importer

import (
	"context"
	"fmt"

	"priceimporter/internal/record"
	"priceimporter/internal/storage"
)

// Importer orchestrates dimension resolution and the fact upsert for one
// composite record.
type Importer struct {
	Repo   storage.Repository
	Schema Schema
}

func New(repo storage.Repository, schema Schema) *Importer {
	return &Importer{Repo: repo, Schema: schema}
}

// EnsureSchema creates the warehouse tables and sequences if needed.
// Idempotent; safe to run on every launch.
func (imp *Importer) EnsureSchema(ctx context.Context) error {
	if err := imp.Repo.EnsureTables(ctx, imp.Schema.Tables()); err != nil {
		return err
	}
	return imp.Repo.EnsureSequences(ctx, imp.Schema.Sequences())
}

// ImportRecord imports one record in its own transaction and returns the fact
// id. Validation failures abort before a transaction is opened; any backend
// error rolls the transaction back so no partial dimensional writes persist.
func (imp *Importer) ImportRecord(ctx context.Context, rec record.Composite) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	tx, err := imp.Repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	factID, err := imp.ImportRecordTx(ctx, tx, rec)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return factID, nil
}

// ImportRecordTx imports one record inside a caller-owned transaction (the
// batch driver's chunk). The caller commits or rolls back.
func (imp *Importer) ImportRecordTx(ctx context.Context, tx storage.Tx, rec record.Composite) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	regionID, err := resolveDimension(ctx, tx, imp.Schema.Region, []any{rec.Region})
	if err != nil {
		return 0, err
	}
	periodID, err := resolveDimension(ctx, tx, imp.Schema.Period, []any{rec.Period})
	if err != nil {
		return 0, err
	}
	dt := rec.DateTime
	dateTimeID, err := resolveDimension(ctx, tx, imp.Schema.DateTime, []any{
		dt.Year, dt.MonthOfYear, dt.DayOfMonth, dt.HourOfDay, dt.MinuteOfHour,
	})
	if err != nil {
		return 0, err
	}

	return upsertFact(ctx, tx, imp.Schema.Fact, regionID, periodID, dateTimeID, rec.RPR, rec.TotalDemand)
}
