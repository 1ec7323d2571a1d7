package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssqldb "github.com/microsoft/go-mssqldb"

	"priceimporter/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Sequence access uses the NEXT VALUE FOR spelling; sequence and table names
// come from configuration and are validated as plain identifiers before being
// interpolated (T-SQL cannot parameterise object names).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", NewRepo)
}

func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty chunked loads.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) EnsureSequences(ctx context.Context, sequences []string) error {
	for _, s := range sequences {
		ddl, err := buildCreateSequenceSQL(s)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create sequence %s: %w", s, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &msTx{tx: tx}, nil
}

type msTx struct {
	tx   *sql.Tx
	done bool
}

func (t *msTx) Commit(ctx context.Context) error {
	t.done = true
	return classify(t.tx.Commit())
}

func (t *msTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return classify(err)
}

func (t *msTx) NextSequence(ctx context.Context, sequence string) (int64, error) {
	ident, err := safeIdent(sequence)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRowContext(ctx, "SELECT NEXT VALUE FOR "+ident).Scan(&id)
	if err != nil {
		var me mssqldb.Error
		if errors.As(err, &me) && me.Number == errInvalidObjectName {
			return 0, fmt.Errorf("%w: %s", storage.ErrSequenceUnknown, sequence)
		}
		return 0, classify(err)
	}
	return id, nil
}

func (t *msTx) SelectID(ctx context.Context, table string, keyColumns []string, keyValues []any) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, buildSelectSQL(table, []string{"id"}, keyColumns), keyValues...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return id, true, nil
}

func (t *msTx) Select(ctx context.Context, table string, columns []string, keyColumns []string, keyValues []any) ([][]any, error) {
	rows, err := t.tx.QueryContext(ctx, buildSelectSQL(table, columns, keyColumns), keyValues...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Insert runs inside a savepoint (SAVE TRANSACTION) so a unique-constraint
// violation leaves the enclosing transaction usable.
func (t *msTx) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := t.tx.ExecContext(ctx, "SAVE TRANSACTION ins"); err != nil {
		return classify(err)
	}
	if _, err := t.tx.ExecContext(ctx, buildInsertSQL(table, columns), values...); err != nil {
		_, _ = t.tx.ExecContext(ctx, "ROLLBACK TRANSACTION ins")
		return classify(err)
	}
	return nil
}

func (t *msTx) Update(ctx context.Context, table string, setColumns []string, setValues []any, keyColumns []string, keyValues []any) error {
	args := make([]any, 0, len(setValues)+len(keyValues))
	args = append(args, setValues...)
	args = append(args, keyValues...)
	_, err := t.tx.ExecContext(ctx, buildUpdateSQL(table, setColumns, keyColumns), args...)
	return classify(err)
}

// SQL Server error numbers this backend cares about.
const (
	errUniqueConstraint  = 2627 // violation of UNIQUE KEY constraint
	errDuplicateKeyIndex = 2601 // duplicate key row in unique index
	errDeadlockVictim    = 1205
	errInvalidObjectName = 208
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	var me mssqldb.Error
	if errors.As(err, &me) {
		switch me.Number {
		case errUniqueConstraint, errDuplicateKeyIndex:
			return fmt.Errorf("%w: %v", storage.ErrUniqueViolation, err)
		case errDeadlockVictim:
			return storage.MarkTransient(err)
		}
	}
	return err
}
