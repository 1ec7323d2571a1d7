package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"priceimporter/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native sequences. This backend emulates them with a
//     counter table (one row per sequence name) updated via
//     UPDATE ... RETURNING. EnsureSequences seeds the counter rows.
//   - The counter lives inside the transaction, so a rolled-back chunk also
//     rolls back the counter. Gaps are therefore not guaranteed here; SQLite
//     is the embedded development/test dialect, not a multi-writer target.
type Repo struct {
	db *sql.DB
}

// sequenceTable holds the emulated sequence counters, keyed by full sequence
// name, so multiple table prefixes coexist in one database file.
const sequenceTable = "sequences"

func init() {
	storage.Register("sqlite", NewRepo)
}

func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// The record stream is single-writer; one connection avoids SQLITE_BUSY
	// and keeps ":memory:" databases stable across pool checkouts.
	db.SetMaxOpenConns(1)
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
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name text PRIMARY KEY, value bigint NOT NULL)",
		sequenceTable,
	)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sequence table: %w", err)
	}
	for _, s := range sequences {
		seed := fmt.Sprintf("INSERT OR IGNORE INTO %s (name, value) VALUES (?, 0)", sequenceTable)
		if _, err := r.db.ExecContext(ctx, seed, s); err != nil {
			return fmt.Errorf("seed sequence %s: %w", s, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &liteTx{tx: tx}, nil
}

type liteTx struct {
	tx   *sql.Tx
	done bool
}

func (t *liteTx) Commit(ctx context.Context) error {
	t.done = true
	return classify(t.tx.Commit())
}

func (t *liteTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return classify(err)
}

func (t *liteTx) NextSequence(ctx context.Context, sequence string) (int64, error) {
	q := fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE name = ? RETURNING value", sequenceTable)
	var id int64
	err := t.tx.QueryRowContext(ctx, q, sequence).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", storage.ErrSequenceUnknown, sequence)
	}
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (t *liteTx) SelectID(ctx context.Context, table string, keyColumns []string, keyValues []any) (int64, bool, error) {
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

func (t *liteTx) Select(ctx context.Context, table string, columns []string, keyColumns []string, keyValues []any) ([][]any, error) {
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

// Insert runs inside a savepoint so a unique-constraint violation leaves the
// enclosing transaction usable.
func (t *liteTx) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT ins"); err != nil {
		return classify(err)
	}
	if _, err := t.tx.ExecContext(ctx, buildInsertSQL(table, columns), values...); err != nil {
		_, _ = t.tx.ExecContext(ctx, "ROLLBACK TO ins")
		_, _ = t.tx.ExecContext(ctx, "RELEASE ins")
		return classify(err)
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE ins")
	return classify(err)
}

func (t *liteTx) Update(ctx context.Context, table string, setColumns []string, setValues []any, keyColumns []string, keyValues []any) error {
	args := make([]any, 0, len(setValues)+len(keyValues))
	args = append(args, setValues...)
	args = append(args, keyValues...)
	_, err := t.tx.ExecContext(ctx, buildUpdateSQL(table, setColumns, keyColumns), args...)
	return classify(err)
}

// classify translates driver errors into the storage package's shared kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", storage.ErrUniqueViolation, err)
		}
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return storage.MarkTransient(err)
		}
	}
	return err
}
