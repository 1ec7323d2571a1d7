package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"priceimporter/internal/storage"
)

// pool is the slice of *pgxpool.Pool the repository needs. It exists so unit
// tests can substitute a pgxmock pool without a live database.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Repo implements storage.Repository for Postgres on top of pgx/v5.
type Repo struct {
	pool pool
}

// NewRepo creates a Postgres-backed repository from cfg.DSN.
func NewRepo(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &Repo{pool: p}, nil
}

// NewRepoWithPool wires an existing pool (or a mock) into a repository.
func NewRepoWithPool(p pool) *Repo {
	return &Repo{pool: p}
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) EnsureSequences(ctx context.Context, sequences []string) error {
	for _, s := range sequences {
		if _, err := r.pool.Exec(ctx, buildCreateSequenceSQL(s)); err != nil {
			return fmt.Errorf("create sequence %s: %w", s, err)
		}
	}
	return nil
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return classify(err)
}

func (t *pgTx) NextSequence(ctx context.Context, sequence string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, "SELECT nextval($1)", sequence).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
			return 0, fmt.Errorf("%w: %s", storage.ErrSequenceUnknown, sequence)
		}
		return 0, classify(err)
	}
	return id, nil
}

func (t *pgTx) SelectID(ctx context.Context, table string, keyColumns []string, keyValues []any) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, buildSelectSQL(table, []string{"id"}, keyColumns), keyValues...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return id, true, nil
}

func (t *pgTx) Select(ctx context.Context, table string, columns []string, keyColumns []string, keyValues []any) ([][]any, error) {
	rows, err := t.tx.Query(ctx, buildSelectSQL(table, columns, keyColumns), keyValues...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Insert runs inside a savepoint so a unique-constraint violation does not
// poison the enclosing transaction; callers can re-query and continue.
func (t *pgTx) Insert(ctx context.Context, table string, columns []string, values []any) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	if _, err := sp.Exec(ctx, buildInsertSQL(table, columns), values...); err != nil {
		_ = sp.Rollback(ctx)
		return classify(err)
	}
	return classify(sp.Commit(ctx))
}

func (t *pgTx) Update(ctx context.Context, table string, setColumns []string, setValues []any, keyColumns []string, keyValues []any) error {
	args := make([]any, 0, len(setValues)+len(keyValues))
	args = append(args, setValues...)
	args = append(args, keyValues...)
	_, err := t.tx.Exec(ctx, buildUpdateSQL(table, setColumns, keyColumns), args...)
	return classify(err)
}

// classify translates pgx errors into the storage package's shared kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrUniqueViolation, pgErr.Message)
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgerrcode.IsConnectionException(pgErr.Code):
			return storage.MarkTransient(err)
		}
	}
	return err
}
