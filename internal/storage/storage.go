package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a repository.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Dialect must be non-empty and must match a registered backend dialect.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Dialect is empty or unsupported.
type Config struct {
	Dialect string
	DSN     string
}

// Repository is a backend-agnostic handle on the warehouse database.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the import pipeline needs. Each backend implements these
// semantics in its own idiomatic way (Postgres nextval(), SQL Server
// NEXT VALUE FOR, SQLite counter-table emulation, etc).
type Repository interface {
	// Close releases any backend resources (connections, prepared statements, etc).
	//
	// Edge cases:
	//   - Callers should treat Close as "call once" at process shutdown.
	Close()

	// EnsureTables creates tables and constraints as needed
	// ("create-if-not-exists" semantics; safe to run on every invocation).
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// EnsureSequences creates the named sequences if they do not exist.
	// On backends without native sequences this seeds the emulation state.
	EnsureSequences(ctx context.Context, sequences []string) error

	// Begin opens a transaction. The transaction checks out one connection
	// for its lifetime and returns it on Commit/Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one warehouse transaction. All row-level operations run through it so
// that a chunk of work is all-or-nothing.
type Tx interface {
	Commit(ctx context.Context) error

	// Rollback is safe to call after Commit; it is then a no-op.
	Rollback(ctx context.Context) error

	// NextSequence returns the next value of the named sequence.
	//
	// Errors:
	//   - ErrSequenceUnknown (wrapped) when the sequence does not exist.
	//   - Backend errors otherwise. Values are strictly increasing but may be
	//     sparse; gaps after rollbacks are expected.
	NextSequence(ctx context.Context, sequence string) (int64, error)

	// SelectID looks up the surrogate id of the single row whose key columns
	// match keyValues. Returns found=false when no row matches.
	SelectID(ctx context.Context, table string, keyColumns []string, keyValues []any) (id int64, found bool, err error)

	// Select returns the requested columns of all rows matching the key
	// columns. Pass empty keyColumns to select every row.
	Select(ctx context.Context, table string, columns []string, keyColumns []string, keyValues []any) ([][]any, error)

	// Insert adds one row. On a unique-constraint violation it returns an
	// error matching ErrUniqueViolation and leaves the transaction usable
	// (backends guard the statement with a savepoint), so callers can recover
	// from insert races without aborting the whole chunk.
	Insert(ctx context.Context, table string, columns []string, values []any) error

	// Update rewrites setColumns of the rows matching the key columns.
	Update(ctx context.Context, table string, setColumns []string, setValues []any, keyColumns []string, keyValues []any) error
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a dialect name (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If dialect is empty.
//   - If f is nil.
//   - If dialect is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(dialect string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if dialect == "" {
		panic("storage: Register called with empty dialect")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[dialect]; exists {
		panic(fmt.Sprintf("storage: factory already registered for dialect=%q", dialect))
	}

	factories[dialect] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Dialect is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Dialect == "" {
		return nil, fmt.Errorf("storage: missing Dialect")
	}

	mu.RLock()
	f := factories[cfg.Dialect]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.dialect=%s", cfg.Dialect)
	}
	return f(ctx, cfg)
}
