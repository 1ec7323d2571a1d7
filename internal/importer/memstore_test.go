package importer

import (
	"context"
	"fmt"

	"priceimporter/internal/storage"
)

// memRepo is an in-memory storage.Repository for unit tests. Transactions are
// copy-on-begin: Commit swaps the staged state in, Rollback drops it.
type memRepo struct {
	tables map[string]*memTable
	seqs   map[string]int64

	// beforeInsert, when set, runs before every staged insert. Tests use it to
	// inject unique violations and simulate concurrent writers. Return nil to
	// proceed with the insert.
	beforeInsert func(tx *memTx, table string) error
}

type memTable struct {
	spec storage.TableSpec
	rows []map[string]any
}

func newMemRepo() *memRepo {
	return &memRepo{
		tables: map[string]*memTable{},
		seqs:   map[string]int64{},
	}
}

func (r *memRepo) Close() {}

func (r *memRepo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if _, ok := r.tables[t.Name]; !ok {
			r.tables[t.Name] = &memTable{spec: t}
		}
	}
	return nil
}

func (r *memRepo) EnsureSequences(ctx context.Context, sequences []string) error {
	for _, s := range sequences {
		if _, ok := r.seqs[s]; !ok {
			r.seqs[s] = 0
		}
	}
	return nil
}

func (r *memRepo) Begin(ctx context.Context) (storage.Tx, error) {
	tx := &memTx{r: r, tables: map[string]*memTable{}, seqs: map[string]int64{}}
	for name, t := range r.tables {
		cp := &memTable{spec: t.spec, rows: make([]map[string]any, len(t.rows))}
		for i, row := range t.rows {
			rowCp := make(map[string]any, len(row))
			for k, v := range row {
				rowCp[k] = v
			}
			cp.rows[i] = rowCp
		}
		tx.tables[name] = cp
	}
	for name, v := range r.seqs {
		tx.seqs[name] = v
	}
	return tx, nil
}

// rows returns the committed rows of a table, for assertions.
func (r *memRepo) rows(table string) []map[string]any {
	if t, ok := r.tables[table]; ok {
		return t.rows
	}
	return nil
}

type memTx struct {
	r      *memRepo
	tables map[string]*memTable
	seqs   map[string]int64
	done   bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.done = true
	t.r.tables = t.tables
	t.r.seqs = t.seqs
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	return nil
}

func (t *memTx) NextSequence(ctx context.Context, sequence string) (int64, error) {
	if _, ok := t.seqs[sequence]; !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrSequenceUnknown, sequence)
	}
	t.seqs[sequence]++
	return t.seqs[sequence], nil
}

func (t *memTx) table(name string) (*memTable, error) {
	tab, ok := t.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return tab, nil
}

func matches(row map[string]any, keyColumns []string, keyValues []any) bool {
	for i, c := range keyColumns {
		if row[c] != keyValues[i] {
			return false
		}
	}
	return true
}

func (t *memTx) SelectID(ctx context.Context, table string, keyColumns []string, keyValues []any) (int64, bool, error) {
	tab, err := t.table(table)
	if err != nil {
		return 0, false, err
	}
	for _, row := range tab.rows {
		if matches(row, keyColumns, keyValues) {
			return row["id"].(int64), true, nil
		}
	}
	return 0, false, nil
}

func (t *memTx) Select(ctx context.Context, table string, columns []string, keyColumns []string, keyValues []any) ([][]any, error) {
	tab, err := t.table(table)
	if err != nil {
		return nil, err
	}
	var out [][]any
	for _, row := range tab.rows {
		if !matches(row, keyColumns, keyValues) {
			continue
		}
		vals := make([]any, len(columns))
		for i, c := range columns {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out, nil
}

func (t *memTx) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if hook := t.r.beforeInsert; hook != nil {
		if err := hook(t, table); err != nil {
			return err
		}
	}
	return t.insert(table, columns, values)
}

// insert bypasses the hook; the hook itself uses it to plant concurrent rows.
func (t *memTx) insert(table string, columns []string, values []any) error {
	tab, err := t.table(table)
	if err != nil {
		return err
	}
	row := make(map[string]any, len(columns))
	for i, c := range columns {
		row[c] = values[i]
	}
	for _, u := range append([][]string{{tab.spec.PrimaryKey}}, tab.spec.Unique...) {
		keyValues := make([]any, len(u))
		for i, c := range u {
			keyValues[i] = row[c]
		}
		for _, existing := range tab.rows {
			if matches(existing, u, keyValues) {
				return fmt.Errorf("%w: %s %v", storage.ErrUniqueViolation, table, u)
			}
		}
	}
	tab.rows = append(tab.rows, row)
	return nil
}

func (t *memTx) Update(ctx context.Context, table string, setColumns []string, setValues []any, keyColumns []string, keyValues []any) error {
	tab, err := t.table(table)
	if err != nil {
		return err
	}
	for _, row := range tab.rows {
		if matches(row, keyColumns, keyValues) {
			for i, c := range setColumns {
				row[c] = setValues[i]
			}
		}
	}
	return nil
}

var _ storage.Repository = (*memRepo)(nil)
var _ storage.Tx = (*memTx)(nil)
