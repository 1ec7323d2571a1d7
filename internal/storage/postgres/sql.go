package postgres

import (
	"fmt"
	"strings"

	"priceimporter/internal/storage"
)

// pgIdent quotes an identifier for Postgres.
func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// buildSelectSQL constructs a SELECT with positional placeholders.
//
// Why this exists:
//   - It is pure and deterministic, so we can unit test correctness
//     (especially placeholder numbering) without a database.
func buildSelectSQL(table string, columns []string, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	writeWhere(&b, keyColumns, 1)
	return b.String()
}

func buildInsertSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(")")
	return b.String()
}

func buildUpdateSQL(table string, setColumns []string, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	p := 1
	for i, c := range setColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = $%d", pgIdent(c), p)
		p++
	}
	writeWhere(&b, keyColumns, p)
	return b.String()
}

func writeWhere(b *strings.Builder, keyColumns []string, firstPlaceholder int) {
	if len(keyColumns) == 0 {
		return
	}
	b.WriteString(" WHERE ")
	for i, c := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(b, "%s = $%d", pgIdent(c), firstPlaceholder+i)
	}
}

// buildCreateSQL renders idempotent DDL for one table spec.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("postgres: table spec missing name")
	}
	if t.PrimaryKey == "" {
		return "", fmt.Errorf("postgres: table %s missing primary key", t.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	fmt.Fprintf(&b, "  %s bigint PRIMARY KEY", pgIdent(t.PrimaryKey))

	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n  %s %s", pgIdent(c.Name), c.Type)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if c.References != "" {
			fmt.Fprintf(&b, " REFERENCES %s", c.References)
		}
	}

	for _, u := range t.Unique {
		b.WriteString(",\n  UNIQUE (")
		for i, c := range u {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(")")
	}

	b.WriteString("\n)")
	return b.String(), nil
}

func buildCreateSequenceSQL(name string) string {
	return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START WITH 1 INCREMENT BY 1", name)
}
