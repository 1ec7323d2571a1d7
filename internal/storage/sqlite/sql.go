package sqlite

import (
	"fmt"
	"strings"

	"priceimporter/internal/storage"
)

func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func buildSelectSQL(table string, columns []string, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	writeWhere(&b, keyColumns)
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
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")
	return b.String()
}

func buildUpdateSQL(table string, setColumns []string, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	for i, c := range setColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = ?", sqlIdent(c))
	}
	writeWhere(&b, keyColumns)
	return b.String()
}

func writeWhere(b *strings.Builder, keyColumns []string) {
	if len(keyColumns) == 0 {
		return
	}
	b.WriteString(" WHERE ")
	for i, c := range keyColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(b, "%s = ?", sqlIdent(c))
	}
}

// buildCreateSQL renders idempotent DDL for one table spec. SQLite accepts the
// portable type names as-is (type affinity does the rest).
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("sqlite: table spec missing name")
	}
	if t.PrimaryKey == "" {
		return "", fmt.Errorf("sqlite: table %s missing primary key", t.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	fmt.Fprintf(&b, "  %s bigint PRIMARY KEY", sqlIdent(t.PrimaryKey))

	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n  %s %s", sqlIdent(c.Name), c.Type)
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
			b.WriteString(sqlIdent(c))
		}
		b.WriteString(")")
	}

	b.WriteString("\n)")
	return b.String(), nil
}
