package mssql

import (
	"fmt"
	"strings"

	"priceimporter/internal/storage"
)

func msIdent(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// safeIdent validates a configuration-derived object name before it is
// interpolated into T-SQL that cannot take parameters.
func safeIdent(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("mssql: empty identifier")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return "", fmt.Errorf("mssql: invalid identifier %q", s)
		}
	}
	return msIdent(s), nil
}

func buildSelectSQL(table string, columns []string, keyColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
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
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
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
		fmt.Fprintf(&b, "%s = @p%d", msIdent(c), p)
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
		fmt.Fprintf(b, "%s = @p%d", msIdent(c), firstPlaceholder+i)
	}
}

// columnType maps the portable type names onto T-SQL spellings.
func columnType(t string) string {
	if t == "double precision" {
		return "float(53)"
	}
	return t
}

// buildCreateSQL renders idempotent DDL (guarded by OBJECT_ID) for one table spec.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("mssql: table spec missing name")
	}
	if t.PrimaryKey == "" {
		return "", fmt.Errorf("mssql: table %s missing primary key", t.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n", t.Name, t.Name)
	fmt.Fprintf(&b, "  %s bigint PRIMARY KEY", msIdent(t.PrimaryKey))

	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n  %s %s", msIdent(c.Name), columnType(c.Type))
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
			b.WriteString(msIdent(c))
		}
		b.WriteString(")")
	}

	b.WriteString("\n)")
	return b.String(), nil
}

func buildCreateSequenceSQL(name string) (string, error) {
	ident, err := safeIdent(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.sequences WHERE name = N'%s')\nCREATE SEQUENCE %s AS bigint START WITH 1 INCREMENT BY 1",
		name, ident,
	), nil
}
