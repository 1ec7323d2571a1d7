// The TableSpec types live here so backend packages can consume them without
// circular imports.
package storage

// TableSpec describes one warehouse table in backend-neutral terms. Column
// types use the portable subset "bigint", "int", "double precision" and
// "varchar(n)"; backends map these to their own spellings where needed.
type TableSpec struct {
	Name       string
	PrimaryKey string // bigint primary key column
	Columns    []ColumnSpec
	Unique     [][]string
}

type ColumnSpec struct {
	Name       string
	Type       string
	Nullable   bool
	References string // "<table>(<column>)" foreign key target, optional
}
