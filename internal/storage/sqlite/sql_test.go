package sqlite

import (
	"testing"

	"priceimporter/internal/storage"
)

func TestBuildSelectSQL(t *testing.T) {
	t.Parallel()

	got := buildSelectSQL("dw_region", []string{"id"}, []string{"region"})
	want := `SELECT "id" FROM dw_region WHERE "region" = ?`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	got := buildInsertSQL("dw_region", []string{"id", "region"})
	want := `INSERT INTO dw_region ("id", "region") VALUES (?, ?)`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildUpdateSQL(t *testing.T) {
	t.Parallel()

	got := buildUpdateSQL("dw_fact", []string{"total_demand", "rpr"}, []string{"id"})
	want := `UPDATE dw_fact SET "total_demand" = ?, "rpr" = ? WHERE "id" = ?`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "dw_period",
		PrimaryKey: "id",
		Columns: []storage.ColumnSpec{
			{Name: "period", Type: "varchar(60)"},
		},
		Unique: [][]string{{"period"}},
	}
	got, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatal(err)
	}
	want := "CREATE TABLE IF NOT EXISTS dw_period (\n" +
		"  \"id\" bigint PRIMARY KEY,\n" +
		"  \"period\" varchar(60) NOT NULL,\n" +
		"  UNIQUE (\"period\")\n" +
		")"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}
