// Package importer turns one composite feed record into one fact row keyed by
// three dimensions, with stable surrogate keys and idempotent upsert semantics.
package importer

import "priceimporter/internal/storage"

// Dimension describes one dimension table as a data value: where it lives,
// which sequence feeds its surrogate keys, and which columns form its natural
// key. Every dimension goes through the same resolve path; none is a special
// case.
type Dimension struct {
	Table      string
	Sequence   string
	KeyColumns []string
}

// Fact describes the fact table and its insert/update column sets.
type Fact struct {
	Table    string
	Sequence string
}

// Schema names every warehouse object for one table prefix.
type Schema struct {
	Prefix   string
	Region   Dimension
	Period   Dimension
	DateTime Dimension
	Fact     Fact
}

// factKeyColumns is the natural key of the fact table: the resolved dimension
// id triple.
var factKeyColumns = []string{"region_id", "period_id", "date_time_id"}

// NewSchema derives the warehouse object names from a table prefix,
// e.g. prefix "int_test" yields int_test_region, int_test_region_seq, ...
func NewSchema(prefix string) Schema {
	return Schema{
		Prefix: prefix,
		Region: Dimension{
			Table:      prefix + "_region",
			Sequence:   prefix + "_region_seq",
			KeyColumns: []string{"region"},
		},
		Period: Dimension{
			Table:      prefix + "_period",
			Sequence:   prefix + "_period_seq",
			KeyColumns: []string{"period"},
		},
		DateTime: Dimension{
			Table:      prefix + "_date_time",
			Sequence:   prefix + "_datetime_seq",
			KeyColumns: []string{"year", "month_of_year", "day_of_month", "hour_of_day", "minute_of_hour"},
		},
		Fact: Fact{
			Table:    prefix + "_f_energy_price_demand",
			Sequence: prefix + "_fact_seq",
		},
	}
}

// Tables returns the DDL specs for the four warehouse tables.
func (s Schema) Tables() []storage.TableSpec {
	return []storage.TableSpec{
		{
			Name:       s.Region.Table,
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "region", Type: "varchar(60)"},
			},
			Unique: [][]string{{"region"}},
		},
		{
			Name:       s.Period.Table,
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "period", Type: "varchar(60)"},
			},
			Unique: [][]string{{"period"}},
		},
		{
			Name:       s.DateTime.Table,
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "year", Type: "int"},
				{Name: "month_of_year", Type: "int"},
				{Name: "day_of_month", Type: "int"},
				{Name: "hour_of_day", Type: "int"},
				{Name: "minute_of_hour", Type: "int"},
			},
			Unique: [][]string{{"year", "month_of_year", "day_of_month", "hour_of_day", "minute_of_hour"}},
		},
		{
			Name:       s.Fact.Table,
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "total_demand", Type: "double precision"},
				{Name: "rpr", Type: "double precision"},
				{Name: "region_id", Type: "bigint", References: s.Region.Table + "(id)"},
				{Name: "period_id", Type: "bigint", References: s.Period.Table + "(id)"},
				{Name: "date_time_id", Type: "bigint", References: s.DateTime.Table + "(id)"},
			},
			Unique: [][]string{factKeyColumns},
		},
	}
}

// Sequences returns the sequence names the warehouse needs.
func (s Schema) Sequences() []string {
	return []string{
		s.Region.Sequence,
		s.Period.Sequence,
		s.DateTime.Sequence,
		s.Fact.Sequence,
	}
}
