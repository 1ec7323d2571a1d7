// Package record defines the composite feed record and its validation rules.
package record

import (
	"fmt"
	"math"
	"time"
)

// DateTime is the calendar instant a settlement interval belongs to, split
// into the components the date_time dimension stores.
type DateTime struct {
	Year         int
	MonthOfYear  int
	DayOfMonth   int
	HourOfDay    int
	MinuteOfHour int
}

// Composite is one input row: it carries the fields destined for the three
// dimension tables plus the two measures of the fact row.
type Composite struct {
	Region      string
	Period      string
	DateTime    DateTime
	RPR         float64
	TotalDemand float64
}

// ValidationError reports an input record that can never be imported.
// The batch driver skips (or fails) such records per its policy; backend
// failures are a different kind and are never represented by this type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks the composite before any SQL is issued: all parts present,
// measures finite, calendar fields in range.
func (c Composite) Validate() error {
	if c.Region == "" {
		return invalid("region", "must not be empty")
	}
	if c.Period == "" {
		return invalid("period", "must not be empty")
	}
	if math.IsNaN(c.RPR) || math.IsInf(c.RPR, 0) {
		return invalid("rpr", "must be finite")
	}
	if math.IsNaN(c.TotalDemand) || math.IsInf(c.TotalDemand, 0) {
		return invalid("total_demand", "must be finite")
	}
	return c.DateTime.validate()
}

func (d DateTime) validate() error {
	if d.MonthOfYear < 1 || d.MonthOfYear > 12 {
		return invalid("month_of_year", "must be in 1..12")
	}
	if d.DayOfMonth < 1 || d.DayOfMonth > 31 {
		return invalid("day_of_month", "must be in 1..31")
	}
	if d.HourOfDay < 0 || d.HourOfDay > 23 {
		return invalid("hour_of_day", "must be in 0..23")
	}
	if d.MinuteOfHour < 0 || d.MinuteOfHour > 59 {
		return invalid("minute_of_hour", "must be in 0..59")
	}
	// time.Date normalises out-of-range days (Feb 30 -> Mar 2); a changed day
	// means the calendar date does not exist.
	t := time.Date(d.Year, time.Month(d.MonthOfYear), d.DayOfMonth, 0, 0, 0, 0, time.UTC)
	if t.Day() != d.DayOfMonth || int(t.Month()) != d.MonthOfYear {
		return invalid("day_of_month", fmt.Sprintf("no such date: %04d-%02d-%02d", d.Year, d.MonthOfYear, d.DayOfMonth))
	}
	return nil
}
