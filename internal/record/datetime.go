package record

import (
	"fmt"
	"time"
)

// settlementLayout is the timestamp format of the price/demand feed,
// e.g. "2016/03/22 04:30:00".
const settlementLayout = "2006/01/02 15:04:05"

// ParseSettlementTime parses a feed timestamp. Feed times are wall-clock
// market times without a zone; they are carried as UTC so the components
// round-trip unchanged into the date_time dimension.
func ParseSettlementTime(s string) (time.Time, error) {
	t, err := time.Parse(settlementLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse settlement time %q: %w", s, err)
	}
	return t, nil
}

// DateTimeOf splits t into the components the date_time dimension stores.
// Seconds are dropped; settlement intervals are minute-grained.
func DateTimeOf(t time.Time) DateTime {
	return DateTime{
		Year:         t.Year(),
		MonthOfYear:  int(t.Month()),
		DayOfMonth:   t.Day(),
		HourOfDay:    t.Hour(),
		MinuteOfHour: t.Minute(),
	}
}
