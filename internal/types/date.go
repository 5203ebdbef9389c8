// Package types provides type definitions for structured data used throughout the applications dashboard.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"time"
)

// DisplayLayout is the layout used when a Date is shown to the user, e.g. "Jan 5, 2024".
const DisplayLayout = "Jan 2, 2006"

// isoLayout is the layout used for machine-readable encodings of a Date.
const isoLayout = "2006-01-02"

// Date is a calendar date without a time of day.
// The zero value is the invalid date produced by lenient parsing of unreadable text.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the date for year, month and day.
// ok is false when the combination does not name a real calendar day.
func NewDate(year int, month time.Month, day int) (d Date, ok bool) {
	if year < 1 || year > 9999 || month < time.January || month > time.December || day < 1 {
		return Date{}, false
	}
	if day > daysIn(year, month) {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDisplayDate parses text produced by Date.Format.
func ParseDisplayDate(s string) (Date, error) {
	t, err := time.Parse(DisplayLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid display date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Valid reports whether d is a real calendar date.
func (d Date) Valid() bool {
	return d.Year != 0
}

// Midnight returns the start of d in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// dayNumber counts days since the Unix epoch, independent of any time zone.
func (d Date) dayNumber() int64 {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
// Invalid dates order before every valid date.
func (d Date) Compare(o Date) int {
	switch {
	case !d.Valid() && !o.Valid():
		return 0
	case !d.Valid():
		return -1
	case !o.Valid():
		return 1
	}
	a, b := d.dayNumber(), o.dayNumber()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DaysUntil returns the number of calendar days from d to o. Both must be valid.
func (d Date) DaysUntil(o Date) int {
	return int(o.dayNumber() - d.dayNumber())
}

// Format renders d with DisplayLayout. The invalid date renders as "Invalid Date".
func (d Date) Format() string {
	if !d.Valid() {
		return "Invalid Date"
	}
	return d.Midnight(time.UTC).Format(DisplayLayout)
}

func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return d.Midnight(time.UTC).Format(isoLayout)
}

// MarshalText encodes d as YYYY-MM-DD, or an empty string for the invalid date.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes YYYY-MM-DD; empty text yields the invalid date.
func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(isoLayout, string(text))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", string(text), err)
	}
	*d = DateOf(t)
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
