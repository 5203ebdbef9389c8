package parsing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/jonathan/applications-dashboard/internal/types"
)

// DateMode selects how the date field of each line is read.
type DateMode string

const (
	// DateStrict accepts only M/D/YYYY and fails on anything else.
	DateStrict DateMode = "strict"
	// DateLenient accepts many common layouts and keeps unreadable dates as the invalid date.
	DateLenient DateMode = "lenient"
)

// ParseDateMode converts a configuration value into a DateMode.
func ParseDateMode(s string) (DateMode, error) {
	switch DateMode(strings.ToLower(strings.TrimSpace(s))) {
	case DateStrict, "":
		return DateStrict, nil
	case DateLenient:
		return DateLenient, nil
	default:
		return "", fmt.Errorf("unknown date mode %q (want strict or lenient)", s)
	}
}

// lenientLayouts is tried in order; the first layout that matches wins.
var lenientLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
	"2006-1-2",
	"2006/1/2",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04",
}

var (
	errDateShape = errors.New("expected month/day/year")
	errDateRange = errors.New("no such calendar day")
)

// parseStrictDate reads M/D/YYYY.
func parseStrictDate(s string) (types.Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return types.Date{}, errDateShape
	}

	nums := make([]int, 3)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil || p == "" || strings.HasPrefix(p, "+") || strings.HasPrefix(p, "-") {
			return types.Date{}, errDateShape
		}
		nums[i] = n
	}
	if len(strings.TrimSpace(parts[2])) != 4 {
		return types.Date{}, errDateShape
	}

	d, ok := types.NewDate(nums[2], time.Month(nums[0]), nums[1])
	if !ok {
		return types.Date{}, errDateRange
	}
	return d, nil
}

// parseLenientDate never fails; unreadable text becomes the invalid date.
func parseLenientDate(s string, loc *time.Location) types.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Date{}
	}
	if loc == nil {
		loc = time.Local
	}

	cfg := &now.Config{
		WeekStartDay: time.Sunday,
		TimeLocation: loc,
		TimeFormats:  lenientLayouts,
	}
	t, err := cfg.Parse(s)
	if err != nil || !hasYear(s, t.Year()) {
		return types.Date{}
	}
	return types.DateOf(t)
}

// hasYear reports whether s spells out year in four or two digits. now.Config.Parse
// substitutes the current year for a parsed year of zero, so "0000-01-05" would
// otherwise come back as a date in this year.
func hasYear(s string, year int) bool {
	return strings.Contains(s, fmt.Sprintf("%04d", year)) ||
		strings.Contains(s, fmt.Sprintf("/%02d", year%100))
}
