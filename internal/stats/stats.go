// Package stats aggregates application records into the dashboard summary.
package stats

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jonathan/applications-dashboard/internal/types"
)

const (
	day          = 24 * time.Hour
	weekWindow   = 7 * day
	monthWindow  = 30 * day
	emptyAverage = "0.0"
	emptyRange   = "N/A"
)

// Summary holds the aggregate figures shown on the dashboard.
type Summary struct {
	Total   int `json:"total"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
	// DailyAverage is the unrounded records-per-day ratio. It is only meaningful when HasAverage is set.
	DailyAverage float64    `json:"daily_average"`
	HasAverage   bool       `json:"has_average"`
	Earliest     types.Date `json:"earliest"`
	Latest       types.Date `json:"latest"`
	// SpanDays is the inclusive number of calendar days between Earliest and Latest.
	SpanDays int `json:"span_days"`
}

// Compute derives the summary for records as of now.
// Records holding the invalid date count toward Total only.
func Compute(records []types.Application, now time.Time) Summary {
	s := Summary{Total: len(records)}
	if len(records) == 0 {
		return s
	}

	loc := now.Location()
	weekStart := now.Add(-weekWindow)
	monthStart := now.Add(-monthWindow)

	for _, r := range records {
		if !r.Date.Valid() {
			continue
		}
		midnight := r.Date.Midnight(loc)
		if !midnight.Before(weekStart) {
			s.Weekly++
		}
		if !midnight.Before(monthStart) {
			s.Monthly++
		}

		if !s.Earliest.Valid() || r.Date.Compare(s.Earliest) < 0 {
			s.Earliest = r.Date
		}
		if !s.Latest.Valid() || r.Date.Compare(s.Latest) > 0 {
			s.Latest = r.Date
		}
	}

	if s.Earliest.Valid() {
		s.SpanDays = s.Earliest.DaysUntil(s.Latest) + 1
		s.DailyAverage = float64(s.Total) / float64(s.SpanDays)
		s.HasAverage = true
	}
	return s
}

// DailyAverageText renders the average with one decimal, or "0.0" when there is nothing to average.
func (s Summary) DailyAverageText() string {
	if !s.HasAverage {
		return emptyAverage
	}
	return strconv.FormatFloat(s.DailyAverage, 'f', 1, 64)
}

// DateRange renders "Jan 5, 2024 - Jan 6, 2024", or "N/A" when no valid dates exist.
func (s Summary) DateRange() string {
	if !s.Earliest.Valid() {
		return emptyRange
	}
	return s.Earliest.Format() + " - " + s.Latest.Format()
}

// DaysAgo returns the whole number of days between the start of date and now, rounded up.
// ok is false for the invalid date.
func DaysAgo(date types.Date, now time.Time) (days int, ok bool) {
	if !date.Valid() {
		return 0, false
	}
	diff := now.Sub(date.Midnight(now.Location()))
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(float64(diff) / float64(day))), true
}

// DaysAgoText renders DaysAgo as "1 day ago" or "N days ago". The invalid date yields "".
func DaysAgoText(date types.Date, now time.Time) string {
	n, ok := DaysAgo(date, now)
	if !ok {
		return ""
	}
	if n == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", n)
}
