package rendering

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/stats"
)

// LastUpdatedLayout formats the time of the last successful load.
const LastUpdatedLayout = "Jan 2, 2006 3:04:05 PM"

// NeverUpdated is shown before the first successful load.
const NeverUpdated = "Never"

// Options controls what the view includes.
type Options struct {
	ShowDaysAgo bool
	// RowLimit caps the number of rows; 0 means all records.
	RowLimit int
}

// DefaultOptions returns the default display options.
func DefaultOptions() Options {
	return Options{ShowDaysAgo: true, RowLimit: 10}
}

// Row is one line of the recent-applications table.
type Row struct {
	Date     string `json:"date"`
	Company  string `json:"company"`
	Position string `json:"position"`
	DaysAgo  string `json:"days_ago,omitempty"`
}

// StatusView is the visible status message.
type StatusView struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// View is everything the page shows, already formatted. It is also the JSON API payload.
type View struct {
	Version        uint64      `json:"version"`
	State          string      `json:"state"`
	Source         string      `json:"source"`
	Total          int         `json:"total"`
	TotalText      string      `json:"total_text"`
	Weekly         int         `json:"weekly"`
	Monthly        int         `json:"monthly"`
	DailyAverage   string      `json:"daily_average"`
	DateRange      string      `json:"date_range"`
	LastUpdated    string      `json:"last_updated"`
	SourceModified string      `json:"source_modified,omitempty"`
	ShowDaysAgo    bool        `json:"show_days_ago"`
	RowCount       int         `json:"row_count"`
	Rows           []Row       `json:"rows"`
	Status         *StatusView `json:"status"`
}

// BuildView formats snap for display.
func BuildView(snap dashboard.Snapshot, opts Options) View {
	now := snap.Now
	if now.IsZero() {
		now = time.Now()
	}

	v := View{
		Version:      snap.Version,
		State:        string(snap.State),
		Source:       snap.Source,
		Total:        snap.Summary.Total,
		TotalText:    humanize.Comma(int64(snap.Summary.Total)),
		Weekly:       snap.Summary.Weekly,
		Monthly:      snap.Summary.Monthly,
		DailyAverage: snap.Summary.DailyAverageText(),
		DateRange:    snap.Summary.DateRange(),
		LastUpdated:  NeverUpdated,
		ShowDaysAgo:  opts.ShowDaysAgo,
		RowCount:     len(snap.Records),
	}
	if !snap.LastUpdated.IsZero() {
		v.LastUpdated = snap.LastUpdated.Format(LastUpdatedLayout)
	}
	if !snap.SourceModTime.IsZero() {
		v.SourceModified = humanize.RelTime(snap.SourceModTime, now, "ago", "from now")
	}
	if snap.Status != nil {
		v.Status = &StatusView{
			Message:  snap.Status.Message,
			Severity: string(snap.Status.Severity),
		}
	}

	records := snap.Records
	if opts.RowLimit > 0 && len(records) > opts.RowLimit {
		records = records[:opts.RowLimit]
	}
	v.Rows = make([]Row, 0, len(records))
	for _, r := range records {
		row := Row{
			Date:     r.Date.Format(),
			Company:  r.Company,
			Position: r.Position,
		}
		if opts.ShowDaysAgo {
			row.DaysAgo = stats.DaysAgoText(r.Date, now)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}
