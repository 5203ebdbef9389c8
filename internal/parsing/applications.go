// Package parsing turns the raw applications text into typed records.
package parsing

import (
	"sort"
	"strings"
	"time"

	"github.com/jonathan/applications-dashboard/internal/types"
)

// requiredHeaderTokens must all appear in the header line (case-insensitive).
var requiredHeaderTokens = []string{"date", "company", "position"}

// Options controls the parsing pipeline.
type Options struct {
	// ValidateHeader rejects input whose first line does not name the columns.
	// When false the first line is skipped without inspection.
	ValidateHeader bool
	DateMode       DateMode
	// Dedupe collapses records whose trimmed source line is identical.
	Dedupe bool
	// SortDescending orders records newest first. Otherwise file order is kept.
	SortDescending bool
	// Location is used by lenient date parsing. Defaults to time.Local.
	Location *time.Location
}

// DefaultOptions returns the pipeline used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ValidateHeader: true,
		DateMode:       DateStrict,
		Dedupe:         false,
		SortDescending: true,
	}
}

// sourceLine is a non-empty input line with its 1-based position.
type sourceLine struct {
	text   string
	number int
}

// Parse reads the applications text and returns its records.
func Parse(text string, opts Options) ([]types.Application, error) {
	lines := nonEmptyLines(text)

	if len(lines) == 0 {
		if opts.ValidateHeader {
			return nil, &FormatError{Message: "file is empty, expected a header with date, company and position"}
		}
		return []types.Application{}, nil
	}

	header := lines[0]
	if opts.ValidateHeader {
		if err := checkHeader(header); err != nil {
			return nil, err
		}
	}

	records := make([]types.Application, 0, len(lines)-1)
	seen := make(map[string]struct{})
	for _, line := range lines[1:] {
		if opts.Dedupe {
			if _, dup := seen[line.text]; dup {
				continue
			}
			seen[line.text] = struct{}{}
		}

		app, err := NewApplication(line.text, line.number, opts)
		if err != nil {
			return nil, err
		}
		records = append(records, app)
	}

	if opts.SortDescending {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Date.Compare(records[j].Date) > 0
		})
	}

	return records, nil
}

// NewApplication builds a record from one trimmed data line.
// It requires at least three comma-separated fields; anything after the third is ignored.
func NewApplication(line string, lineNumber int, opts Options) (types.Application, error) {
	fields := splitFields(line)
	if len(fields) < 3 {
		return types.Application{}, &FieldCountError{Line: lineNumber, Count: len(fields)}
	}

	var date types.Date
	switch opts.DateMode {
	case DateLenient:
		date = parseLenientDate(fields[0], opts.Location)
	default:
		d, err := parseStrictDate(fields[0])
		if err != nil {
			return types.Application{}, &DateFormatError{Value: fields[0], Line: lineNumber, Cause: err}
		}
		date = d
	}

	return types.Application{
		Date:       date,
		Company:    fields[1],
		Position:   fields[2],
		Line:       line,
		LineNumber: lineNumber,
	}, nil
}

func checkHeader(header sourceLine) error {
	lower := strings.ToLower(header.text)
	var missing []string
	for _, token := range requiredHeaderTokens {
		if !strings.Contains(lower, token) {
			missing = append(missing, token)
		}
	}
	if len(missing) > 0 {
		return &FormatError{
			Line:    header.number,
			Message: "header must contain date, company and position (missing " + strings.Join(missing, ", ") + ")",
		}
	}
	return nil
}

func nonEmptyLines(text string) []sourceLine {
	raw := strings.Split(text, "\n")
	lines := make([]sourceLine, 0, len(raw))
	for i, l := range raw {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		lines = append(lines, sourceLine{text: trimmed, number: i + 1})
	}
	return lines
}

func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
