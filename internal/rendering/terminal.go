package rendering

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// WriteTerminal prints the summary and the recent-applications table for the CLI.
func WriteTerminal(w io.Writer, view View) error {
	var sb strings.Builder

	sb.WriteString(pterm.Bold.Sprint(DefaultTitle))
	sb.WriteString("\n\n")

	summary := pterm.TableData{
		{"Total", view.TotalText},
		{"This week", fmt.Sprint(view.Weekly)},
		{"This month", fmt.Sprint(view.Monthly)},
		{"Daily average", view.DailyAverage},
		{"Date range", view.DateRange},
		{"Last updated", view.LastUpdated},
	}
	if view.SourceModified != "" {
		summary = append(summary, []string{"Source modified", view.SourceModified})
	}
	out, err := pterm.DefaultTable.WithData(summary).Srender()
	if err != nil {
		return &RenderError{Message: "failed to render summary", Cause: err}
	}
	sb.WriteString(out)
	sb.WriteString("\n\n")

	if len(view.Rows) == 0 {
		sb.WriteString(pterm.Gray("No applications found"))
		sb.WriteString("\n")
	} else {
		header := []string{"Date", "Company", "Position"}
		if view.ShowDaysAgo {
			header = append(header, "Age")
		}
		rows := pterm.TableData{header}
		for _, r := range view.Rows {
			line := []string{r.Date, r.Company, r.Position}
			if view.ShowDaysAgo {
				line = append(line, r.DaysAgo)
			}
			rows = append(rows, line)
		}
		out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
		if err != nil {
			return &RenderError{Message: "failed to render applications", Cause: err}
		}
		sb.WriteString(out)
		sb.WriteString("\n")
		if len(view.Rows) < view.RowCount {
			sb.WriteString(pterm.Gray(fmt.Sprintf("showing %d of %d", len(view.Rows), view.RowCount)))
			sb.WriteString("\n")
		}
	}

	if view.Status != nil {
		sb.WriteString("\n")
		sb.WriteString(statusColor(view.Status.Severity)(view.Status.Message))
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return &RenderError{Message: "failed to write output", Cause: err}
	}
	return nil
}

func statusColor(severity string) func(a ...interface{}) string {
	switch severity {
	case "success":
		return pterm.Green
	case "error":
		return pterm.Red
	default:
		return pterm.Cyan
	}
}
