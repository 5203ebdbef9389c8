package rendering

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/jonathan/applications-dashboard/internal/dashboard"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

const pageTemplate = "templates/dashboard.html"

// DefaultTitle is the page heading.
const DefaultTitle = "Job Applications Dashboard"

var (
	pageOnce sync.Once
	page     *template.Template
	pageErr  error
)

// pageData is the value the page template executes against.
type pageData struct {
	Title           string
	View            View
	StatusTTLMillis int64
}

func loadPage() (*template.Template, error) {
	pageOnce.Do(func() {
		page, pageErr = template.ParseFS(templateFS, pageTemplate)
		if pageErr != nil {
			pageErr = &TemplateError{Name: pageTemplate, Message: "failed to parse template", Cause: pageErr}
		}
	})
	return page, pageErr
}

// WriteHTML renders the dashboard page for view.
// The page is rendered into a buffer first so a template failure never sends a partial page.
func WriteHTML(w io.Writer, view View) error {
	tmpl, err := loadPage()
	if err != nil {
		return err
	}

	data := pageData{
		Title:           DefaultTitle,
		View:            view,
		StatusTTLMillis: int64(dashboard.DefaultStatusTTL / time.Millisecond),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return &TemplateError{Name: pageTemplate, Message: "failed to execute template", Cause: err}
	}
	if _, err := buf.WriteTo(w); err != nil {
		return &RenderError{Message: "failed to write page", Cause: err}
	}
	return nil
}
