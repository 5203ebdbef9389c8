// Package fetch loads the raw applications text from a URL or a local file.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default load timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; AppDash/1.0)"

// DefaultSource is the file read when no source is configured.
const DefaultSource = "applications.txt"

// Result holds the text of a successful load.
type Result struct {
	Source      string
	Text        string
	ContentType string
	StatusCode  int
	// ModTime is the file modification time, or the Last-Modified header of a URL source.
	// It is zero when unknown.
	ModTime time.Time
	// ETag is the entity tag of a URL response.
	ETag string
	// NotModified is set when a conditional request was answered with 304; Text is empty.
	NotModified bool
}

// LoadError represents a failure to obtain the applications text.
// StatusCode is set for HTTP sources that answered with a non-success status.
type LoadError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load error for %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("load error for %s: %s", e.Source, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Options configures the load behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for loading.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// IsURL reports whether source names an http or https resource.
func IsURL(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Source loads the applications text from source, which is either a URL or a file path.
func Source(ctx context.Context, source string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if strings.TrimSpace(source) == "" {
		source = DefaultSource
	}
	if IsURL(source) {
		return URL(ctx, source, opts)
	}
	return File(ctx, source)
}

// URL retrieves the applications text over HTTP.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &LoadError{
			Source:  urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{
		Timeout: timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &LoadError{
			Source:  urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &LoadError{
			Source:  urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{
			Source:      urlStr,
			StatusCode:  resp.StatusCode,
			ETag:        resp.Header.Get("ETag"),
			NotModified: true,
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &LoadError{
			Source:     urlStr,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LoadError{
			Source:     urlStr,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Cause:      err,
		}
	}

	result := &Result{
		Source:      urlStr,
		Text:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		ETag:        resp.Header.Get("ETag"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.ModTime = t
		}
	}

	// Some hosts wrap plain files in an HTML viewer page.
	if strings.Contains(strings.ToLower(result.ContentType), "text/html") {
		text, err := ExtractPlainText(result.Text)
		if err != nil {
			return nil, &LoadError{
				Source:     urlStr,
				StatusCode: resp.StatusCode,
				Message:    "failed to read HTML response",
				Cause:      err,
			}
		}
		result.Text = text
	}

	return result, nil
}

// plainTextSelectors are tried in order when a source answers with HTML.
var plainTextSelectors = []string{"pre", "textarea", "main", "article", "body"}

// ExtractPlainText returns the text of the first element that holds the file contents.
// Line structure is kept; blank lines are removed.
func ExtractPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, footer").Remove()

	var content *goquery.Selection
	for _, selector := range plainTextSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			content = selection.First()
			break
		}
	}
	if content == nil {
		return "", nil
	}

	return cleanLines(content.Text()), nil
}

// cleanLines trims each line and drops the empty ones.
func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
