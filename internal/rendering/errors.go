// Package rendering turns dashboard snapshots into the page, the JSON view and terminal output.
package rendering

import "fmt"

// TemplateError represents an error parsing or executing the page template
type TemplateError struct {
	Name    string
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error in %s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return fmt.Sprintf("template error in %s: %s", e.Name, e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// RenderError represents a failure writing rendered output
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
