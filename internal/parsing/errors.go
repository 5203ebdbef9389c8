package parsing

import "fmt"

// FormatError represents a problem with the overall layout of the applications text,
// such as a missing or incomplete header line.
type FormatError struct {
	Message string
	Line    int
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("format error on line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("format error: %s", e.Message)
}

// DateFormatError represents a date field that the strict parser could not read.
type DateFormatError struct {
	Value string
	Line  int
	Cause error
}

func (e *DateFormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid date %q on line %d: %v", e.Value, e.Line, e.Cause)
	}
	return fmt.Sprintf("invalid date %q on line %d", e.Value, e.Line)
}

func (e *DateFormatError) Unwrap() error {
	return e.Cause
}

// FieldCountError represents a data line with fewer than the three required fields.
type FieldCountError struct {
	Line  int
	Count int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("line %d has %d field(s), expected date, company and position", e.Line, e.Count)
}
