package types

// Application is one parsed entry from the applications file.
type Application struct {
	Date     Date   `json:"date"`
	Company  string `json:"company"`
	Position string `json:"position"`

	// Line is the trimmed source line the record came from.
	Line string `json:"-"`
	// LineNumber is the 1-based position of Line in the source text.
	LineNumber int `json:"line_number"`
}
