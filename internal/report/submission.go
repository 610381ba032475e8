package report

import (
	"fmt"
	"unicode/utf8"
)

// Title length bounds, in characters.
const (
	MinTitleLength = 10
	MaxTitleLength = 200
)

// Attachment is an optional file supplied with a report. Bytes are fetched
// from URL during resolution.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	URL         string
}

// User identifies the reporter.
type User struct {
	ID          string
	DisplayName string
}

// Submission is one bug report or feature request.
type Submission struct {
	Category    string
	Severity    string
	Title       string
	Description string

	// Attachments holds the two optional image slots. Slot order is kept in
	// the issue body.
	Attachments [2]*Attachment

	User User
}

// FiledIssue is the result of a successful submission.
type FiledIssue struct {
	Number int
	URL    string
	Title  string
	Body   string
	Labels []string
}

// ValidationError names the submission constraint that was violated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the title bounds and option values.
func (s *Submission) Validate() error {
	n := utf8.RuneCountInString(s.Title)
	if n < MinTitleLength || n > MaxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("must be between %d and %d characters (got %d)", MinTitleLength, MaxTitleLength, n),
		}
	}
	if !hasValue(Categories, s.Category) {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", s.Category)}
	}
	if !hasValue(Severities, s.Severity) {
		return &ValidationError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", s.Severity)}
	}
	return nil
}
