package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Form identifiers and defaults.
const (
	FormIDPrefix       = "bug_modal:"
	FormTitle          = "Bug Report/Feature Request"
	DefaultFormTimeout = 20 * time.Minute

	FieldTitle       = "title"
	FieldDescription = "description"

	failureMessage = "Sorry, the report could not be filed. Please try again later or let the pipeline team know."
)

// ErrFormTimeout is returned by Session.PresentForm when the user does not
// submit before the form expires.
var ErrFormTimeout = errors.New("form timed out")

// FieldStyle is the input style of a form field.
type FieldStyle int

const (
	FieldShort FieldStyle = iota
	FieldParagraph
)

// Field is one text input of a form.
type Field struct {
	ID          string
	Label       string
	Placeholder string
	Style       FieldStyle
	MinLength   int
	MaxLength   int
	Required    bool
}

// Form is a modal input form presented to the reporting user.
type Form struct {
	ID      string
	Title   string
	Fields  []Field
	Timeout time.Duration
}

// FormResult holds submitted values keyed by field ID.
type FormResult struct {
	Values map[string]string
}

// Session is the chat side of one command interaction.
type Session interface {
	// PresentForm shows form and blocks until it is submitted, ctx ends, or
	// the form times out (ErrFormTimeout).
	PresentForm(ctx context.Context, form Form) (FormResult, error)

	// Acknowledge sends a message visible only to the invoking user.
	Acknowledge(ctx context.Context, message string) error
}

// Invocation carries the options supplied with the command.
type Invocation struct {
	Category    string
	Severity    string
	Attachments [2]*Attachment
	User        User
}

// Submitter files a submission.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (*FiledIssue, error)
}

// Command runs the report command: form, submission, acknowledgement.
type Command struct {
	submitter   Submitter
	formTimeout time.Duration
	logger      *slog.Logger
}

// NewCommand creates a Command. formTimeout <= 0 selects DefaultFormTimeout.
func NewCommand(s Submitter, formTimeout time.Duration, logger *slog.Logger) *Command {
	if formTimeout <= 0 {
		formTimeout = DefaultFormTimeout
	}
	return &Command{submitter: s, formTimeout: formTimeout, logger: logger}
}

// NewForm builds the report form with a fresh ID.
func (c *Command) NewForm() Form {
	return Form{
		ID:    FormIDPrefix + uuid.NewString(),
		Title: FormTitle,
		Fields: []Field{
			{
				ID:          FieldTitle,
				Label:       "Summary",
				Placeholder: "Title or Summary of the issue",
				Style:       FieldShort,
				MinLength:   MinTitleLength,
				MaxLength:   MaxTitleLength,
				Required:    true,
			},
			{
				ID:          FieldDescription,
				Label:       "Description",
				Placeholder: "Describe your issue in detail. You may use GitHub-flavored markdown where desired",
				Style:       FieldParagraph,
				Required:    true,
			},
		},
		Timeout: c.formTimeout,
	}
}

// Run presents the form, files the report and acknowledges the user. A
// rejected submission is acknowledged and not returned as an error.
func (c *Command) Run(ctx context.Context, s Session, inv Invocation) error {
	result, err := s.PresentForm(ctx, c.NewForm())
	if errors.Is(err, ErrFormTimeout) {
		c.logger.Info("report form expired", "user_id", inv.User.ID)
		return nil
	}
	if err != nil {
		return err
	}

	sub := Submission{
		Category:    inv.Category,
		Severity:    inv.Severity,
		Title:       result.Values[FieldTitle],
		Description: result.Values[FieldDescription],
		Attachments: inv.Attachments,
		User:        inv.User,
	}

	filed, err := c.submitter.Submit(ctx, sub)

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.logger.Info("report rejected", "user_id", inv.User.ID, "field", verr.Field)
		return s.Acknowledge(ctx, "Report rejected: "+verr.Error())
	case err != nil:
		c.logger.Error("report failed", "user_id", inv.User.ID, "error", err)
		if ackErr := s.Acknowledge(ctx, failureMessage); ackErr != nil {
			c.logger.Warn("failed to acknowledge report failure", "error", ackErr)
		}
		return err
	}

	return s.Acknowledge(ctx, filed.Body)
}
