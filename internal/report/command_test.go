package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	form    Form
	result  FormResult
	formErr error
	acks    []string
}

func (f *fakeSession) PresentForm(_ context.Context, form Form) (FormResult, error) {
	f.form = form
	return f.result, f.formErr
}

func (f *fakeSession) Acknowledge(_ context.Context, message string) error {
	f.acks = append(f.acks, message)
	return nil
}

type submitterFunc func(ctx context.Context, sub Submission) (*FiledIssue, error)

func (fn submitterFunc) Submit(ctx context.Context, sub Submission) (*FiledIssue, error) {
	return fn(ctx, sub)
}

func testInvocation() Invocation {
	return Invocation{
		Category:    "nuke",
		Severity:    "feature",
		Attachments: [2]*Attachment{nil, image("b.png")},
		User:        User{ID: "9", DisplayName: "Sam"},
	}
}

func TestNewForm(t *testing.T) {
	c := NewCommand(nil, 0, quietLogger())
	form := c.NewForm()

	assert.True(t, strings.HasPrefix(form.ID, FormIDPrefix))
	assert.Equal(t, "Bug Report/Feature Request", form.Title)
	assert.Equal(t, DefaultFormTimeout, form.Timeout)
	require.Len(t, form.Fields, 2)

	title := form.Fields[0]
	assert.Equal(t, FieldTitle, title.ID)
	assert.Equal(t, "Summary", title.Label)
	assert.Equal(t, FieldShort, title.Style)
	assert.Equal(t, 10, title.MinLength)
	assert.Equal(t, 200, title.MaxLength)

	desc := form.Fields[1]
	assert.Equal(t, "Description", desc.Label)
	assert.Equal(t, FieldParagraph, desc.Style)

	assert.NotEqual(t, form.ID, c.NewForm().ID)
}

func TestRunSuccessAcknowledgesBody(t *testing.T) {
	var got Submission
	c := NewCommand(submitterFunc(func(_ context.Context, sub Submission) (*FiledIssue, error) {
		got = sub
		return &FiledIssue{Body: "composed body"}, nil
	}), 0, quietLogger())

	sess := &fakeSession{result: FormResult{Values: map[string]string{
		FieldTitle:       "Nuke render freezes",
		FieldDescription: "details",
	}}}

	require.NoError(t, c.Run(context.Background(), sess, testInvocation()))

	assert.Equal(t, "nuke", got.Category)
	assert.Equal(t, "feature", got.Severity)
	assert.Equal(t, "Nuke render freezes", got.Title)
	assert.Equal(t, "details", got.Description)
	assert.Nil(t, got.Attachments[0])
	assert.Equal(t, "b.png", got.Attachments[1].Filename)
	assert.Equal(t, "Sam", got.User.DisplayName)
	assert.Equal(t, []string{"composed body"}, sess.acks)
}

func TestRunValidationRejected(t *testing.T) {
	c := NewCommand(submitterFunc(func(context.Context, Submission) (*FiledIssue, error) {
		return nil, &ValidationError{Field: "title", Message: "must be between 10 and 200 characters (got 3)"}
	}), 0, quietLogger())

	sess := &fakeSession{result: FormResult{Values: map[string]string{FieldTitle: "bad"}}}
	require.NoError(t, c.Run(context.Background(), sess, testInvocation()))

	require.Len(t, sess.acks, 1)
	assert.True(t, strings.HasPrefix(sess.acks[0], "Report rejected: title:"))
}

func TestRunFailureAcknowledgesAndReturns(t *testing.T) {
	cause := errors.New("tracker down")
	c := NewCommand(submitterFunc(func(context.Context, Submission) (*FiledIssue, error) {
		return nil, cause
	}), 0, quietLogger())

	sess := &fakeSession{result: FormResult{Values: map[string]string{}}}
	err := c.Run(context.Background(), sess, testInvocation())

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{failureMessage}, sess.acks)
}

func TestRunFormTimeout(t *testing.T) {
	called := false
	c := NewCommand(submitterFunc(func(context.Context, Submission) (*FiledIssue, error) {
		called = true
		return nil, nil
	}), 0, quietLogger())

	sess := &fakeSession{formErr: ErrFormTimeout}
	assert.NoError(t, c.Run(context.Background(), sess, testInvocation()))
	assert.False(t, called)
	assert.Empty(t, sess.acks)
}

func TestRunUsesConfiguredTimeout(t *testing.T) {
	c := NewCommand(submitterFunc(func(context.Context, Submission) (*FiledIssue, error) {
		return &FiledIssue{}, nil
	}), 90_000_000_000, quietLogger())

	sess := &fakeSession{result: FormResult{Values: map[string]string{}}}
	require.NoError(t, c.Run(context.Background(), sess, testInvocation()))
	assert.Equal(t, "1m30s", sess.form.Timeout.String())
}
