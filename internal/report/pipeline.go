// Package report files bug reports and feature requests as tracker issues.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/scottdmilner/pipebot/internal/assets"
	"github.com/scottdmilner/pipebot/internal/config"
	"github.com/scottdmilner/pipebot/internal/metrics"
	"github.com/scottdmilner/pipebot/internal/tracker"
)

// Uploader stores an attachment and returns its reference, or nil when the
// attachment is not eligible.
type Uploader interface {
	Upload(ctx context.Context, content []byte, filename, contentType string) (*assets.Reference, error)
}

// Downloader fetches attachment bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Tracker files issues.
type Tracker interface {
	GetLabel(ctx context.Context, name string) (string, error)
	CreateIssue(ctx context.Context, title, body string, labels []string) (*tracker.Issue, error)
}

// Pipeline validates submissions, resolves attachments and files issues.
type Pipeline struct {
	tracker    Tracker
	uploader   Uploader
	downloader Downloader
	labels     map[string]string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. labels overrides the tracker label used for
// an option value, on top of DefaultLabels.
func NewPipeline(t Tracker, u Uploader, d Downloader, labels map[string]string, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	merged := make(map[string]string, len(DefaultLabels)+len(labels))
	for k, v := range DefaultLabels {
		merged[k] = v
	}
	for k, v := range labels {
		merged[k] = v
	}
	return &Pipeline{
		tracker:    t,
		uploader:   u,
		downloader: d,
		labels:     merged,
		metrics:    m,
		logger:     logger,
	}
}

// Submit files sub as one issue. Validation happens before any network call.
// Attachment failures omit the attachment; they never fail the submission.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*FiledIssue, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	filed, err := p.file(ctx, sub)
	p.metrics.IssueFiled(err)
	return filed, err
}

func (p *Pipeline) file(ctx context.Context, sub Submission) (*FiledIssue, error) {
	var urls [2]string
	var g errgroup.Group
	for i, att := range sub.Attachments {
		if att == nil {
			continue
		}
		i, att := i, att
		g.Go(func() error {
			url, err := p.resolve(ctx, att)
			if err != nil {
				p.logger.Warn("attachment omitted",
					"slot", i+1,
					"filename", att.Filename,
					"error", err,
				)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	// Closures report failures by leaving their slot empty; Wait never errs.
	_ = g.Wait()

	body := composeBody(sub.User.DisplayName, sub.Description, urls)

	labels, err := p.resolveLabels(ctx, sub.Severity, sub.Category)
	if err != nil {
		return nil, err
	}

	issue, err := p.tracker.CreateIssue(ctx, sub.Title, body, labels)
	if err != nil {
		return nil, fmt.Errorf("file issue: %w", err)
	}

	p.logger.Info("issue filed",
		"number", issue.Number,
		"category", sub.Category,
		"severity", sub.Severity,
		"user_id", sub.User.ID,
	)

	return &FiledIssue{
		Number: issue.Number,
		URL:    issue.URL,
		Title:  sub.Title,
		Body:   body,
		Labels: labels,
	}, nil
}

// resolve returns the public URL of an attachment, or "" when it is not an image.
func (p *Pipeline) resolve(ctx context.Context, att *Attachment) (string, error) {
	if !assets.IsImage(att.ContentType) {
		return "", nil
	}

	content, err := p.downloader.Download(ctx, att.URL)
	if err != nil {
		return "", &assets.UploadError{Filename: att.Filename, Err: err}
	}

	ref, err := p.uploader.Upload(ctx, content, att.Filename, att.ContentType)
	if err != nil {
		return "", err
	}
	if ref == nil {
		return "", nil
	}
	return ref.URL, nil
}

// resolveLabels looks up the severity label, then the category label.
func (p *Pipeline) resolveLabels(ctx context.Context, values ...string) ([]string, error) {
	labels := make([]string, 0, len(values))
	for _, value := range values {
		name := value
		if override, ok := p.labels[value]; ok {
			name = override
		}

		label, err := p.tracker.GetLabel(ctx, name)
		if errors.Is(err, tracker.ErrLabelNotFound) {
			return nil, &config.ConfigurationError{
				Field:   "report.labels",
				Message: fmt.Sprintf("label %q (for %q) does not exist in the tracker", name, value),
			}
		}
		if err != nil {
			return nil, fmt.Errorf("resolve label %q: %w", name, err)
		}
		labels = append(labels, label)
	}
	return labels, nil
}
