// Package tracker wraps the GitHub REST API calls pipebot needs: issue
// creation, label lookup, and repository file probes and commits.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/scottdmilner/pipebot/internal/config"
)

// Sentinel errors returned by Client methods. Callers match with errors.Is.
var (
	ErrNotFound      = errors.New("tracker: not found")
	ErrLabelNotFound = errors.New("tracker: label not found")
	ErrConflict      = errors.New("tracker: conflict")
)

// Options configures a Client.
type Options struct {
	Token      string
	Repository string // owner/name

	// BaseURL points at a GitHub Enterprise API root. Empty means github.com.
	BaseURL string

	WritesPerSecond float64
	WriteBurst      int
	RequestTimeout  time.Duration

	// HTTPClient overrides the oauth2 transport. Used by tests.
	HTTPClient *http.Client
}

// OptionsFromConfig builds Options from the github config section.
func OptionsFromConfig(gc config.GitHubConfig) Options {
	return Options{
		Token:           gc.Token,
		Repository:      gc.Repository,
		BaseURL:         gc.BaseURL,
		WritesPerSecond: gc.WritesPerSecond,
		WriteBurst:      gc.WriteBurst,
		RequestTimeout:  gc.RequestTimeout,
	}
}

// Client is a rate-limited GitHub client bound to one repository.
// It is safe for concurrent use.
type Client struct {
	gh      *github.Client
	owner   string
	repo    string
	writes  *rate.Limiter
	timeout time.Duration
}

// Issue is a created issue.
type Issue struct {
	Number int
	URL    string
}

// New creates a Client. Content-creating calls share one token bucket of
// WritesPerSecond with WriteBurst; zero WritesPerSecond disables throttling.
func New(opts Options) (*Client, error) {
	owner, repo, err := config.SplitRepository(opts.Repository)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	gh := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		gh, err = gh.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("github base url %q: %w", opts.BaseURL, err)
		}
	}

	limit := rate.Inf
	if opts.WritesPerSecond > 0 {
		limit = rate.Limit(opts.WritesPerSecond)
	}
	burst := opts.WriteBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		gh:      gh,
		owner:   owner,
		repo:    repo,
		writes:  rate.NewLimiter(limit, burst),
		timeout: opts.RequestTimeout,
	}, nil
}

// Repository returns "owner/name".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// CreateIssue files an issue with the given labels.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*Issue, error) {
	if err := c.writes.Wait(ctx); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", classify(err))
	}
	return &Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

// GetLabel returns the canonical name of an existing label. A missing label
// yields ErrLabelNotFound.
func (c *Client) GetLabel(ctx context.Context, name string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	label, _, err := c.gh.Issues.GetLabel(ctx, c.owner, c.repo, name)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("label %q: %w", name, ErrLabelNotFound)
		}
		return "", fmt.Errorf("get label %q: %w", name, err)
	}
	return label.GetName(), nil
}

// FileExists reports whether path exists on ref.
func (c *Client) FileExists(ctx context.Context, path, ref string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get file %s@%s: %w", path, ref, err)
	}
	return true, nil
}

// CreateFile commits a new file to branch. An existing file yields ErrConflict.
func (c *Client) CreateFile(ctx context.Context, path, branch, message string, content []byte) error {
	if err := c.writes.Wait(ctx); err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, _, err := c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	})
	if err != nil {
		return fmt.Errorf("create file %s@%s: %w", path, branch, classify(err))
	}
	return nil
}

// classify maps go-github errors onto the package sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}
	switch ghErr.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}
