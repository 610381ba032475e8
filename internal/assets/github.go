package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/scottdmilner/pipebot/internal/tracker"
)

// RepoFiles is the subset of the tracker client used by GitHubStore.
type RepoFiles interface {
	FileExists(ctx context.Context, path, ref string) (bool, error)
	CreateFile(ctx context.Context, path, branch, message string, content []byte) error
	Repository() string
}

// GitHubStore keeps assets as files committed to a dedicated branch.
type GitHubStore struct {
	files  RepoFiles
	branch string
}

// NewGitHubStore creates a store committing to branch (DefaultNamespace if empty).
func NewGitHubStore(files RepoFiles, branch string) *GitHubStore {
	if branch == "" {
		branch = DefaultNamespace
	}
	return &GitHubStore{files: files, branch: branch}
}

// Exists reports whether path is on the asset branch.
func (s *GitHubStore) Exists(ctx context.Context, path string) (bool, error) {
	return s.files.FileExists(ctx, path, s.branch)
}

// Create commits content at path. GitHub answers 409/422 both for a file
// that already exists and for other rejections, so a conflict is re-checked
// before it is reported as ErrExists.
func (s *GitHubStore) Create(ctx context.Context, path string, content []byte, message string) error {
	err := s.files.CreateFile(ctx, path, s.branch, message, content)
	if err == nil {
		return nil
	}
	if !errors.Is(err, tracker.ErrConflict) {
		return err
	}

	exists, checkErr := s.files.FileExists(ctx, path, s.branch)
	if checkErr != nil {
		return fmt.Errorf("%w (re-check failed: %v)", err, checkErr)
	}
	if exists {
		return ErrExists
	}
	return err
}

// URL returns the raw-file URL of path on the asset branch.
func (s *GitHubStore) URL(path string) string {
	return fmt.Sprintf("https://github.com/%s/blob/%s/%s?raw=true", s.files.Repository(), s.branch, path)
}
