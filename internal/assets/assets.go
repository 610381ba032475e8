// Package assets stores report attachments content-addressed: the storage
// path is derived from the SHA-1 of the bytes, so identical images are
// written once and shared by every issue that references them.
package assets

import (
	"context"
	"errors"
	"fmt"
)

// DefaultNamespace is the branch (GitHub) or key prefix (S3) holding assets.
const DefaultNamespace = "pipebot-issues-assets"

// ErrExists is returned by Store.Create when the path is already occupied.
var ErrExists = errors.New("asset already exists")

// Store is a write-once object store addressed by path.
type Store interface {
	// Exists reports whether path is already stored.
	Exists(ctx context.Context, path string) (bool, error)

	// Create writes content at path. It returns ErrExists if another writer
	// got there first.
	Create(ctx context.Context, path string, content []byte, message string) error

	// URL is the public URL of path. It performs no I/O.
	URL(path string) string
}

// Reference identifies a stored asset.
type Reference struct {
	Hash string // hex SHA-1 of the content
	Ext  string // lower-cased, without the dot; may be empty
	Path string // issues/{hash}.{ext}
	URL  string
}

// UploadError reports a failed upload of one attachment.
type UploadError struct {
	Path     string
	Filename string
	Err      error
}

func (e *UploadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("upload %s: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("upload %s to %s: %v", e.Filename, e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
