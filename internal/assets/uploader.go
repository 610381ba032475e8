package assets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scottdmilner/pipebot/internal/metrics"
)

// DefaultWriteTimeout bounds a shared store write once no single caller owns it.
const DefaultWriteTimeout = 60 * time.Second

// Uploader writes attachments to a Store under content-derived paths.
// It is safe for concurrent use.
type Uploader struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	// WriteTimeout bounds each store write. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration

	// inflight collapses concurrent uploads of the same path.
	inflight singleflight.Group
}

// NewUploader creates an Uploader over store.
func NewUploader(store Store, m *metrics.Metrics, logger *slog.Logger) *Uploader {
	return &Uploader{store: store, metrics: m, logger: logger, WriteTimeout: DefaultWriteTimeout}
}

// Upload stores content and returns its reference. Empty content or a content
// type that is not an image yields (nil, nil). Uploading the same bytes twice
// returns the same reference and writes only once.
func (u *Uploader) Upload(ctx context.Context, content []byte, filename, contentType string) (*Reference, error) {
	if len(content) == 0 || !IsImage(contentType) {
		u.metrics.AssetUpload(metrics.UploadSkipped)
		return nil, nil
	}

	ref := referenceFor(content, filename)
	ref.URL = u.store.URL(ref.Path)

	// The write is shared by every caller of the same path, so it must not
	// die with whichever caller started it. Each caller still stops waiting
	// when its own context ends.
	ch := u.inflight.DoChan(ref.Path, func() (any, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.writeTimeout())
		defer cancel()
		return u.put(wctx, ref.Path, content, filename)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		u.metrics.AssetUpload(metrics.UploadFailed)
		return nil, &UploadError{Path: ref.Path, Filename: filename, Err: res.Err}
	}

	outcome := res.Val.(string)
	if res.Shared {
		outcome = metrics.UploadDeduplicated
	}
	u.metrics.AssetUpload(outcome)
	u.logger.Debug("asset uploaded", "path", ref.Path, "outcome", outcome)

	return ref, nil
}

func (u *Uploader) writeTimeout() time.Duration {
	if u.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return u.WriteTimeout
}

func (u *Uploader) put(ctx context.Context, p string, content []byte, filename string) (string, error) {
	exists, err := u.store.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if exists {
		return metrics.UploadDeduplicated, nil
	}

	err = u.store.Create(ctx, p, content, CommitMessage(filename))
	if errors.Is(err, ErrExists) {
		return metrics.UploadDeduplicated, nil
	}
	if err != nil {
		return "", err
	}
	return metrics.UploadCreated, nil
}

// IsImage reports whether a declared MIME type names an image.
func IsImage(contentType string) bool {
	return strings.Contains(contentType, "image")
}

// CommitMessage is the message recorded when an asset is first written.
func CommitMessage(filename string) string {
	return "supporting image (" + filename + ")"
}

func referenceFor(content []byte, filename string) *Reference {
	sum := sha1.Sum(content)
	hash := hex.EncodeToString(sum[:])
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))

	name := hash
	if ext != "" {
		name += "." + ext
	}
	return &Reference{Hash: hash, Ext: ext, Path: "issues/" + name}
}
