package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxDownloadBytes caps a single attachment download.
const DefaultMaxDownloadBytes = 25 << 20

// HTTPDownloader fetches attachment bytes from the chat platform's CDN.
type HTTPDownloader struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPDownloader creates a downloader. A nil client gets a 30s timeout;
// maxBytes <= 0 selects DefaultMaxDownloadBytes.
func NewHTTPDownloader(client *http.Client, maxBytes int64) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &HTTPDownloader{client: client, maxBytes: maxBytes}
}

// Download returns the body at url. Non-2xx responses and bodies over the
// size cap are errors.
func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("download: %d bytes exceeds limit of %d", resp.ContentLength, d.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download: read body: %w", err)
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("download: body exceeds limit of %d bytes", d.maxBytes)
	}
	return body, nil
}
