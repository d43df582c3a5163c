// Package blob abstracts where raw gazette artifacts (downloaded PDFs,
// pre-normalization page text) are backed up, so replays can start from
// the original bytes instead of the upstream site.
package blob

import (
	"context"
	"io"
)

// Store saves an artifact under a path and returns the URI it is
// reachable at.
type Store interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Discard is a Store that drops everything, for dry runs where artifacts
// should not be kept.
type Discard struct{}

// PutObject drops the content and returns an empty URI.
func (Discard) PutObject(_ context.Context, _, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "", err
}
