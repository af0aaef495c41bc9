package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ImageHandle references an image available on the local machine, either as a plain path
// or as a file:// URI.
type ImageHandle string

// Path resolves the handle to a filesystem path.
func (h ImageHandle) Path() (string, error) {
	raw := strings.TrimSpace(string(h))
	if raw == "" {
		return "", fmt.Errorf("empty image handle")
	}
	if !strings.Contains(raw, "://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse image handle: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported image handle scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("image handle %q has no path", raw)
	}
	return u.Path, nil
}

// UploadResult is the durable, publicly fetchable location of an uploaded image.
type UploadResult struct {
	URL string `json:"url"`
}

// Uploader stages a local image to durable storage.
type Uploader interface {
	Upload(ctx context.Context, image ImageHandle) (UploadResult, error)
}

// UploadError reports that the source could not be read or the destination write did not
// complete.
type UploadError struct {
	Locator string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Locator, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// openSource opens the handle and sniffs its content type. The returned file is positioned
// at the start; the caller owns closing it.
func openSource(image ImageHandle) (*os.File, *mimetype.MIME, error) {
	path, err := image.Path()
	if err != nil {
		return nil, nil, err
	}
	src, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("detect content type: %w", err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("rewind source: %w", err)
	}
	return src, mtype, nil
}

// objectName returns a collision-free destination name keeping the detected extension.
func objectName(mtype *mimetype.MIME) string {
	name := uuid.NewString()
	if mtype != nil {
		name += mtype.Extension()
	}
	return name
}

func publicURL(base, name string) (string, error) {
	joined, err := url.JoinPath(base, name)
	if err != nil {
		return "", fmt.Errorf("build public url: %w", err)
	}
	return joined, nil
}
