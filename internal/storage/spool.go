package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Spool holds images received from clients until they have been uploaded.
type Spool struct {
	dir string
}

// NewSpool creates dir if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve spool directory: %w", err)
	}
	return &Spool{dir: abs}, nil
}

// Save writes r to a new spool file and returns its handle.
func (s *Spool) Save(r io.Reader, ext string) (ImageHandle, error) {
	path := filepath.Join(s.dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return ImageHandle((&url.URL{Scheme: "file", Path: path}).String()), nil
}

// Owns reports whether the handle points into the spool.
func (s *Spool) Owns(image ImageHandle) bool {
	path, err := image.Path()
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// Discard removes a spooled image. Handles outside the spool are left alone.
func (s *Spool) Discard(image ImageHandle) error {
	if !s.Owns(image) {
		return nil
	}
	path, err := image.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spool file: %w", err)
	}
	return nil
}

// Wrap returns an Uploader that removes spooled images once next has finished with them,
// whatever the outcome. Handles outside the spool are left alone.
func (s *Spool) Wrap(next Uploader) Uploader {
	return spoolUploader{spool: s, next: next}
}

type spoolUploader struct {
	spool *Spool
	next  Uploader
}

func (u spoolUploader) Upload(ctx context.Context, image ImageHandle) (UploadResult, error) {
	defer u.spool.Discard(image) //nolint:errcheck
	return u.next.Upload(ctx, image)
}
