package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilesystemUploader copies images into a directory that is served under publicBaseURL.
type FilesystemUploader struct {
	baseDir       string
	publicBaseURL string
}

var _ Uploader = (*FilesystemUploader)(nil)

// NewFilesystemUploader creates baseDir if needed.
func NewFilesystemUploader(baseDir, publicBaseURL string) (*FilesystemUploader, error) {
	if publicBaseURL == "" {
		return nil, fmt.Errorf("public base url is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FilesystemUploader{baseDir: baseDir, publicBaseURL: publicBaseURL}, nil
}

// Upload copies the image under a fresh UUID name. A partially written object is removed
// when the copy fails.
func (fs *FilesystemUploader) Upload(ctx context.Context, image ImageHandle) (UploadResult, error) {
	fail := func(err error) (UploadResult, error) {
		return UploadResult{}, &UploadError{Locator: string(image), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	src, mtype, err := openSource(image)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	name := objectName(mtype)
	destPath := filepath.Join(fs.baseDir, name)
	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fail(fmt.Errorf("create destination: %w", err))
	}

	if _, err := io.Copy(dst, contextReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		os.Remove(destPath)
		return fail(fmt.Errorf("write destination: %w", err))
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(destPath)
		return fail(fmt.Errorf("sync destination: %w", err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(destPath)
		return fail(fmt.Errorf("close destination: %w", err))
	}

	u, err := publicURL(fs.publicBaseURL, name)
	if err != nil {
		os.Remove(destPath)
		return fail(err)
	}
	return UploadResult{URL: u}, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
