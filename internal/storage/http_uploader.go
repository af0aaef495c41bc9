package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// HTTPUploader PUTs images to an object endpoint (one object per UUID name).
type HTTPUploader struct {
	endpoint      string
	publicBaseURL string
	httpClient    *http.Client
}

var _ Uploader = (*HTTPUploader)(nil)

// NewHTTPUploader returns an uploader writing to endpoint. When the store does not answer
// with a Location header, URLs are built from publicBaseURL.
func NewHTTPUploader(endpoint, publicBaseURL string, client *http.Client) *HTTPUploader {
	if client == nil {
		client = http.DefaultClient
	}
	if publicBaseURL == "" {
		publicBaseURL = endpoint
	}
	return &HTTPUploader{endpoint: endpoint, publicBaseURL: publicBaseURL, httpClient: client}
}

// Upload buffers the image, PUTs it, and returns the buffer to the pool once the store has
// answered.
func (hu *HTTPUploader) Upload(ctx context.Context, image ImageHandle) (UploadResult, error) {
	fail := func(err error) (UploadResult, error) {
		return UploadResult{}, &UploadError{Locator: string(image), Err: err}
	}

	src, mtype, err := openSource(image)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	if _, err := io.Copy(buf, src); err != nil {
		return fail(fmt.Errorf("read source: %w", err))
	}

	name := objectName(mtype)
	target, err := url.JoinPath(hu.endpoint, name)
	if err != nil {
		return fail(fmt.Errorf("build object url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", mtype.String())

	resp, err := hu.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("put object: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fail(fmt.Errorf("put object failed with status %d: %s", resp.StatusCode, string(body)))
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := url.Parse(loc); err == nil && u.IsAbs() {
			return UploadResult{URL: u.String()}, nil
		}
	}

	u, err := publicURL(hu.publicBaseURL, name)
	if err != nil {
		return fail(err)
	}
	return UploadResult{URL: u}, nil
}
