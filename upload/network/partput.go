package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// PartProgress receives the number of bytes of the part sent so far. It is
// an absolute position within the part, so a retried attempt restarts the
// count instead of inflating it.
type PartProgress func(transferred int64)

// UploadPart PUTs one byte range to its upload URI. Part URIs are presigned
// by the remote, so no auth headers are attached; callers may supply extra
// per-part headers.
func (c *Client) UploadPart(ctx context.Context, part Part, data []byte, headers map[string]string, progress PartProgress) error {
	uri := c.resolveURI(part.URI)

	// a fresh counting reader per attempt keeps progress accurate across
	// transport retries
	body := retryablehttp.ReaderFunc(func() (io.Reader, error) {
		reader := &progressReader{reader: bytes.NewReader(data), progress: progress}
		return reader, nil
	})

	req, err := retryablehttp.NewRequest(http.MethodPut, uri, body)
	if err != nil {
		return fmt.Errorf("create part request: %w", err)
	}
	req = req.WithContext(ctx)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))

	c.logger.Debugf("Uploading part [%d, %d) (%d bytes)", part.StartOffset, part.EndOffset, len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("PUT part [%d, %d): %w", part.StartOffset, part.EndOffset, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return nil
}

type progressReader struct {
	reader      *bytes.Reader
	transferred int64
	progress    PartProgress
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.transferred += int64(n)
		if r.progress != nil {
			r.progress(r.transferred)
		}
	}
	return n, err
}
