// Package upload implements the File Send Queue's Uploader (spec §4.4)
// over plain net/http. Outbound media upload has no dedicated HTTP
// client library anywhere in this module's dependency stack, whose
// HTTP-adjacent surface is inbound-only, protocol-fronted; net/http's
// multipart writer is the idiomatic stdlib choice for this narrow,
// boundary-facing concern
// and is recorded as such in the grounding ledger.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// HTTPUploader posts a file task's thumbnail and body to a media gateway
// over HTTP multipart/form-data, satisfying queue.Uploader.
type HTTPUploader struct {
	client    *http.Client
	baseURL   string
	authToken func() string
}

func NewHTTPUploader(baseURL string, authToken func() string) *HTTPUploader {
	return &HTTPUploader{
		client:    &http.Client{Timeout: 60 * time.Second},
		baseURL:   baseURL,
		authToken: authToken,
	}
}

// UploadThumbnail implements queue.Uploader.
func (u *HTTPUploader) UploadThumbnail(ctx context.Context, task model.FileTask) (string, error) {
	return u.post(ctx, "/media/thumbnail", task.FilePath, "thumbnail")
}

// UploadBody implements queue.Uploader.
func (u *HTTPUploader) UploadBody(ctx context.Context, task model.FileTask) (string, error) {
	return u.post(ctx, "/media/body", task.FilePath, "body")
}

func (u *HTTPUploader) post(ctx context.Context, path, filePath, field string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", ierr.Wrap(ierr.Generic, err, "opening file for upload")
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return "", ierr.Wrap(ierr.Generic, err, "building multipart body")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", ierr.Wrap(ierr.Network, err, "reading file body")
	}
	if err := w.Close(); err != nil {
		return "", ierr.Wrap(ierr.Generic, err, "closing multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, &buf)
	if err != nil {
		return "", ierr.Wrap(ierr.Generic, err, "building upload request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if u.authToken != nil {
		if tok := u.authToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", ierr.Wrap(ierr.Network, err, "upload request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", ierr.NewNetwork(resp.StatusCode, fmt.Sprintf("upload rejected: %s", string(body)))
	}
	return string(body), nil
}
