// Package downloader fetches photo binaries to disk. Files are streamed
// into a temp file and renamed into place only after the checksum is
// computed, so a crash never leaves a partial file under the final name.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
)

// Result describes a completed download
type Result struct {
	Path     string
	Checksum string
	Size     int64
}

// Downloader fetches photo binaries into a target directory
type Downloader struct {
	httpClient *http.Client
	baseDir    string
	logger     logger.Logger
}

// New creates a downloader writing into baseDir
func New(baseDir string, timeout time.Duration, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Downloader{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseDir: baseDir,
		logger:  log,
	}
}

// Fetch downloads url into baseDir under filename and returns the file's
// SHA-256 checksum and size. The final file appears atomically.
func (d *Downloader) Fetch(ctx context.Context, url, filename string) (*Result, error) {
	if err := os.MkdirAll(d.baseDir, 0755); err != nil {
		return nil, downloadErr(fmt.Sprintf("failed to create download directory: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, downloadErr(fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("download request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, downloadErrCode(fmt.Sprintf("download returned status %d", resp.StatusCode), resp.StatusCode)
	}

	finalPath := filepath.Join(d.baseDir, filename)

	// Temp file lives in the target directory so the rename stays on one
	// filesystem
	tmp, err := os.CreateTemp(d.baseDir, "."+filename+".tmp-*")
	if err != nil {
		return nil, downloadErr(fmt.Sprintf("failed to create temp file: %v", err))
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(resp.Body, hasher))
	if err != nil {
		cleanup()
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("download interrupted: %v", err),
		}
	}

	if size == 0 {
		cleanup()
		return nil, downloadErr("downloaded file is empty")
	}

	if resp.ContentLength > 0 && size != resp.ContentLength {
		cleanup()
		return nil, downloadErr(fmt.Sprintf("size mismatch: got %d bytes, expected %d", size, resp.ContentLength))
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, downloadErr(fmt.Sprintf("failed to sync temp file: %v", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, downloadErr(fmt.Sprintf("failed to close temp file: %v", err))
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, downloadErr(fmt.Sprintf("failed to move file into place: %v", err))
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))

	d.logger.DebugWithFields("downloaded file", map[string]interface{}{
		"path":     finalPath,
		"size":     size,
		"checksum": checksum,
	})

	return &Result{
		Path:     finalPath,
		Checksum: checksum,
		Size:     size,
	}, nil
}

// BaseDir returns the directory downloads are written to
func (d *Downloader) BaseDir() string {
	return d.baseDir
}

func downloadErr(msg string) error {
	return &apperrors.Error{
		Type:    apperrors.ErrorTypeDownload,
		Message: msg,
	}
}

func downloadErrCode(msg string, code int) error {
	return &apperrors.Error{
		Type:    apperrors.ErrorTypeDownload,
		Message: msg,
		Code:    code,
	}
}
