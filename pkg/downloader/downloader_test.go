package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
)

func TestFetchWritesFileWithChecksum(t *testing.T) {
	content := []byte("fake jpeg bytes for checksum verification")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 5*time.Second, logger.NewNopLogger())

	result, err := d.Fetch(context.Background(), server.URL, "abc123.jpg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Path != filepath.Join(dir, "abc123.jpg") {
		t.Errorf("Unexpected path: %s", result.Path)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), result.Size)
	}

	sum := sha256.Sum256(content)
	if want := hex.EncodeToString(sum[:]); result.Checksum != want {
		t.Errorf("Checksum mismatch: got %s, want %s", result.Checksum, want)
	}

	// Stored bytes match what the server sent
	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Error("Downloaded file content mismatch")
	}
}

func TestFetchEmptyBodyFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 5*time.Second, logger.NewNopLogger())

	_, err := d.Fetch(context.Background(), server.URL, "empty.jpg")
	if err == nil {
		t.Fatal("Expected error for empty body")
	}

	var apiErr *apperrors.Error
	if !errors.As(err, &apiErr) || apiErr.Type != apperrors.ErrorTypeDownload {
		t.Errorf("Expected download error, got %v", err)
	}

	assertNoLeftoverFiles(t, dir)
}

func TestFetchHTTPErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 5*time.Second, logger.NewNopLogger())

	_, err := d.Fetch(context.Background(), server.URL, "missing.jpg")
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}

	var apiErr *apperrors.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected typed error, got %T", err)
	}
	if apiErr.Code != http.StatusNotFound {
		t.Errorf("Expected code 404, got %d", apiErr.Code)
	}

	assertNoLeftoverFiles(t, dir)
}

func TestFetchTruncatedBodyLeavesNoFinalFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Advertise more bytes than are sent
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("only a few bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 5*time.Second, logger.NewNopLogger())

	_, err := d.Fetch(context.Background(), server.URL, "truncated.jpg")
	if err == nil {
		t.Fatal("Expected error for truncated body")
	}

	assertNoLeftoverFiles(t, dir)
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 5*time.Second, logger.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Fetch(ctx, server.URL, "slow.jpg")
	if err == nil {
		t.Fatal("Expected error when context expires")
	}

	assertNoLeftoverFiles(t, dir)
}

// assertNoLeftoverFiles checks the directory holds neither final nor temp
// files after a failed download
func assertNoLeftoverFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".jpg") || strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("Unexpected leftover file: %s", e.Name())
		}
	}
}
