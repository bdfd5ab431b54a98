package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{
		EnableURLLogging: true,
		Logger:           logger.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string) *ImageRecord {
	return &ImageRecord{
		ID:           id,
		Filename:     id + ".jpg",
		Description:  sql.NullString{String: "a test photo", Valid: true},
		UserName:     sql.NullString{String: "Jane Doe", Valid: true},
		UserUsername: sql.NullString{String: "jane", Valid: true},
		URLRegular:   sql.NullString{String: "https://example.com/" + id + ".jpg", Valid: true},
		Width:        4000,
		Height:       3000,
		Likes:        7,
		DownloadedAt: time.Now().UTC(),
		FileSize:     1024,
		Checksum:     "deadbeef" + id,
	}
}

func TestCommitAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, testRecord("img1"), []string{"nature", "water"}))

	exists, err := s.HasImage(ctx, "img1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.HasImage(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	detail, err := s.GetImageDetail(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, "img1.jpg", detail.Image.Filename)
	assert.Equal(t, []string{"nature", "water"}, detail.Categories)
	assert.NotEmpty(t, detail.URLs, "expected URL audit rows with logging enabled")

	_, err = s.GetImageDetail(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitIsAtomicOnDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, testRecord("img1"), []string{"nature"}))

	// Second commit of the same ID must fail and leave no partial rows
	err := s.Commit(ctx, testRecord("img1"), []string{"other"})
	require.Error(t, err)

	var apiErr *apperrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.ErrorTypePersistence, apiErr.Type)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	for _, c := range cats {
		assert.NotEqual(t, "other", c.Name, "rolled-back commit must not leave categories behind")
	}
}

func TestCommitRequiresChecksum(t *testing.T) {
	s := openTestStore(t)

	rec := testRecord("img1")
	rec.Checksum = ""
	err := s.Commit(context.Background(), rec, nil)
	require.Error(t, err)
}

func TestURLLoggingDisabled(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{
		EnableURLLogging: false,
		Logger:           logger.NewNopLogger(),
	})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, testRecord("img1"), nil))

	urls, err := s.ListURLLogs(ctx, "img1", 10)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Fresh store starts at page 1
	c, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Page)
	assert.EqualValues(t, 0, c.RunID)

	runID, err := s.NextRunID(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, runID)

	require.NoError(t, s.AdvanceCursor(ctx, 5, runID))

	c, err = s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Page)
	assert.EqualValues(t, 1, c.RunID)

	// Advancing again overwrites the singleton
	require.NoError(t, s.AdvanceCursor(ctx, 6, runID))
	c, err = s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Page)
}

func TestCursorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, testRecord("img1"), nil))
	require.NoError(t, s.AdvanceCursor(ctx, 3, 1))
	require.NoError(t, s.Close())

	s2, err := Open(path, Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	defer s2.Close()

	c, err := s2.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Page)

	ids, err := s2.LoadKnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"img1"}, ids)
}

func TestRecordError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordError(ctx, "img1", apperrors.PhaseDownload, "download", "connection reset", 2))
	require.NoError(t, s.RecordError(ctx, "", apperrors.PhaseFetch, "rate_limit", "quota exhausted", 3))

	entries, err := s.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first
	assert.Equal(t, "rate_limit", entries[0].ErrorClass)
	assert.False(t, entries[0].ImageID.Valid)
	assert.Equal(t, "download", entries[1].ErrorClass)
	assert.Equal(t, "img1", entries[1].ImageID.String)
}

func TestStatsAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, testRecord("img1"), []string{"nature"}))
	require.NoError(t, s.Commit(ctx, testRecord("img2"), []string{"nature", "city"}))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalImages)
	assert.EqualValues(t, 2048, stats.TotalBytes)
	require.NotEmpty(t, stats.Categories)
	assert.Equal(t, "nature", stats.Categories[0].Name)
	assert.Equal(t, 2, stats.Categories[0].Count)
	require.NotEmpty(t, stats.RecentDays)
	assert.Equal(t, 2, stats.RecentDays[0].Downloads)

	results, err := s.Search(ctx, "jane", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(ctx, "img1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "img1", results[0].ID)

	// Keyword search reaches tags too
	results, err = s.Search(ctx, "city", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "img2", results[0].ID)

	results, err = s.Search(ctx, "nature", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	inCat, err := s.ImagesInCategory(ctx, "city", 10)
	require.NoError(t, err)
	require.Len(t, inCat, 1)
	assert.Equal(t, "img2", inCat[0].ID)
}

func TestListTables(t *testing.T) {
	s := openTestStore(t)

	tables, err := s.ListTables(context.Background())
	require.NoError(t, err)

	for _, name := range []string{"images", "categories", "image_categories", "fetch_cursor", "error_logs", "download_urls", "download_stats"} {
		_, ok := tables[name]
		assert.True(t, ok, "expected table %s", name)
	}
}

func TestHealthAndRepair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, testRecord("img1"), []string{"nature"}))

	report, err := s.Health(ctx, "")
	require.NoError(t, err)
	assert.True(t, report.IntegrityOK)
	assert.Zero(t, report.OrphanedCategories)

	// Manufacture an orphaned category link with foreign keys off
	_, err = s.DB().Exec(`PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO image_categories (image_id, category_id) VALUES ('ghost', 999)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO download_urls (image_id, url_type, url, created_at) VALUES ('ghost', 'raw', 'https://example.com/x', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	report, err = s.Health(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanedCategories)
	assert.Equal(t, 1, report.OrphanedURLLogs)

	repaired, err := s.Repair(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, repaired.OrphanedCategories)
	assert.Zero(t, repaired.OrphanedURLLogs)
	assert.Equal(t, 1, repaired.TotalImages, "repair must not touch intact images")
}

func writeImageFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestHealthAndRepairReconcileFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	imageDir := t.TempDir()

	intact := testRecord("img1")
	intact.Checksum = writeImageFile(t, imageDir, intact.Filename, "intact bytes")
	require.NoError(t, s.Commit(ctx, intact, []string{"nature"}))

	corrupt := testRecord("img2")
	corrupt.Checksum = writeImageFile(t, imageDir, corrupt.Filename, "original bytes")
	require.NoError(t, s.Commit(ctx, corrupt, nil))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, corrupt.Filename), []byte("tampered"), 0o644))

	gone := testRecord("img3")
	require.NoError(t, s.Commit(ctx, gone, nil))

	writeImageFile(t, imageDir, "stray.jpg", "nobody owns me")

	report, err := s.Health(ctx, imageDir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MissingFiles)
	assert.Equal(t, 1, report.ChecksumMismatches)
	assert.Equal(t, 1, report.OrphanFiles)
	assert.True(t, report.Issues())

	repaired, err := s.Repair(ctx, imageDir)
	require.NoError(t, err)
	assert.Zero(t, repaired.MissingFiles)
	assert.Zero(t, repaired.OrphanFiles)
	assert.Equal(t, 1, repaired.ChecksumMismatches, "mismatched files are reported, never deleted")
	assert.Equal(t, 2, repaired.TotalImages)
	assert.True(t, repaired.Issues(), "a surviving mismatch must keep health red")

	exists, err := s.HasImage(ctx, "img3")
	require.NoError(t, err)
	assert.False(t, exists, "record without a file must be removed")

	exists, err = s.HasImage(ctx, "img2")
	require.NoError(t, err)
	assert.True(t, exists, "mismatched record must survive repair")

	_, err = os.Stat(filepath.Join(imageDir, "stray.jpg"))
	assert.True(t, os.IsNotExist(err), "orphan file must be removed")

	_, err = os.Stat(filepath.Join(imageDir, intact.Filename))
	assert.NoError(t, err, "intact file must survive repair")
}
