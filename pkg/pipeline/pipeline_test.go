package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alisonjoe/unsplash-downloader/pkg/dedupe"
	"github.com/alisonjoe/unsplash-downloader/pkg/downloader"
	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
	"github.com/alisonjoe/unsplash-downloader/pkg/store"
	"github.com/alisonjoe/unsplash-downloader/pkg/unsplash"
)

// fakeLister serves pre-canned pages keyed by page number
type fakeLister struct {
	pages map[int][]unsplash.Photo
	errs  map[int]error
	calls []int
}

func (f *fakeLister) ListPhotos(ctx context.Context, page, perPage int) ([]unsplash.Photo, error) {
	f.calls = append(f.calls, page)
	if err, ok := f.errs[page]; ok {
		return nil, err
	}
	return f.pages[page], nil
}

// fakeFetcher pretends to download, failing for IDs in failIDs
type fakeFetcher struct {
	failIDs map[string]bool
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, filename string) (*downloader.Result, error) {
	f.fetched = append(f.fetched, filename)
	if f.failIDs[filename] {
		return nil, apperrors.New(apperrors.ErrorTypeDownload, "simulated download failure")
	}
	return &downloader.Result{
		Path:     "/downloads/" + filename,
		Checksum: "sha256-" + filename,
		Size:     100,
	}, nil
}

func photo(id string, tags ...string) unsplash.Photo {
	p := unsplash.Photo{
		ID: id,
		Urls: unsplash.Urls{
			Regular: "https://example.com/" + id + ".jpg",
		},
		User: unsplash.User{Username: "tester", Name: "Tester"},
	}
	for _, tag := range tags {
		p.Tags = append(p.Tags, unsplash.Tag{Title: tag})
	}
	return p
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{
		Logger: logger.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPipeline(t *testing.T, s *store.Store, lister *fakeLister, fetcher *fakeFetcher, opts Options) *Pipeline {
	t.Helper()
	idx, err := dedupe.Load(context.Background(), s)
	require.NoError(t, err)
	opts.Logger = logger.NewNopLogger()
	return New(lister, fetcher, s, idx, opts)
}

func TestRunDownloadsNewPhotosAndSkipsKnown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// One photo is already committed; the fetched page holds three items,
	// two of them new
	require.NoError(t, s.Commit(ctx, &store.ImageRecord{
		ID: "known1", Filename: "known1.jpg", Checksum: "abc",
	}, nil))

	lister := &fakeLister{pages: map[int][]unsplash.Photo{
		1: {photo("known1"), photo("new1", "nature"), photo("new2")},
	}}
	fetcher := &fakeFetcher{}

	p := newPipeline(t, s, lister, fetcher, Options{BatchSize: 3, MaxPages: 1})

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateDone, summary.State)
	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, []string{"new1.jpg", "new2.jpg"}, fetcher.fetched)

	// Both new photos are committed with their checksums
	detail, err := s.GetImageDetail(ctx, "new1")
	require.NoError(t, err)
	assert.Equal(t, "sha256-new1.jpg", detail.Image.Checksum)
	assert.Contains(t, detail.Categories, "nature")

	// Cursor advanced past the processed page
	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cursor.Page)
	assert.EqualValues(t, summary.RunID, cursor.RunID)
}

func TestRunIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	page := []unsplash.Photo{photo("a"), photo("b")}

	lister := &fakeLister{pages: map[int][]unsplash.Photo{1: page}}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{MaxPages: 1})

	first, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Downloaded)

	// A second run over the same content downloads nothing. Reset the
	// cursor so the same page is served again.
	require.NoError(t, s.AdvanceCursor(ctx, 1, first.RunID))

	lister2 := &fakeLister{pages: map[int][]unsplash.Photo{1: page}}
	fetcher2 := &fakeFetcher{}
	p2 := newPipeline(t, s, lister2, fetcher2, Options{MaxPages: 1})

	second, err := p2.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Downloaded)
	assert.Equal(t, 2, second.Skipped)
	assert.Empty(t, fetcher2.fetched)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalImages)
}

func TestRunResumesFromPersistedCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AdvanceCursor(ctx, 4, 1))

	lister := &fakeLister{pages: map[int][]unsplash.Photo{
		4: {photo("p4")},
		5: {}, // feed ends
	}}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{})

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5}, lister.calls, "run must start at the persisted cursor")
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, StateDone, summary.State)
}

func TestRunRecordsDownloadFailureAndContinues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lister := &fakeLister{pages: map[int][]unsplash.Photo{
		1: {photo("good"), photo("bad")},
	}}
	fetcher := &fakeFetcher{failIDs: map[string]bool{"bad.jpg": true}}
	p := newPipeline(t, s, lister, fetcher, Options{MaxPages: 1})

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, StateDone, summary.State)

	// The failure landed in the error log with its phase
	entries, err := s.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bad", entries[0].ImageID.String)
	assert.Equal(t, string(apperrors.PhaseDownload), entries[0].Phase)
	assert.Equal(t, "download", entries[0].ErrorClass)

	// A failed item is not marked known, so the next run retries it
	exists, err := s.HasImage(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, exists)

	// Cursor still advanced; the page reached a terminal state for every item
	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cursor.Page)
}

func TestRunAbortsOnFetchFailureWithoutAdvancing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lister := &fakeLister{
		pages: map[int][]unsplash.Photo{1: {photo("one")}},
		errs: map[int]error{
			2: apperrors.New(apperrors.ErrorTypeRateLimit, "rate limit exceeded"),
		},
	}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{})

	summary, err := p.Run(ctx)
	require.Error(t, err)

	var apiErr *apperrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.ErrorTypeRateLimit, apiErr.Type)
	assert.Equal(t, StateAborted, summary.State)

	// Page 1 completed, so its advance survives the abort
	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cursor.Page)

	// Work from page 1 is preserved
	exists, err := s.HasImage(ctx, "one")
	require.NoError(t, err)
	assert.True(t, exists)

	// The fetch failure is in the error log
	entries, err := s.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(apperrors.PhaseFetch), entries[0].Phase)
}

// brokenStore fails every Commit and delegates the rest to the real store
type brokenStore struct {
	*store.Store
	commits int
}

func (b *brokenStore) Commit(ctx context.Context, rec *store.ImageRecord, categories []string) error {
	b.commits++
	return apperrors.New(apperrors.ErrorTypePersistence, "disk full")
}

func TestRunAbortsWhenPersistenceFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lister := &fakeLister{pages: map[int][]unsplash.Photo{
		1: {photo("one"), photo("two")},
	}}
	fetcher := &fakeFetcher{}
	broken := &brokenStore{Store: s}

	idx, err := dedupe.Load(ctx, s)
	require.NoError(t, err)
	p := New(lister, fetcher, broken, idx, Options{Logger: logger.NewNopLogger()})

	summary, err := p.Run(ctx)
	require.Error(t, err, "a dead store must abort the run, not degrade to skipping items")

	var apiErr *apperrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperrors.ErrorTypePersistence, apiErr.Type)
	assert.Equal(t, StateAborted, summary.State)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Downloaded)
	assert.Equal(t, 2, broken.commits, "the failing item gets exactly one retry")

	// The abort happened mid-page, so the cursor did not advance
	cursor, err := s.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cursor.Page)

	// The persistence failure is in the error log with its single retry
	entries, err := s.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(apperrors.PhasePersist), entries[0].Phase)
	assert.Equal(t, "persistence", entries[0].ErrorClass)
	assert.Equal(t, 1, entries[0].RetryCount)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeLister{pages: map[int][]unsplash.Photo{1: {photo("x")}}}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{})

	summary, err := p.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateAborted, summary.State)
	assert.Empty(t, fetcher.fetched)
}

func TestRunAttachesExtraCategories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lister := &fakeLister{pages: map[int][]unsplash.Photo{
		1: {photo("tagged", "water")},
	}}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{
		MaxPages:        1,
		ExtraCategories: []string{"wallpapers"},
	})

	_, err := p.Run(ctx)
	require.NoError(t, err)

	detail, err := s.GetImageDetail(ctx, "tagged")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"water", "wallpapers"}, detail.Categories)
}

func TestRunHonorsMaxPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lister := &fakeLister{pages: map[int][]unsplash.Photo{}}
	for i := 1; i <= 10; i++ {
		lister.pages[i] = []unsplash.Photo{photo(fmt.Sprintf("p%d", i))}
	}
	fetcher := &fakeFetcher{}
	p := newPipeline(t, s, lister, fetcher, Options{MaxPages: 3})

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 4, summary.NextPage)
}
