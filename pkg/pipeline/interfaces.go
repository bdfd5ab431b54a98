package pipeline

import (
	"context"

	"github.com/alisonjoe/unsplash-downloader/pkg/downloader"
	"github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/store"
	"github.com/alisonjoe/unsplash-downloader/pkg/unsplash"
)

// PhotoLister fetches pages of the photo feed
type PhotoLister interface {
	// ListPhotos returns one page; an empty page means the feed is exhausted
	ListPhotos(ctx context.Context, page, perPage int) ([]unsplash.Photo, error)
}

// BinaryFetcher downloads a photo binary to local storage
type BinaryFetcher interface {
	Fetch(ctx context.Context, url, filename string) (*downloader.Result, error)
}

// MetadataStore is the persistence surface the pipeline needs
type MetadataStore interface {
	Commit(ctx context.Context, rec *store.ImageRecord, categories []string) error
	RecordError(ctx context.Context, imageID string, phase errors.Phase, errorClass, message string, retryCount int) error
	LoadCursor(ctx context.Context) (*store.Cursor, error)
	AdvanceCursor(ctx context.Context, page int, runID int64) error
	NextRunID(ctx context.Context) (int64, error)
}

// DedupeIndex tracks already-acquired photo IDs
type DedupeIndex interface {
	IsKnown(id string) bool
	MarkKnown(id string)
}
