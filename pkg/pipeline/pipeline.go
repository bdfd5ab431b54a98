// Package pipeline drives an acquisition run: fetch a page, filter known
// photos, download the rest, persist their metadata, advance the cursor,
// repeat until the feed ends or a page budget is reached.
package pipeline

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
	"github.com/alisonjoe/unsplash-downloader/pkg/retry"
	"github.com/alisonjoe/unsplash-downloader/pkg/store"
	"github.com/alisonjoe/unsplash-downloader/pkg/unsplash"
)

// State names the phase the pipeline is in
type State string

const (
	StateStart       State = "start"
	StateFetching    State = "fetching"
	StateFiltering   State = "filtering"
	StateDownloading State = "downloading"
	StatePersisting  State = "persisting"
	StateAdvancing   State = "advancing"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// Options configures a Pipeline
type Options struct {
	// BatchSize is the page size requested from the API
	BatchSize int
	// MaxPages bounds the number of pages per run; 0 means run until the
	// feed is exhausted
	MaxPages int
	// ExtraCategories are attached to every committed photo in addition
	// to its own tags
	ExtraCategories []string
	Logger          logger.Logger
}

// Summary reports what a run did
type Summary struct {
	RunID      int64
	State      State
	Pages      int
	Fetched    int
	Skipped    int
	Downloaded int
	Failed     int
	StartPage  int
	NextPage   int
}

// Pipeline orchestrates one acquisition run
type Pipeline struct {
	lister  PhotoLister
	fetcher BinaryFetcher
	store   MetadataStore
	index   DedupeIndex
	opts    Options
	logger  logger.Logger
	state   State
}

// New creates a pipeline from its collaborators
func New(lister PhotoLister, fetcher BinaryFetcher, metaStore MetadataStore, index DedupeIndex, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Pipeline{
		lister:  lister,
		fetcher: fetcher,
		store:   metaStore,
		index:   index,
		opts:    opts,
		logger:  opts.Logger,
		state:   StateStart,
	}
}

// State returns the pipeline's current phase
func (p *Pipeline) State() State {
	return p.state
}

// Run executes the acquisition loop. It resumes from the persisted cursor,
// processes pages until the feed ends, the page budget is reached, or an
// unrecoverable error aborts the run. Download failures are recorded and
// skipped; a persistence failure aborts the run, because continuing past a
// broken store would lose data silently.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{State: StateAborted}

	cursor, err := p.store.LoadCursor(ctx)
	if err != nil {
		return summary, err
	}

	runID, err := p.store.NextRunID(ctx)
	if err != nil {
		return summary, err
	}

	summary.RunID = runID
	summary.StartPage = cursor.Page
	summary.NextPage = cursor.Page

	p.logger.InfoWithFields("starting acquisition run", map[string]interface{}{
		"run_id":     runID,
		"start_page": cursor.Page,
		"batch_size": p.opts.BatchSize,
		"max_pages":  p.opts.MaxPages,
	})

	page := cursor.Page
	for {
		if p.opts.MaxPages > 0 && summary.Pages >= p.opts.MaxPages {
			p.logger.InfoWithFields("page budget reached", map[string]interface{}{
				"pages": summary.Pages,
			})
			break
		}

		if err := ctx.Err(); err != nil {
			p.abort(summary)
			return summary, err
		}

		p.state = StateFetching
		photos, err := p.lister.ListPhotos(ctx, page, p.opts.BatchSize)
		if err != nil {
			p.recordPhaseError(ctx, "", apperrors.PhaseFetch, err, retry.Retries(err))
			p.abort(summary)
			return summary, err
		}
		summary.Pages++
		summary.Fetched += len(photos)

		if len(photos) == 0 {
			p.logger.InfoWithFields("feed exhausted", map[string]interface{}{
				"page": page,
			})
			break
		}

		p.state = StateFiltering
		fresh := photos[:0:0]
		for _, photo := range photos {
			if p.index.IsKnown(photo.ID) {
				summary.Skipped++
				continue
			}
			fresh = append(fresh, photo)
		}

		for i := range fresh {
			if err := ctx.Err(); err != nil {
				p.abort(summary)
				return summary, err
			}
			ok, err := p.processPhoto(ctx, &fresh[i])
			if err != nil {
				summary.Failed++
				p.abort(summary)
				return summary, err
			}
			if ok {
				summary.Downloaded++
			} else {
				summary.Failed++
			}
		}

		p.state = StateAdvancing
		page++
		if err := p.store.AdvanceCursor(ctx, page, runID); err != nil {
			p.abort(summary)
			return summary, err
		}
		summary.NextPage = page

		logger.LogBatchProgress(p.logger, page-1, summary.Fetched, summary.Downloaded, summary.Skipped)
	}

	p.state = StateDone
	summary.State = StateDone

	p.logger.InfoWithFields("acquisition run complete", map[string]interface{}{
		"run_id":     runID,
		"pages":      summary.Pages,
		"fetched":    summary.Fetched,
		"skipped":    summary.Skipped,
		"downloaded": summary.Downloaded,
		"failed":     summary.Failed,
	})

	return summary, nil
}

// processPhoto downloads and persists one photo. It returns true on
// success and false for download failures, which are logged to the error
// table and skipped. A non-nil error means the store itself failed and the
// run must abort.
func (p *Pipeline) processPhoto(ctx context.Context, photo *unsplash.Photo) (bool, error) {
	url := photo.DownloadURL()
	if url == "" {
		p.recordPhaseError(ctx, photo.ID, apperrors.PhaseDownload,
			apperrors.New(apperrors.ErrorTypeDownload, "photo has no usable URL"), 0)
		return false, nil
	}

	filename := photo.ID + ".jpg"

	p.state = StateDownloading
	result, err := p.fetcher.Fetch(ctx, url, filename)
	if err != nil {
		p.recordPhaseError(ctx, photo.ID, apperrors.PhaseDownload, err, retry.Retries(err))
		logger.LogDownload(p.logger, photo.ID, filename, 0, err)
		return false, nil
	}

	p.state = StatePersisting
	rec := buildRecord(photo, filename, result.Checksum, result.Size)
	categories := append(photo.TagTitles(), p.opts.ExtraCategories...)

	err = p.store.Commit(ctx, rec, categories)
	if err != nil {
		// One retry covers transient lock contention; a second failure
		// means the store is broken and the run cannot continue safely
		if retryErr := p.store.Commit(ctx, rec, categories); retryErr != nil {
			p.recordPhaseError(ctx, photo.ID, apperrors.PhasePersist, retryErr, 1)
			p.logger.WithField("photo_id", photo.ID).WithError(retryErr).Error("persist failed, aborting run")
			return false, retryErr
		}
	}

	p.index.MarkKnown(photo.ID)
	logger.LogDownload(p.logger, photo.ID, filename, result.Size, nil)
	return true, nil
}

// abort moves the pipeline to the aborted state. The cursor keeps its last
// advanced value so the next run replays the unfinished page.
func (p *Pipeline) abort(summary *Summary) {
	p.state = StateAborted
	summary.State = StateAborted
	p.logger.WarnWithFields("acquisition run aborted", map[string]interface{}{
		"run_id":    summary.RunID,
		"next_page": summary.NextPage,
	})
}

// recordPhaseError logs a failure to the error table, mapping the error to
// its taxonomy class.
func (p *Pipeline) recordPhaseError(ctx context.Context, imageID string, phase apperrors.Phase, err error, retries int) {
	class := string(apperrors.ErrorTypeUnknown)

	var apiErr *apperrors.Error
	if stderrors.As(err, &apiErr) {
		class = string(apiErr.Type)
	}

	if logErr := p.store.RecordError(ctx, imageID, phase, class, err.Error(), retries); logErr != nil {
		p.logger.WithError(logErr).Error("failed to record error")
	}
}

// buildRecord maps an API photo onto a store row
func buildRecord(photo *unsplash.Photo, filename, checksum string, size int64) *store.ImageRecord {
	return &store.ImageRecord{
		ID:             photo.ID,
		Filename:       filename,
		Description:    nullable(photo.Description),
		AltDescription: nullable(photo.AltDescription),
		UserName:       nullable(photo.User.Name),
		UserUsername:   nullable(photo.User.Username),
		URLRaw:         nullable(photo.Urls.Raw),
		URLFull:        nullable(photo.Urls.Full),
		URLRegular:     nullable(photo.Urls.Regular),
		URLSmall:       nullable(photo.Urls.Small),
		URLThumb:       nullable(photo.Urls.Thumb),
		Width:          photo.Width,
		Height:         photo.Height,
		Color:          nullable(photo.Color),
		Likes:          photo.Likes,
		DownloadedAt:   time.Now().UTC(),
		FileSize:       size,
		Checksum:       checksum,
	}
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
