package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
)

// Store is the SQLite-backed metadata store. A single connection with WAL
// journaling keeps writers serialized while the batch job runs.
type Store struct {
	db         *sqlx.DB
	logger     logger.Logger
	urlLogging bool
}

// Options configures a Store
type Options struct {
	// EnableURLLogging records every stored photo URL in the audit table
	EnableURLLogging bool
	Logger           logger.Logger
}

// Open opens (and if needed creates) the store at the given path
func Open(path string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, persistErr(fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, persistErr(fmt.Errorf("failed to open database: %w", err))
	}

	// SQLite tolerates one writer; more connections only add lock churn
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, persistErr(fmt.Errorf("failed to ping database: %w", err))
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, persistErr(fmt.Errorf("failed to migrate schema: %w", err))
	}

	return &Store{
		db:         db,
		logger:     opts.Logger,
		urlLogging: opts.EnableURLLogging,
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for reporting queries
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Commit atomically records a downloaded photo: its metadata row, its
// category links, the URL audit rows and the daily stats bump. Either
// everything lands or nothing does.
func (s *Store) Commit(ctx context.Context, rec *ImageRecord, categories []string) error {
	if rec == nil || rec.ID == "" {
		return persistErr(errors.New("image record requires an id"))
	}
	if rec.Checksum == "" {
		return persistErr(fmt.Errorf("image %s has no checksum", rec.ID))
	}
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO images (
			id, filename, description, alt_description, user_name, user_username,
			url_raw, url_full, url_regular, url_small, url_thumb,
			width, height, color, likes, downloaded_at, file_size, checksum
		) VALUES (
			:id, :filename, :description, :alt_description, :user_name, :user_username,
			:url_raw, :url_full, :url_regular, :url_small, :url_thumb,
			:width, :height, :color, :likes, :downloaded_at, :file_size, :checksum
		)`, rec); err != nil {
		return persistErr(fmt.Errorf("failed to insert image %s: %w", rec.ID, err))
	}

	for _, name := range categories {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
			return persistErr(fmt.Errorf("failed to insert category %q: %w", name, err))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO image_categories (image_id, category_id)
			SELECT ?, id FROM categories WHERE name = ?`, rec.ID, name); err != nil {
			return persistErr(fmt.Errorf("failed to link category %q: %w", name, err))
		}
	}

	if s.urlLogging {
		now := time.Now().UTC()
		for urlType, url := range map[string]sql.NullString{
			"raw":     rec.URLRaw,
			"full":    rec.URLFull,
			"regular": rec.URLRegular,
			"small":   rec.URLSmall,
			"thumb":   rec.URLThumb,
		} {
			if !url.Valid || url.String == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO download_urls (image_id, url_type, url, created_at)
				VALUES (?, ?, ?, ?)`, rec.ID, urlType, url.String, now); err != nil {
				return persistErr(fmt.Errorf("failed to log URL for %s: %w", rec.ID, err))
			}
		}
	}

	day := rec.DownloadedAt.UTC().Format("2006-01-02")
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO download_stats (date, downloads, bytes) VALUES (?, 1, ?)
		ON CONFLICT(date) DO UPDATE SET
			downloads = downloads + 1,
			bytes = bytes + excluded.bytes`, day, rec.FileSize); err != nil {
		return persistErr(fmt.Errorf("failed to update download stats: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return persistErr(fmt.Errorf("failed to commit image %s: %w", rec.ID, err))
	}

	s.logger.DebugWithFields("committed image", map[string]interface{}{
		"image_id":  rec.ID,
		"filename":  rec.Filename,
		"file_size": rec.FileSize,
	})

	return nil
}

// RecordError appends a failure to the error log. Logging failures are
// reported but never abort the run.
func (s *Store) RecordError(ctx context.Context, imageID string, phase apperrors.Phase, errorClass, message string, retryCount int) error {
	var id sql.NullString
	if imageID != "" {
		id = sql.NullString{String: imageID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_logs (image_id, phase, error_class, message, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(phase), errorClass, message, retryCount, time.Now().UTC())
	if err != nil {
		return persistErr(fmt.Errorf("failed to record error: %w", err))
	}
	return nil
}

// LoadCursor returns the persisted fetch position, or a page-1 cursor for
// a fresh store.
func (s *Store) LoadCursor(ctx context.Context) (*Cursor, error) {
	var c Cursor
	err := s.db.GetContext(ctx, &c,
		`SELECT page, run_id, updated_at FROM fetch_cursor WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return &Cursor{Page: 1}, nil
	}
	if err != nil {
		return nil, persistErr(fmt.Errorf("failed to load cursor: %w", err))
	}
	return &c, nil
}

// AdvanceCursor moves the fetch position to the given page. The cursor is
// only advanced after every item of the previous page reached a terminal
// state, so a crash replays at most one page.
func (s *Store) AdvanceCursor(ctx context.Context, page int, runID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_cursor (id, page, run_id, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			page = excluded.page,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		page, runID, time.Now().UTC())
	if err != nil {
		return persistErr(fmt.Errorf("failed to advance cursor to page %d: %w", page, err))
	}

	s.logger.DebugWithFields("advanced cursor", map[string]interface{}{
		"page":   page,
		"run_id": runID,
	})

	return nil
}

// NextRunID allocates a run identifier one past the last recorded run
func (s *Store) NextRunID(ctx context.Context) (int64, error) {
	c, err := s.LoadCursor(ctx)
	if err != nil {
		return 0, err
	}
	return c.RunID + 1, nil
}

// LoadKnownIDs returns the IDs of all committed images, used to seed the
// deduplication index.
func (s *Store) LoadKnownIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM images`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load known ids: %w", err))
	}
	return ids, nil
}

// HasImage reports whether an image with the given ID is committed
func (s *Store) HasImage(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM images WHERE id = ?`, id); err != nil {
		return false, persistErr(fmt.Errorf("failed to check image %s: %w", id, err))
	}
	return count > 0, nil
}

// persistErr wraps database failures in the persistence error type
func persistErr(err error) error {
	return &apperrors.Error{
		Type:    apperrors.ErrorTypePersistence,
		Message: err.Error(),
	}
}
