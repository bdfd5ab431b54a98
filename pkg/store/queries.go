package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for images that are not in the store
var ErrNotFound = errors.New("image not found")

// GetStats returns the summary used by the stats report
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.GetContext(ctx, &stats.TotalImages,
		`SELECT COUNT(*) FROM images`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count images: %w", err))
	}

	if err := s.db.GetContext(ctx, &stats.TotalBytes,
		`SELECT COALESCE(SUM(file_size), 0) FROM images`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to sum file sizes: %w", err))
	}

	if err := s.db.SelectContext(ctx, &stats.Categories, `
		SELECT c.name AS name, COUNT(ic.image_id) AS count
		FROM categories c
		LEFT JOIN image_categories ic ON ic.category_id = c.id
		GROUP BY c.id
		ORDER BY count DESC, c.name`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load category counts: %w", err))
	}

	if err := s.db.SelectContext(ctx, &stats.RecentDays, `
		SELECT date, downloads, bytes
		FROM download_stats
		ORDER BY date DESC
		LIMIT 14`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load daily stats: %w", err))
	}

	if err := s.db.GetContext(ctx, &stats.ErrorCount,
		`SELECT COUNT(*) FROM error_logs`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count errors: %w", err))
	}

	cursor, err := s.LoadCursor(ctx)
	if err != nil {
		return nil, err
	}
	stats.CursorPage = cursor.Page
	stats.CursorRunID = cursor.RunID
	stats.CursorUpdated = cursor.UpdatedAt

	return stats, nil
}

// Search finds images whose description, alt description, photographer,
// category or ID match the given term.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]ImageRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + term + "%"
	var images []ImageRecord
	if err := s.db.SelectContext(ctx, &images, `
		SELECT * FROM images
		WHERE id = ?
		   OR description LIKE ?
		   OR alt_description LIKE ?
		   OR user_name LIKE ?
		   OR user_username LIKE ?
		   OR EXISTS (
			SELECT 1 FROM image_categories ic
			JOIN categories c ON c.id = ic.category_id
			WHERE ic.image_id = images.id AND c.name LIKE ?)
		ORDER BY downloaded_at DESC
		LIMIT ?`,
		term, pattern, pattern, pattern, pattern, pattern, limit); err != nil {
		return nil, persistErr(fmt.Errorf("failed to search images: %w", err))
	}
	return images, nil
}

// ListCategories returns every category with its image count
func (s *Store) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	var categories []CategoryCount
	if err := s.db.SelectContext(ctx, &categories, `
		SELECT c.name AS name, COUNT(ic.image_id) AS count
		FROM categories c
		LEFT JOIN image_categories ic ON ic.category_id = c.id
		GROUP BY c.id
		ORDER BY c.name`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to list categories: %w", err))
	}
	return categories, nil
}

// ImagesInCategory returns images linked to the named category
func (s *Store) ImagesInCategory(ctx context.Context, category string, limit int) ([]ImageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var images []ImageRecord
	if err := s.db.SelectContext(ctx, &images, `
		SELECT i.* FROM images i
		JOIN image_categories ic ON ic.image_id = i.id
		JOIN categories c ON c.id = ic.category_id
		WHERE c.name = ?
		ORDER BY i.downloaded_at DESC
		LIMIT ?`, category, limit); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load category %q: %w", category, err))
	}
	return images, nil
}

// GetImageDetail returns the full view of one image
func (s *Store) GetImageDetail(ctx context.Context, id string) (*ImageDetail, error) {
	detail := &ImageDetail{}

	err := s.db.GetContext(ctx, &detail.Image, `SELECT * FROM images WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr(fmt.Errorf("failed to load image %s: %w", id, err))
	}

	if err := s.db.SelectContext(ctx, &detail.Categories, `
		SELECT c.name FROM categories c
		JOIN image_categories ic ON ic.category_id = c.id
		WHERE ic.image_id = ?
		ORDER BY c.name`, id); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load categories for %s: %w", id, err))
	}

	if err := s.db.SelectContext(ctx, &detail.URLs, `
		SELECT id, image_id, url_type, url, created_at
		FROM download_urls
		WHERE image_id = ?
		ORDER BY url_type`, id); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load urls for %s: %w", id, err))
	}

	return detail, nil
}

// ListURLLogs returns URL audit rows, optionally filtered by image ID
func (s *Store) ListURLLogs(ctx context.Context, imageID string, limit int) ([]URLLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var urls []URLLogEntry
	var err error
	if imageID != "" {
		err = s.db.SelectContext(ctx, &urls, `
			SELECT id, image_id, url_type, url, created_at
			FROM download_urls WHERE image_id = ?
			ORDER BY id DESC LIMIT ?`, imageID, limit)
	} else {
		err = s.db.SelectContext(ctx, &urls, `
			SELECT id, image_id, url_type, url, created_at
			FROM download_urls
			ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, persistErr(fmt.Errorf("failed to list url logs: %w", err))
	}
	return urls, nil
}

// RecentErrors returns the newest error log entries
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]ErrorLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var entries []ErrorLogEntry
	if err := s.db.SelectContext(ctx, &entries, `
		SELECT id, image_id, phase, error_class, message, retry_count, created_at
		FROM error_logs
		ORDER BY id DESC
		LIMIT ?`, limit); err != nil {
		return nil, persistErr(fmt.Errorf("failed to load error logs: %w", err))
	}
	return entries, nil
}

// ListTables returns the user tables present in the database with row counts
func (s *Store) ListTables(ctx context.Context) (map[string]int, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to list tables: %w", err))
	}

	counts := make(map[string]int, len(names))
	for _, name := range names {
		var count int
		// Table names come from sqlite_master, not user input
		if err := s.db.GetContext(ctx, &count,
			fmt.Sprintf("SELECT COUNT(*) FROM %q", name)); err != nil {
			return nil, persistErr(fmt.Errorf("failed to count rows in %s: %w", name, err))
		}
		counts[name] = count
	}

	return counts, nil
}
