package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// imageFile pairs a committed row with the fields reconciliation needs
type imageFile struct {
	ID       string `db:"id"`
	Filename string `db:"filename"`
	Checksum string `db:"checksum"`
}

// Health checks store integrity: the SQLite integrity check, referential
// orphans, and — when imageDir is given — reconciliation against the
// filesystem: every committed row must have its file on disk with a
// matching checksum, and every file must have a row.
func (s *Store) Health(ctx context.Context, imageDir string) (*HealthReport, error) {
	report := &HealthReport{}

	var result string
	if err := s.db.GetContext(ctx, &result, `PRAGMA integrity_check`); err != nil {
		return nil, persistErr(fmt.Errorf("integrity check failed to run: %w", err))
	}
	report.IntegrityOK = result == "ok"
	report.IntegrityDetail = result

	if err := s.db.GetContext(ctx, &report.OrphanedCategories, `
		SELECT COUNT(*) FROM image_categories ic
		WHERE NOT EXISTS (SELECT 1 FROM images i WHERE i.id = ic.image_id)
		   OR NOT EXISTS (SELECT 1 FROM categories c WHERE c.id = ic.category_id)`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count orphaned category links: %w", err))
	}

	if err := s.db.GetContext(ctx, &report.OrphanedURLLogs, `
		SELECT COUNT(*) FROM download_urls du
		WHERE NOT EXISTS (SELECT 1 FROM images i WHERE i.id = du.image_id)`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count orphaned url logs: %w", err))
	}

	if err := s.db.GetContext(ctx, &report.MissingChecksums, `
		SELECT COUNT(*) FROM images WHERE checksum = '' OR checksum IS NULL`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count missing checksums: %w", err))
	}

	if err := s.db.GetContext(ctx, &report.TotalImages,
		`SELECT COUNT(*) FROM images`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to count images: %w", err))
	}

	if imageDir != "" {
		if err := s.checkFiles(ctx, imageDir, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// checkFiles reconciles committed rows against the download directory
func (s *Store) checkFiles(ctx context.Context, imageDir string, report *HealthReport) error {
	var rows []imageFile
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, filename, checksum FROM images`); err != nil {
		return persistErr(fmt.Errorf("failed to load image files: %w", err))
	}

	known := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		known[row.Filename] = struct{}{}

		path := filepath.Join(imageDir, row.Filename)
		sum, err := fileChecksum(path)
		if os.IsNotExist(err) {
			report.MissingFiles++
			continue
		}
		if err != nil {
			return persistErr(fmt.Errorf("failed to checksum %s: %w", path, err))
		}
		if sum != row.Checksum {
			report.ChecksumMismatches++
		}
	}

	entries, err := os.ReadDir(imageDir)
	if os.IsNotExist(err) {
		// Nothing downloaded yet; missing files are already counted
		return nil
	}
	if err != nil {
		return persistErr(fmt.Errorf("failed to read image directory: %w", err))
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := known[e.Name()]; !ok {
			report.OrphanFiles++
		}
	}

	return nil
}

// fileChecksum returns the hex SHA-256 of the file at path
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Repair restores consistency between the store and the filesystem with
// the minimal safe policy: rows whose file is missing are deleted, files
// with no matching row are deleted, and orphaned join/audit rows are
// removed. Rows whose file has a mismatched checksum are reported by
// Health but left alone.
func (s *Store) Repair(ctx context.Context, imageDir string) (*HealthReport, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistErr(fmt.Errorf("failed to begin repair transaction: %w", err))
	}
	defer tx.Rollback()

	var orphanFiles []string
	if imageDir != "" {
		var rows []imageFile
		if err := tx.SelectContext(ctx, &rows,
			`SELECT id, filename, checksum FROM images`); err != nil {
			return nil, persistErr(fmt.Errorf("failed to load image files: %w", err))
		}

		known := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			known[row.Filename] = struct{}{}

			if _, err := os.Stat(filepath.Join(imageDir, row.Filename)); os.IsNotExist(err) {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM images WHERE id = ?`, row.ID); err != nil {
					return nil, persistErr(fmt.Errorf("failed to delete row for missing file %s: %w", row.Filename, err))
				}
				s.logger.WarnWithFields("removed record with missing file", map[string]interface{}{
					"image_id": row.ID,
					"filename": row.Filename,
				})
			}
		}

		entries, err := os.ReadDir(imageDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, persistErr(fmt.Errorf("failed to read image directory: %w", err))
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if _, ok := known[e.Name()]; !ok {
				orphanFiles = append(orphanFiles, filepath.Join(imageDir, e.Name()))
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM image_categories
		WHERE NOT EXISTS (SELECT 1 FROM images i WHERE i.id = image_categories.image_id)
		   OR NOT EXISTS (SELECT 1 FROM categories c WHERE c.id = image_categories.category_id)`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to remove orphaned category links: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM download_urls
		WHERE NOT EXISTS (SELECT 1 FROM images i WHERE i.id = download_urls.image_id)`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to remove orphaned url logs: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM categories
		WHERE NOT EXISTS (SELECT 1 FROM image_categories ic WHERE ic.category_id = categories.id)`); err != nil {
		return nil, persistErr(fmt.Errorf("failed to remove empty categories: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, persistErr(fmt.Errorf("failed to commit repair: %w", err))
	}

	// Files are removed only after the row deletions are durable
	for _, path := range orphanFiles {
		if err := os.Remove(path); err != nil {
			return nil, persistErr(fmt.Errorf("failed to remove orphan file %s: %w", path, err))
		}
		s.logger.WarnWithFields("removed orphan file", map[string]interface{}{
			"path": path,
		})
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return nil, persistErr(fmt.Errorf("vacuum failed: %w", err))
	}

	s.logger.Info("store repair completed")

	return s.Health(ctx, imageDir)
}
