package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations are applied in order inside a single transaction. Statements
// must stay idempotent (IF NOT EXISTS) so reopening an existing store is
// always safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS images (
		id              TEXT PRIMARY KEY,
		filename        TEXT NOT NULL UNIQUE,
		description     TEXT,
		alt_description TEXT,
		user_name       TEXT,
		user_username   TEXT,
		url_raw         TEXT,
		url_full        TEXT,
		url_regular     TEXT,
		url_small       TEXT,
		url_thumb       TEXT,
		width           INTEGER NOT NULL DEFAULT 0,
		height          INTEGER NOT NULL DEFAULT 0,
		color           TEXT,
		likes           INTEGER NOT NULL DEFAULT 0,
		downloaded_at   TIMESTAMP NOT NULL,
		file_size       INTEGER NOT NULL DEFAULT 0,
		checksum        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS categories (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS image_categories (
		image_id    TEXT NOT NULL,
		category_id INTEGER NOT NULL,
		PRIMARY KEY (image_id, category_id),
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE,
		FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS fetch_cursor (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		page       INTEGER NOT NULL DEFAULT 1,
		run_id     INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS error_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id    TEXT,
		phase       TEXT NOT NULL,
		error_class TEXT NOT NULL,
		message     TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS download_urls (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id   TEXT NOT NULL,
		url_type   TEXT NOT NULL,
		url        TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS download_stats (
		date      TEXT PRIMARY KEY,
		downloads INTEGER NOT NULL DEFAULT 0,
		bytes     INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_images_downloaded_at ON images(downloaded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_images_user_username ON images(user_username)`,
	`CREATE INDEX IF NOT EXISTS idx_image_categories_category ON image_categories(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_error_logs_created_at ON error_logs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_download_urls_image ON download_urls(image_id)`,
}

// migrate creates the schema if it does not exist
func migrate(db *sqlx.DB) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	return tx.Commit()
}
