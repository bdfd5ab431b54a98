package store

import (
	"database/sql"
	"time"
)

// ImageRecord is a committed photo's metadata row
type ImageRecord struct {
	ID             string         `db:"id"`
	Filename       string         `db:"filename"`
	Description    sql.NullString `db:"description"`
	AltDescription sql.NullString `db:"alt_description"`
	UserName       sql.NullString `db:"user_name"`
	UserUsername   sql.NullString `db:"user_username"`
	URLRaw         sql.NullString `db:"url_raw"`
	URLFull        sql.NullString `db:"url_full"`
	URLRegular     sql.NullString `db:"url_regular"`
	URLSmall       sql.NullString `db:"url_small"`
	URLThumb       sql.NullString `db:"url_thumb"`
	Width          int            `db:"width"`
	Height         int            `db:"height"`
	Color          sql.NullString `db:"color"`
	Likes          int            `db:"likes"`
	DownloadedAt   time.Time      `db:"downloaded_at"`
	FileSize       int64          `db:"file_size"`
	Checksum       string         `db:"checksum"`
}

// Cursor is the singleton fetch position. Page is the next page to fetch;
// RunID identifies the acquisition run that last advanced it.
type Cursor struct {
	Page      int       `db:"page"`
	RunID     int64     `db:"run_id"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ErrorLogEntry records a per-item failure for later inspection
type ErrorLogEntry struct {
	ID         int64          `db:"id"`
	ImageID    sql.NullString `db:"image_id"`
	Phase      string         `db:"phase"`
	ErrorClass string         `db:"error_class"`
	Message    string         `db:"message"`
	RetryCount int            `db:"retry_count"`
	CreatedAt  time.Time      `db:"created_at"`
}

// URLLogEntry is an audit row for a stored photo URL
type URLLogEntry struct {
	ID        int64     `db:"id"`
	ImageID   string    `db:"image_id"`
	URLType   string    `db:"url_type"`
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
}

// CategoryCount pairs a category name with the number of images in it
type CategoryCount struct {
	Name  string `db:"name"`
	Count int    `db:"count"`
}

// DailyStat aggregates downloads for one calendar day
type DailyStat struct {
	Date      string `db:"date"`
	Downloads int    `db:"downloads"`
	Bytes     int64  `db:"bytes"`
}

// Stats is the summary returned by the stats reporting query
type Stats struct {
	TotalImages   int
	TotalBytes    int64
	Categories    []CategoryCount
	RecentDays    []DailyStat
	ErrorCount    int
	CursorPage    int
	CursorRunID   int64
	CursorUpdated time.Time
}

// ImageDetail is the full view of one stored image
type ImageDetail struct {
	Image      ImageRecord
	Categories []string
	URLs       []URLLogEntry
}

// HealthReport summarizes store integrity and its consistency with the
// download directory
type HealthReport struct {
	IntegrityOK        bool
	IntegrityDetail    string
	OrphanedCategories int
	OrphanedURLLogs    int
	MissingChecksums   int
	TotalImages        int

	// Filesystem reconciliation, populated when a download directory
	// was given
	MissingFiles       int
	ChecksumMismatches int
	OrphanFiles        int
}

// Issues reports whether the store needs attention. Checksum mismatches
// count even though repair leaves them alone; the fix is a manual
// re-download, and a clean exit would hide them.
func (r *HealthReport) Issues() bool {
	return !r.IntegrityOK ||
		r.OrphanedCategories > 0 ||
		r.OrphanedURLLogs > 0 ||
		r.MissingFiles > 0 ||
		r.ChecksumMismatches > 0 ||
		r.OrphanFiles > 0
}
