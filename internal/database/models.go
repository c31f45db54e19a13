package database

import (
	"time"

	"media-library/internal/mediatypes"
)

// MediaRecord is one row of the photos table.
type MediaRecord struct {
	ID               int64           `json:"id"`
	OriginalFilename string          `json:"original_filename"`
	Path             string          `json:"current_path"`
	DateTaken        *string         `json:"date_taken"`
	ContentHash      string          `json:"content_hash"`
	FileSize         int64           `json:"file_size"`
	Kind             mediatypes.Kind `json:"file_type"`
	Width            *int            `json:"width"`
	Height           *int            `json:"height"`
	Rating           *int            `json:"rating"`
}

// Date returns the capture date and whether one is set.
func (r *MediaRecord) Date() (string, bool) {
	if r.DateTaken == nil {
		return "", false
	}
	return *r.DateTaken, true
}

// Tombstone is the snapshot kept for a deleted record until it is restored
// or purged. ID equals the deleted record's ID.
type Tombstone struct {
	ID            int64       `json:"id"`
	OriginalPath  string      `json:"original_path"`
	TrashFilename string      `json:"trash_filename"`
	DeletedAt     time.Time   `json:"deleted_at"`
	Record        MediaRecord `json:"photo_data"`
}

// HashCacheEntry is one persisted digest keyed on a file's identity at the
// time it was hashed.
type HashCacheEntry struct {
	Path        string
	MtimeNs     int64
	Size        int64
	ContentHash string
	CachedAt    time.Time
}

// LibraryStats summarizes the index.
type LibraryStats struct {
	TotalPhotos int   `json:"total_photos"`
	TotalVideos int   `json:"total_videos"`
	TotalBytes  int64 `json:"total_bytes"`
	TrashItems  int   `json:"trash_items"`
	WithoutDate int   `json:"without_date"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}
