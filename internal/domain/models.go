package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidCount    = errors.New("desired count must be positive")
	ErrUnsupportedKind = errors.New("unsupported media kind")
)

// MediaKind is the closed set of media shapes a Job can target.
type MediaKind string

const (
	MediaKindMovie    MediaKind = "movie"
	MediaKindSeries   MediaKind = "series"
	MediaKindEpisode  MediaKind = "episode"
	MediaKindPlaylist MediaKind = "playlist"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindMovie, MediaKindSeries, MediaKindEpisode, MediaKindPlaylist:
		return true
	}
	return false
}

// IsCollection reports whether the kind holds an ordered list of child items.
func (k MediaKind) IsCollection() bool {
	return k == MediaKindSeries || k == MediaKindPlaylist
}

// Disposition is the role a file plays for an item. Subtitles carry their
// track name after a dot, e.g. "subtitle.en".
type Disposition string

const (
	DispositionVideo      Disposition = "video"
	DispositionPoster     Disposition = "poster"
	DispositionBackdrop   Disposition = "backdrop"
	DispositionPreview    Disposition = "preview"
	DispositionThumbnails Disposition = "thumbnails"

	subtitlePrefix = "subtitle."
)

func SubtitleDisposition(name string) Disposition {
	return Disposition(subtitlePrefix + name)
}

func (d Disposition) IsVideo() bool {
	return d == DispositionVideo
}

func (d Disposition) IsSubtitle() bool {
	return strings.HasPrefix(string(d), subtitlePrefix)
}

// SubtitleName is the track name of a subtitle disposition.
func (d Disposition) SubtitleName() string {
	return strings.TrimPrefix(string(d), subtitlePrefix)
}

// Class groups dispositions for concurrency accounting: "video" or "support".
func (d Disposition) Class() string {
	if d.IsVideo() {
		return "video"
	}
	return "support"
}

type DownloadStatus string

const (
	DownloadStatusPending  DownloadStatus = "pending"
	DownloadStatusRunning  DownloadStatus = "running"
	DownloadStatusPaused   DownloadStatus = "paused"
	DownloadStatusError    DownloadStatus = "error"
	DownloadStatusFinished DownloadStatus = "finished"
)

// Job is a user's standing request to keep some media available offline.
type Job struct {
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	LastPlannedAt *time.Time `json:"last_planned_at,omitempty" db:"last_planned_at"`
	ID            string     `json:"id" db:"id"`
	MediaID       string     `json:"media_id" db:"media_id"`
	Kind          MediaKind  `json:"kind" db:"kind"`
	ProfileID     string     `json:"profile_id" db:"profile_id"`
	Title         string     `json:"title" db:"title"`
	ArtworkURL    string     `json:"artwork_url" db:"artwork_url"`
	Count         int        `json:"count" db:"count"`
	Pending       bool       `json:"pending" db:"pending"`
}

// NeedsPlan reports whether the desired set should be recomputed. Movie and
// episode jobs are static once planned; collections drift as the up-next
// pointer moves, so they are re-planned every interval.
func (j *Job) NeedsPlan(now time.Time, interval time.Duration) bool {
	if j.Pending || j.LastPlannedAt == nil {
		return true
	}
	if !j.Kind.IsCollection() {
		return false
	}
	return now.Sub(*j.LastPlannedAt) > interval
}

// Download is one file fetch owned by exactly one Job.
type Download struct { //nolint:govet // field ordering prioritizes readability over memory alignment
	ID               int64            `json:"id" db:"id"`
	JobID            string           `json:"job_id" db:"job_id"`
	SortIndex        int              `json:"sort_index" db:"sort_index"`
	ItemID           string           `json:"item_id" db:"item_id"`
	ItemKind         MediaKind        `json:"item_kind" db:"item_kind"`
	Disposition      Disposition      `json:"disposition" db:"disposition"`
	URL              string           `json:"url" db:"url"`
	FileName         string           `json:"file_name" db:"file_name"`
	Handle           *string          `json:"handle,omitempty" db:"handle"`
	TotalBytes       int64            `json:"total_bytes" db:"total_bytes"`
	TransferredBytes int64            `json:"transferred_bytes" db:"transferred_bytes"`
	Status           DownloadStatus   `json:"status" db:"status"`
	StatusDetail     string           `json:"status_detail" db:"status_detail"`
	FailureReason    string           `json:"failure_reason,omitempty" db:"failure_reason"`
	LastRetryAt      *time.Time       `json:"last_retry_at,omitempty" db:"last_retry_at"`
	Playback         PlaybackSnapshot `json:"playback" db:"playback"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Key identifies a Download within its Job.
func (d *Download) Key() DownloadKey {
	return DownloadKey{ItemID: d.ItemID, Disposition: d.Disposition}
}

func (d *Download) HasHandle() bool {
	return d.Handle != nil && *d.Handle != ""
}

// InFlight reports whether the Download occupies a transfer slot.
func (d *Download) InFlight() bool {
	if !d.HasHandle() {
		return false
	}
	switch d.Status {
	case DownloadStatusPending, DownloadStatusRunning, DownloadStatusPaused:
		return true
	}
	return false
}

// IsJobArtwork reports whether the row is the Job's own top-level artwork,
// which survives every re-plan.
func (d *Download) IsJobArtwork(job *Job) bool {
	return d.ItemID == job.MediaID && d.Disposition == DispositionPoster
}

type DownloadKey struct {
	ItemID      string
	Disposition Disposition
}

// UIJob is the read-side aggregate shown to the user.
type UIJob struct {
	JobID         string         `json:"job_id"`
	MediaID       string         `json:"media_id"`
	Kind          MediaKind      `json:"kind"`
	Title         string         `json:"title"`
	Count         int            `json:"count"`
	Status        DownloadStatus `json:"status"`
	StatusDetail  string         `json:"status_detail,omitempty"`
	ArtworkFile   string         `json:"artwork_file,omitempty"`
	Percent       float64        `json:"percent"`
	Files         int            `json:"files"`
	FinishedFiles int            `json:"finished_files"`
}
