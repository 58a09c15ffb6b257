// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort           = "8080"
	DefaultDBPath         = "keepoffline.db"
	DefaultMetadataURL    = "http://127.0.0.1:8096"
	DefaultProfile        = "default"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRetryCount     = 3
	DefaultRetryBase      = 1 * time.Second
	DefaultRetryMaxDelay  = 8 * time.Second
	DefaultStallTimeout   = 60 * time.Second
	DefaultCacheSize      = 256
	DefaultCacheTTL       = 30 * time.Second
	DefaultProbeTimeout   = 2 * time.Second
	DefaultShutdownPeriod = 5 * time.Second
)

// Engine scheduling
const (
	DefaultStatusInterval   = 500 * time.Millisecond
	DefaultUpdateInterval   = 5 * time.Second
	DefaultReplanInterval   = 5 * time.Minute
	DefaultRetryBackoff     = 10 * time.Second
	DefaultSupportTransfers = 3
	DefaultVideoTransfers   = 1
)

// Download root layout
const (
	TempSuffix   = ".tmp"
	SentinelFile = ".nomedia"
)

// Default file extensions per disposition, used when the source URL has none.
const (
	ExtVideo      = ".mp4"
	ExtImage      = ".jpg"
	ExtSubtitle   = ".vtt"
	ExtThumbnails = ".bif"
)

// Settings keys
const (
	SettingActiveProfile = "active_profile"
	SettingAllowMetered  = "allow_metered"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"

// Characters escaped in file name components because FileName uses them as
// separators or as the escape marker.
const NameEscapeChars = "%._"
