package domain

// Subtitle is one external subtitle track of an item.
type Subtitle struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// MediaItem is a playable item as described by the metadata repository.
// For playlists SlotID identifies the playlist entry while ID identifies the
// underlying media; the same media may appear in several slots.
type MediaItem struct {
	ID                string           `json:"id"`
	SlotID            string           `json:"slot_id,omitempty"`
	Kind              MediaKind        `json:"kind"`
	Title             string           `json:"title"`
	Index             int              `json:"index"`
	PosterURL         string           `json:"poster_url,omitempty"`
	BackdropURL       string           `json:"backdrop_url,omitempty"`
	PreviewURL        string           `json:"preview_url,omitempty"`
	ThumbnailIndexURL string           `json:"thumbnail_index_url,omitempty"`
	VideoURL          string           `json:"video_url,omitempty"`
	Subtitles         []Subtitle       `json:"subtitles,omitempty"`
	Playback          PlaybackSnapshot `json:"playback"`
	UpNext            bool             `json:"up_next,omitempty"`
}

// DetailedMedia is the full description of a Job target. Items is only
// populated for series and playlists.
type DetailedMedia struct {
	MediaItem
	Items []MediaItem `json:"items,omitempty"`
}
