package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

// ErrNotFound is returned when the media no longer exists upstream.
var ErrNotFound = errors.New("media not found")

// StatusError carries an unexpected HTTP status from the metadata API.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata request %s returned status %d", e.URL, e.StatusCode)
}

// Repository resolves the full description of a job target, including child
// items and the up-next pointer for series and playlists.
type Repository interface {
	GetDetails(ctx context.Context, mediaID string, kind domain.MediaKind) (*domain.DetailedMedia, error)
}
