package metadata

import (
	"context"
	"sync"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

// MockRepository serves details registered by tests.
type MockRepository struct {
	media map[string]*domain.DetailedMedia
	Err   error
	Calls int
	mu    sync.Mutex
}

func NewMockRepository() *MockRepository {
	return &MockRepository{media: make(map[string]*domain.DetailedMedia)}
}

// Set registers the details returned for a target.
func (m *MockRepository) Set(media *domain.DetailedMedia) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media[cacheKey(media.ID, media.Kind)] = media
}

func (m *MockRepository) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockRepository) GetDetails(ctx context.Context, mediaID string, kind domain.MediaKind) (*domain.DetailedMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	media, ok := m.media[cacheKey(mediaID, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy so callers cannot mutate the registered fixture.
	out := *media
	out.Items = append([]domain.MediaItem(nil), media.Items...)
	return &out, nil
}
