package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/httpclient"
)

func TestHTTPRepository_GetDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/series/s1":
			_ = json.NewEncoder(w).Encode(domain.DetailedMedia{
				MediaItem: domain.MediaItem{ID: "s1", Kind: domain.MediaKindSeries, Title: "Show"},
				Items: []domain.MediaItem{
					{ID: "e1", Kind: domain.MediaKindEpisode, Index: 0, VideoURL: "http://v/e1.mp4"},
					{ID: "e2", Kind: domain.MediaKindEpisode, Index: 1, UpNext: true},
				},
			})
		case "/media/movie/broken":
			w.WriteHeader(http.StatusBadRequest)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	repo := NewHTTPRepository(server.URL+"/", httpclient.NewClientWithBackoff(nil, 0, time.Millisecond, time.Millisecond))
	ctx := context.Background()

	media, err := repo.GetDetails(ctx, "s1", domain.MediaKindSeries)
	if err != nil {
		t.Fatalf("GetDetails failed: %v", err)
	}
	if media.Title != "Show" || len(media.Items) != 2 || !media.Items[1].UpNext {
		t.Errorf("unexpected media %+v", media)
	}

	if _, err := repo.GetDetails(ctx, "gone", domain.MediaKindMovie); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = repo.GetDetails(ctx, "broken", domain.MediaKindMovie)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected StatusError 400, got %v", err)
	}

	if _, err := repo.GetDetails(ctx, "x", domain.MediaKind("album")); !errors.Is(err, domain.ErrUnsupportedKind) {
		t.Errorf("Expected ErrUnsupportedKind, got %v", err)
	}
}

type memCache struct {
	data map[string][]byte
	mu   sync.Mutex
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) GetCache(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) SetCache(key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *memCache) DeleteCache(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestCachedRepository(t *testing.T) {
	mock := NewMockRepository()
	mock.Set(&domain.DetailedMedia{MediaItem: domain.MediaItem{ID: "m1", Kind: domain.MediaKindMovie, Title: "Movie"}})
	cache := newMemCache()
	repo := NewCachedRepository(mock, cache, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		media, err := repo.GetDetails(ctx, "m1", domain.MediaKindMovie)
		if err != nil {
			t.Fatalf("GetDetails failed: %v", err)
		}
		if media.Title != "Movie" {
			t.Errorf("unexpected title %q", media.Title)
		}
	}
	if mock.Calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", mock.Calls)
	}
	if _, ok := cache.data[cacheKey("m1", domain.MediaKindMovie)]; !ok {
		t.Error("expected persistent cache entry")
	}

	// A fresh decorator over the same persistent cache does not hit upstream.
	second := NewCachedRepository(mock, cache, 8, time.Minute)
	if _, err := second.GetDetails(ctx, "m1", domain.MediaKindMovie); err != nil {
		t.Fatal(err)
	}
	if mock.Calls != 1 {
		t.Errorf("Expected persistent cache hit, got %d calls", mock.Calls)
	}

	if err := repo.Invalidate("m1", domain.MediaKindMovie); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := repo.GetDetails(ctx, "m1", domain.MediaKindMovie); err != nil {
		t.Fatal(err)
	}
	if mock.Calls != 2 {
		t.Errorf("Expected upstream call after invalidate, got %d", mock.Calls)
	}
}

func TestCachedRepository_DoesNotCacheErrors(t *testing.T) {
	mock := NewMockRepository()
	mock.SetErr(errors.New("boom"))
	repo := NewCachedRepository(mock, nil, 8, time.Minute)

	if _, err := repo.GetDetails(context.Background(), "m1", domain.MediaKindMovie); err == nil {
		t.Fatal("expected error")
	}
	mock.SetErr(nil)
	mock.Set(&domain.DetailedMedia{MediaItem: domain.MediaItem{ID: "m1", Kind: domain.MediaKindMovie}})
	if _, err := repo.GetDetails(context.Background(), "m1", domain.MediaKindMovie); err != nil {
		t.Errorf("expected success once upstream recovers, got %v", err)
	}
}
