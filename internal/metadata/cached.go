package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

// Cache is the persistent second level, backed by the store's cache table.
type Cache interface {
	GetCache(key string) ([]byte, error)
	SetCache(key string, data []byte, ttl time.Duration) error
	DeleteCache(key string) error
}

// CachedRepository keeps recent details in memory and in the persistent
// cache. The TTL stays below the re-plan interval so a re-plan sees fresh
// up-next pointers.
type CachedRepository struct {
	repo     Repository
	cache    Cache
	lru      *expirable.LRU[string, *domain.DetailedMedia]
	cacheTTL time.Duration
}

func NewCachedRepository(repo Repository, cache Cache, size int, cacheTTL time.Duration) *CachedRepository {
	if size <= 0 {
		size = 1
	}
	return &CachedRepository{
		repo:     repo,
		cache:    cache,
		lru:      expirable.NewLRU[string, *domain.DetailedMedia](size, nil, cacheTTL),
		cacheTTL: cacheTTL,
	}
}

func cacheKey(mediaID string, kind domain.MediaKind) string {
	return fmt.Sprintf("media:%s:%s", kind, mediaID)
}

func (c *CachedRepository) GetDetails(ctx context.Context, mediaID string, kind domain.MediaKind) (*domain.DetailedMedia, error) {
	key := cacheKey(mediaID, kind)

	if media, ok := c.lru.Get(key); ok {
		return media, nil
	}

	if c.cache != nil {
		data, err := c.cache.GetCache(key)
		if err != nil {
			return nil, err
		}
		if data != nil {
			var media domain.DetailedMedia
			if err := json.Unmarshal(data, &media); err == nil {
				c.lru.Add(key, &media)
				return &media, nil
			}
		}
	}

	media, err := c.repo.GetDetails(ctx, mediaID, kind)
	if err != nil {
		return nil, err
	}

	c.lru.Add(key, media)
	if c.cache != nil {
		if data, err := json.Marshal(media); err == nil {
			_ = c.cache.SetCache(key, data, c.cacheTTL)
		}
	}

	return media, nil
}

// Invalidate drops the cached details of one target from both levels.
func (c *CachedRepository) Invalidate(mediaID string, kind domain.MediaKind) error {
	key := cacheKey(mediaID, kind)
	c.lru.Remove(key)
	if c.cache == nil {
		return nil
	}
	return c.cache.DeleteCache(key)
}
