package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-provision/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const profileCacheKeyPrefix = "go-provision::profile::v1"

// CachedProfileStore serves GetByKey through the cache and invalidates on
// every upsert, so readers never observe a stale profile after a write.
type CachedProfileStore struct {
	base  core.ProfileStore
	cache repositorycache.CacheService
}

func NewCachedProfileStore(
	base core.ProfileStore,
	cacheService repositorycache.CacheService,
) (*CachedProfileStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base profile store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: profile cache service is required")
	}
	return &CachedProfileStore{base: base, cache: cacheService}, nil
}

// ProfileCacheKey returns the deterministic cache key for a profile read:
// go-provision::profile::v1::<profile_key> with the key segment URL-path
// escaped.
func ProfileCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: profile key is required")
	}
	return profileCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedProfileStore) Upsert(ctx context.Context, in core.UpsertProfileInput) (core.Profile, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: cached profile store is not configured")
	}
	profile, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Profile{}, err
	}
	cacheKey, err := ProfileCacheKey(profile.Key)
	if err != nil {
		return core.Profile{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Profile{}, err
	}
	return profile, nil
}

func (s *CachedProfileStore) GetByKey(ctx context.Context, key string) (core.Profile, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Profile{}, fmt.Errorf("sqlstore: cached profile store is not configured")
	}
	cacheKey, err := ProfileCacheKey(key)
	if err != nil {
		return core.Profile{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Profile, error) {
		return s.base.GetByKey(ctx, key)
	})
}

var _ core.ProfileStore = (*CachedProfileStore)(nil)
