package sqlstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goliatone/go-marketsync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tokenCacheKeyPrefix = "go-marketsync::token::v1"

type cachedToken struct {
	Found  bool
	Record core.TokenRecord
}

// CachedTokenStore serves token reads from a cache in front of base. Writes
// go to base first and then evict the shop's entry. Missing tokens are not
// cached so a fresh connect is visible immediately.
type CachedTokenStore struct {
	base  core.TokenStore
	cache repositorycache.CacheService
}

func NewCachedTokenStore(base core.TokenStore, cacheService repositorycache.CacheService) (*CachedTokenStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base token store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: token cache service is required")
	}
	return &CachedTokenStore{base: base, cache: cacheService}, nil
}

// TokenCacheKey is go-marketsync::token::v1::<shop_id>.
func TokenCacheKey(shopID int64) string {
	return tokenCacheKeyPrefix + "::" + strconv.FormatInt(shopID, 10)
}

func (s *CachedTokenStore) Get(ctx context.Context, shopID int64) (*core.TokenRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	key := TokenCacheKey(shopID)
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (cachedToken, error) {
		fetched, fetchErr := s.base.Get(ctx, shopID)
		if fetchErr != nil {
			return cachedToken{}, fetchErr
		}
		if fetched == nil {
			return cachedToken{}, nil
		}
		return cachedToken{Found: true, Record: *fetched}, nil
	})
	if err != nil {
		return nil, err
	}
	if !entry.Found {
		if err := s.cache.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	record := entry.Record
	return &record, nil
}

func (s *CachedTokenStore) Put(ctx context.Context, shopID int64, record core.TokenRecord) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached token store is not configured")
	}
	if err := s.base.Put(ctx, shopID, record); err != nil {
		return err
	}
	return s.cache.Delete(ctx, TokenCacheKey(shopID))
}

// List always reads through to base.
func (s *CachedTokenStore) List(ctx context.Context) ([]core.TokenRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached token store is not configured")
	}
	return s.base.List(ctx)
}
