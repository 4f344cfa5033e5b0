package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goliatone/go-marketsync/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-marketsync::ratelimit_state::v1"

// CachedRateLimitStateStore keeps the per-shop throttle buckets in a cache so
// every upstream call does not read the table. Upsert writes through to base
// and evicts the bucket.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cacheService repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey is
// go-marketsync::ratelimit_state::v1::<provider>::<shop_id>::<bucket>.
// Provider and bucket are lowercased, trimmed and path escaped.
func RateLimitStateCacheKey(key ratelimit.Key) (string, error) {
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s::%s::%d::%s",
		rateLimitStateCacheKeyPrefix,
		url.PathEscape(key.Provider),
		key.ShopID,
		url.PathEscape(key.Bucket),
	), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if err := s.ready(); err != nil {
		return ratelimit.State{}, err
	}
	key = normalizeRateLimitKey(key)
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		return s.base.Get(ctx, key)
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	// cached values are shared between readers
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if err := s.ready(); err != nil {
		return err
	}
	state = cloneRateLimitState(state)
	cacheKey, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedRateLimitStateStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	return nil
}

func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	out := state
	out.Key = normalizeRateLimitKey(state.Key)
	out.Metadata = copyAnyMap(state.Metadata)
	out.ResetAt = copyTimePointer(state.ResetAt)
	out.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		retryAfter := time.Duration(*state.RetryAfter)
		out.RetryAfter = &retryAfter
	}
	return out
}
