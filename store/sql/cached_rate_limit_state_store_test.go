package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRateLimitStateStore struct {
	mu          sync.Mutex
	state       ratelimit.State
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubRateLimitStateStore) Get(_ context.Context, _ ratelimit.Key) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return ratelimit.State{}, s.getErr
	}
	return cloneRateLimitState(s.state), nil
}

func (s *stubRateLimitStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.state = cloneRateLimitState(state)
	return nil
}

func TestCachedRateLimitStateStore_Get_MissFetchThenHit(t *testing.T) {
	key := ratelimit.Key{Provider: "shopee", ShopID: 55, Bucket: "order"}
	base := &stubRateLimitStateStore{
		state: ratelimit.State{
			Key:       key,
			Limit:     1000,
			Remaining: 999,
			UpdatedAt: time.Now().UTC(),
			Metadata:  map[string]any{"source": "base"},
		},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}
	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedRateLimitStateStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	key := ratelimit.Key{Provider: "shopee", ShopID: 56, Bucket: "product"}
	base := &stubRateLimitStateStore{
		state: ratelimit.State{Key: key, Limit: 1000, Remaining: 999, UpdatedAt: time.Now().UTC()},
	}
	store, err := NewCachedRateLimitStateStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	if _, err := store.Get(context.Background(), key); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if err := store.Upsert(context.Background(), ratelimit.State{
		Key:       key,
		Limit:     1000,
		Remaining: 450,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected base upsert call count=1, got %d", base.upsertCalls)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get after upsert invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if state.Remaining != 450 {
		t.Fatalf("expected refreshed state remaining=450, got %d", state.Remaining)
	}
}

func TestRateLimitStateCacheKey_NormalizesAndEscapes(t *testing.T) {
	first, err := RateLimitStateCacheKey(ratelimit.Key{Provider: " Shopee ", ShopID: 55, Bucket: " Order/Detail "})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	second, err := RateLimitStateCacheKey(ratelimit.Key{Provider: "shopee", ShopID: 55, Bucket: "order/detail"})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-marketsync::ratelimit_state::v1::shopee::55::order%2Fdetail"
	if first != expected || second != expected {
		t.Fatalf("unexpected cache keys %q %q want %q", first, second, expected)
	}
	if _, err := RateLimitStateCacheKey(ratelimit.Key{ShopID: 55}); err == nil {
		t.Fatalf("expected missing provider and bucket to be rejected")
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	base := &stubRateLimitStateStore{getErr: ratelimit.ErrStateNotFound}
	store, err := NewCachedRateLimitStateStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	_, err = store.Get(context.Background(), ratelimit.Key{Provider: "shopee", ShopID: 57, Bucket: "order"})
	if !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestCachedTokenStore_CachesHitsAndEvictsOnPut(t *testing.T) {
	ctx := context.Background()
	base := &countingTokenStore{TokenStore: core.NewMemoryTokenStore()}
	store, err := NewCachedTokenStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached token store: %v", err)
	}

	missing, err := store.Get(ctx, 55)
	if err != nil || missing != nil {
		t.Fatalf("expected no token on file, got %+v err=%v", missing, err)
	}

	expiresAt := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	if err := store.Put(ctx, 55, core.TokenRecord{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiresAt}); err != nil {
		t.Fatalf("put token: %v", err)
	}
	first, err := store.Get(ctx, 55)
	if err != nil || first == nil || first.AccessToken != "a1" {
		t.Fatalf("expected a1 after put, got %+v err=%v", first, err)
	}
	reads := base.gets
	if _, err := store.Get(ctx, 55); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if base.gets != reads {
		t.Fatalf("expected second read to hit cache, base reads %d -> %d", reads, base.gets)
	}

	if err := store.Put(ctx, 55, core.TokenRecord{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: expiresAt.Add(4 * time.Hour)}); err != nil {
		t.Fatalf("put refreshed token: %v", err)
	}
	refreshed, err := store.Get(ctx, 55)
	if err != nil || refreshed == nil || refreshed.AccessToken != "a2" {
		t.Fatalf("expected eviction to expose a2, got %+v err=%v", refreshed, err)
	}
	if TokenCacheKey(55) != "go-marketsync::token::v1::55" {
		t.Fatalf("unexpected token cache key %q", TokenCacheKey(55))
	}
}

type countingTokenStore struct {
	core.TokenStore
	mu   sync.Mutex
	gets int
}

func (s *countingTokenStore) Get(ctx context.Context, shopID int64) (*core.TokenRecord, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.TokenStore.Get(ctx, shopID)
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
