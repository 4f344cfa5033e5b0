package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func seedToken(t *testing.T, store TokenStore, shopID int64, expiresAt time.Time) {
	t.Helper()
	err := store.Put(context.Background(), shopID, TokenRecord{
		AccessToken:  "stale-access",
		RefreshToken: "stale-refresh",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestEnsureValid_ReturnsStoredTokenWithoutRefresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	seedToken(t, store, 10, now.Add(2*time.Hour))
	exchanger := &countingExchanger{}

	coordinator, err := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	record, err := coordinator.EnsureValid(context.Background(), 10)
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if record.AccessToken != "stale-access" {
		t.Fatalf("expected stored token, got %q", record.AccessToken)
	}
	if exchanger.Calls() != 0 {
		t.Fatalf("expected no upstream call, got %d", exchanger.Calls())
	}
}

func TestEnsureValid_NoCredentials(t *testing.T) {
	coordinator, err := NewTokenCoordinator(NewMemoryTokenStore(), &countingExchanger{})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	_, err = coordinator.EnsureValid(context.Background(), 77)
	if !HasTextCode(err, ErrorNoCredentials) {
		t.Fatalf("expected NO_CREDENTIALS, got %v", err)
	}
}

func TestEnsureValid_ConcurrentCallersShareOneRefresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	seedToken(t, store, 20, now.Add(5*time.Minute))
	exchanger := &countingExchanger{
		delay: 20 * time.Millisecond,
		grant: TokenGrant{AccessToken: "fresh-access", RefreshToken: "fresh-refresh", ExpiresIn: 4 * time.Hour},
	}
	coordinator, err := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]TokenRecord, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index], errs[index] = coordinator.EnsureValid(context.Background(), 20)
		}(i)
	}
	wg.Wait()

	if exchanger.Calls() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", exchanger.Calls())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].AccessToken != "fresh-access" {
			t.Fatalf("caller %d got %q", i, results[i].AccessToken)
		}
	}
	stored, _ := store.Get(context.Background(), 20)
	if stored.RefreshToken != "fresh-refresh" || !stored.ExpiresAt.Equal(now.Add(4*time.Hour)) {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if !stored.LastRefreshedAt.Equal(now) {
		t.Fatalf("expected last refreshed at %v, got %v", now, stored.LastRefreshedAt)
	}
}

func TestEnsureValid_FailedRefreshKeepsStaleToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	expires := now.Add(time.Minute)
	seedToken(t, store, 30, expires)
	exchanger := &countingExchanger{err: NewError(ErrorUpstreamUnavailable, "upstream down", nil)}
	metrics := &captureMetricsRecorder{}

	coordinator, err := NewTokenCoordinator(store, exchanger,
		WithCoordinatorClock(func() time.Time { return now }),
		WithCoordinatorObserver(NewObserver(nil, metrics)),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	record, err := coordinator.EnsureValid(context.Background(), 30)
	if !HasTextCode(err, ErrorRefreshFailed) {
		t.Fatalf("expected REFRESH_FAILED, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected refresh failure to be retryable")
	}
	if record.AccessToken != "stale-access" {
		t.Fatalf("expected stale token returned alongside the error")
	}
	stored, _ := store.Get(context.Background(), 30)
	if stored.AccessToken != "stale-access" || !stored.ExpiresAt.Equal(expires) {
		t.Fatalf("expected stored token untouched, got %+v", stored)
	}
	if !metrics.hasCounter("marketsync.token_refresh.total", "failure") {
		t.Fatalf("expected token_refresh failure counter")
	}
}

func TestEnsureValid_RefreshTimeoutBounded(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	seedToken(t, store, 31, now)
	exchanger := &countingExchanger{
		delay: time.Second,
		grant: TokenGrant{AccessToken: "late", RefreshToken: "late", ExpiresIn: time.Hour},
	}
	coordinator, err := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	coordinator.refreshTimeout = 20 * time.Millisecond

	started := time.Now()
	_, err = coordinator.EnsureValid(context.Background(), 31)
	if !HasTextCode(err, ErrorRefreshFailed) {
		t.Fatalf("expected REFRESH_FAILED on timeout, got %v", err)
	}
	if time.Since(started) > 500*time.Millisecond {
		t.Fatalf("refresh was not bounded by its timeout")
	}
}

func TestEnsureValid_KeepsRefreshTokenWhenGrantOmitsIt(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	seedToken(t, store, 32, now)
	exchanger := &countingExchanger{grant: TokenGrant{AccessToken: "new", ExpiresIn: time.Hour}}
	coordinator, _ := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))

	record, err := coordinator.EnsureValid(context.Background(), 32)
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if record.RefreshToken != "stale-refresh" {
		t.Fatalf("expected previous refresh token to be kept, got %q", record.RefreshToken)
	}
	if exchanger.lastToken != "stale-refresh" {
		t.Fatalf("expected refresh with stored refresh token, got %q", exchanger.lastToken)
	}
}

func TestRefreshExpiring_CountsPerShop(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	seedToken(t, store, 1, now.Add(2*time.Hour))
	seedToken(t, store, 2, now.Add(48*time.Hour))
	exchanger := &countingExchanger{grant: TokenGrant{AccessToken: "fresh", RefreshToken: "fresh-r", ExpiresIn: 4 * time.Hour}}
	coordinator, _ := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))

	summary, err := coordinator.RefreshExpiring(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("refresh expiring: %v", err)
	}
	if summary.Total != 1 || summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	untouched, _ := store.Get(context.Background(), 2)
	if untouched.AccessToken != "stale-access" {
		t.Fatalf("expected shop 2 untouched")
	}
}

func TestCompleteAuthorization_StoresFirstToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryTokenStore()
	exchanger := &countingExchanger{
		authURL: "https://upstream.example/auth",
		grant:   TokenGrant{RefreshToken: "first-refresh", ExpiresIn: 4 * time.Hour},
	}
	coordinator, _ := NewTokenCoordinator(store, exchanger, WithCoordinatorClock(func() time.Time { return now }))

	link, err := coordinator.AuthorizationURL("https://app.example/cb")
	if err != nil || link == "" {
		t.Fatalf("authorization url: %q %v", link, err)
	}
	if _, err := coordinator.AuthorizationURL(" "); !HasTextCode(err, ErrorBadInput) {
		t.Fatalf("expected BAD_INPUT for empty redirect, got %v", err)
	}

	record, err := coordinator.CompleteAuthorization(context.Background(), "abc", 55)
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	if record.AccessToken != "access-abc" {
		t.Fatalf("unexpected access token %q", record.AccessToken)
	}
	stored, _ := store.Get(context.Background(), 55)
	if stored == nil || stored.RefreshToken != "first-refresh" {
		t.Fatalf("expected stored token, got %+v", stored)
	}
}
