package core

import (
	"context"
	"testing"
	"time"
)

func TestIsExpiring_RespectsSafetyMargin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := TokenRecord{ExpiresAt: now.Add(31 * time.Minute)}
	if IsExpiring(record, 30*time.Minute, now) {
		t.Fatalf("expected token with 31m left to be valid under a 30m margin")
	}
	record.ExpiresAt = now.Add(30 * time.Minute)
	if !IsExpiring(record, 30*time.Minute, now) {
		t.Fatalf("expected token exactly at the margin to be expiring")
	}
	if !IsExpiring(TokenRecord{}, 0, now) {
		t.Fatalf("expected token without expiry to be expiring")
	}
}

func TestMemoryTokenStore_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	missing, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown shop")
	}

	expires := time.Now().UTC().Add(4 * time.Hour)
	if err := store.Put(ctx, 42, TokenRecord{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, 42)
	if err != nil || got == nil {
		t.Fatalf("expected stored token, err=%v", err)
	}
	if got.ShopID != 42 || got.AccessToken != "a1" {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.Put(ctx, 7, TokenRecord{AccessToken: "", RefreshToken: "r", ExpiresAt: expires}); err == nil {
		t.Fatalf("expected validation error for empty access token")
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ShopID != 42 {
		t.Fatalf("unexpected list %+v", listed)
	}
}
