package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("marketsync-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("token-value-123")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to hide plaintext")
	}
	if !IsSealed(encrypted) {
		t.Fatalf("expected envelope prefix")
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsUnknownKeyAndTampering(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("marketsync-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("marketsync-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected unknown key error")
	}

	other, err := NewAppKeySecretProviderFromString("another-key", WithKeyID("marketsync-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new other provider: %v", err)
	}
	if _, err := other.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected authentication failure under a different key")
	}

	if _, err := issuer.Decrypt(context.Background(), []byte("plain-token")); err == nil {
		t.Fatalf("expected missing prefix to be rejected")
	}
	if _, err := NewAppKeySecretProviderFromString("  "); err == nil {
		t.Fatalf("expected empty key material to be rejected")
	}
}

func TestAppKeySecretProvider_RetiredKeyStillDecrypts(t *testing.T) {
	old, err := NewAppKeySecretProviderFromString("old-key", WithKeyID("marketsync"), WithVersion(1))
	if err != nil {
		t.Fatalf("old provider: %v", err)
	}
	sealed, err := old.Encrypt(context.Background(), []byte("refresh-55"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, err := NewAppKeySecretProviderFromString("new-key",
		WithKeyID("marketsync"),
		WithVersion(2),
		WithRetiredKey("marketsync", 1, []byte("old-key")),
	)
	if err != nil {
		t.Fatalf("rotated provider: %v", err)
	}
	opened, err := rotated.Decrypt(context.Background(), sealed)
	if err != nil || string(opened) != "refresh-55" {
		t.Fatalf("expected retired key to open the envelope, got %q %v", opened, err)
	}
}

func TestSealedTokenStore_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("token-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	base := core.NewMemoryTokenStore()
	store, err := NewSealedTokenStore(base, provider)
	if err != nil {
		t.Fatalf("new sealed store: %v", err)
	}

	expires := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	record := core.TokenRecord{ShopID: 55, AccessToken: "access-55", RefreshToken: "refresh-55", ExpiresAt: expires}
	if err := store.Put(ctx, 55, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := base.Get(ctx, 55)
	if err != nil || raw == nil {
		t.Fatalf("base get: %v", err)
	}
	if strings.Contains(raw.AccessToken, "access-55") || strings.Contains(raw.RefreshToken, "refresh-55") {
		t.Fatalf("expected tokens to be sealed at rest, got %+v", raw)
	}
	if !raw.ExpiresAt.Equal(expires) {
		t.Fatalf("expected expiry to be stored untouched")
	}

	got, err := store.Get(ctx, 55)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "access-55" || got.RefreshToken != "refresh-55" {
		t.Fatalf("unexpected opened record %+v", got)
	}

	listed, err := store.List(ctx)
	if err != nil || len(listed) != 1 || listed[0].RefreshToken != "refresh-55" {
		t.Fatalf("unexpected list %+v %v", listed, err)
	}

	missing, err := store.Get(ctx, 99)
	if err != nil || missing != nil {
		t.Fatalf("expected missing shop to stay nil, got %+v %v", missing, err)
	}
}

func TestSealedTokenStore_ReadsLegacyPlaintextRows(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("token-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	base := core.NewMemoryTokenStore()
	if err := base.Put(ctx, 56, core.TokenRecord{ShopID: 56, AccessToken: "plain-a", RefreshToken: "plain-r", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := NewSealedTokenStore(base, provider)
	if err != nil {
		t.Fatalf("new sealed store: %v", err)
	}
	got, err := store.Get(ctx, 56)
	if err != nil || got == nil || got.AccessToken != "plain-a" {
		t.Fatalf("expected legacy row to read through, got %+v %v", got, err)
	}

	if _, err := NewSealedTokenStore(nil, provider); err == nil {
		t.Fatalf("expected base store to be required")
	}
}
