package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TokenStore persists one TokenRecord per shop. Get returns nil, nil when the
// shop has no token on file.
type TokenStore interface {
	Get(ctx context.Context, shopID int64) (*TokenRecord, error)
	Put(ctx context.Context, shopID int64, record TokenRecord) error
	List(ctx context.Context) ([]TokenRecord, error)
}

// TokenGrant is the upstream answer to a code exchange or a refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string, shopID int64) (TokenGrant, error)
	RefreshToken(ctx context.Context, shopID int64, refreshToken string) (TokenGrant, error)
}

type AuthorizationURLBuilder interface {
	AuthorizationURL(redirectURL string) (string, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// ShopLocker serializes work per shop. Acquire blocks until the lock is free,
// the previous holder's ttl lapses, or ctx is done.
type ShopLocker interface {
	Acquire(ctx context.Context, shopID int64, ttl time.Duration) (LockHandle, error)
}

// SecretProvider seals token material before it reaches storage.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// SyncCursorStore keeps one SyncCursor per (shop, kind). Get returns nil, nil
// when no sync has run yet.
type SyncCursorStore interface {
	Get(ctx context.Context, shopID int64, kind SyncKind) (*SyncCursor, error)
	Put(ctx context.Context, cursor SyncCursor) error
}
