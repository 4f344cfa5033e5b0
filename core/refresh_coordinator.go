package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultSafetyMargin   = 30 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	defaultRefreshHorizon = 24 * time.Hour
)

// TokenCoordinator keeps shop tokens valid. Reads are served from the store
// without network calls; refreshes run under a per-shop lock so concurrent
// callers trigger a single upstream exchange.
type TokenCoordinator struct {
	store     TokenStore
	exchanger TokenExchanger
	locker    ShopLocker
	observer  *Observer
	now       func() time.Time

	margin         time.Duration
	refreshTimeout time.Duration
	lockTTL        time.Duration
	horizon        time.Duration
}

type CoordinatorOption func(*TokenCoordinator)

func WithCoordinatorLocker(locker ShopLocker) CoordinatorOption {
	return func(c *TokenCoordinator) {
		if locker != nil {
			c.locker = locker
		}
	}
}

func WithCoordinatorObserver(observer *Observer) CoordinatorOption {
	return func(c *TokenCoordinator) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *TokenCoordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithTokenConfig(cfg TokenConfig) CoordinatorOption {
	return func(c *TokenCoordinator) {
		if cfg.SafetyMarginSeconds >= 0 {
			c.margin = cfg.SafetyMargin()
		}
		if cfg.RefreshTimeoutSeconds > 0 {
			c.refreshTimeout = cfg.RefreshTimeout()
		}
		if cfg.LockTTLSeconds > 0 {
			c.lockTTL = cfg.LockTTL()
		}
		if cfg.RefreshHorizonSeconds > 0 {
			c.horizon = cfg.RefreshHorizon()
		}
	}
}

func NewTokenCoordinator(store TokenStore, exchanger TokenExchanger, opts ...CoordinatorOption) (*TokenCoordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("core: token store is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("core: token exchanger is required")
	}
	c := &TokenCoordinator{
		store:          store,
		exchanger:      exchanger,
		locker:         NewMemoryShopLocker(),
		observer:       NewObserver(nil, nil),
		now:            func() time.Time { return time.Now().UTC() },
		margin:         defaultSafetyMargin,
		refreshTimeout: defaultRefreshTimeout,
		lockTTL:        defaultShopLockTTL,
		horizon:        defaultRefreshHorizon,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	// the lock must outlive a full refresh attempt
	if c.lockTTL < c.refreshTimeout {
		c.lockTTL = c.refreshTimeout
	}
	return c, nil
}

// EnsureValid returns a token that is valid for at least the safety margin,
// refreshing it when needed. A failed refresh keeps the stale token on file
// and returns REFRESH_FAILED.
func (c *TokenCoordinator) EnsureValid(ctx context.Context, shopID int64) (TokenRecord, error) {
	if c == nil {
		return TokenRecord{}, fmt.Errorf("core: token coordinator is nil")
	}
	return c.ensure(ctx, shopID, c.margin)
}

func (c *TokenCoordinator) ensure(ctx context.Context, shopID int64, margin time.Duration) (TokenRecord, error) {
	if shopID <= 0 {
		return TokenRecord{}, NewError(ErrorBadInput, "core: shop id is required", nil)
	}
	record, err := c.load(ctx, shopID)
	if err != nil {
		return TokenRecord{}, err
	}
	if !IsExpiring(record, margin, c.now()) {
		return record, nil
	}

	handle, err := c.locker.Acquire(ctx, shopID, c.lockTTL)
	if err != nil {
		return TokenRecord{}, WrapError(err, ErrorRefreshFailed, "core: refresh lock unavailable", map[string]any{
			"shop_id": shopID,
		})
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()

	// another caller may have refreshed while we waited
	record, err = c.load(ctx, shopID)
	if err != nil {
		return TokenRecord{}, err
	}
	if !IsExpiring(record, margin, c.now()) {
		return record, nil
	}
	return c.refresh(ctx, record)
}

func (c *TokenCoordinator) load(ctx context.Context, shopID int64) (TokenRecord, error) {
	record, err := c.store.Get(ctx, shopID)
	if err != nil {
		return TokenRecord{}, WrapError(err, ErrorInternal, "core: token lookup failed", map[string]any{
			"shop_id": shopID,
		})
	}
	if record == nil {
		return TokenRecord{}, ErrNoCredentials(shopID)
	}
	return *record, nil
}

func (c *TokenCoordinator) refresh(ctx context.Context, current TokenRecord) (refreshed TokenRecord, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"shop_id":    current.ShopID,
		"expires_at": current.ExpiresAt,
	}
	defer func() {
		c.observer.Observe(ctx, startedAt, "token_refresh", err, fields)
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	grant, err := c.exchanger.RefreshToken(callCtx, current.ShopID, current.RefreshToken)
	if err != nil {
		return current, WrapError(err, ErrorRefreshFailed, "core: token refresh failed", map[string]any{
			"shop_id":     current.ShopID,
			"cause_code":  TextCode(err),
			"recoverable": !isUnrecoverableRefreshError(err),
		})
	}

	now := c.now()
	next, err := recordFromGrant(current.ShopID, grant, current.RefreshToken, now)
	if err != nil {
		return current, WrapError(err, ErrorRefreshFailed, "core: token refresh returned an unusable grant", map[string]any{
			"shop_id": current.ShopID,
		})
	}
	if err := c.store.Put(ctx, current.ShopID, next); err != nil {
		return current, WrapError(err, ErrorRefreshFailed, "core: persisting refreshed token failed", map[string]any{
			"shop_id": current.ShopID,
		})
	}
	fields["new_expires_at"] = next.ExpiresAt
	return next, nil
}

// RefreshExpiring refreshes every shop whose token expires within horizon
// (or the configured horizon when zero). Failures are counted, not returned.
func (c *TokenCoordinator) RefreshExpiring(ctx context.Context, horizon time.Duration) (JobSummary, error) {
	summary := JobSummary{Job: "refresh_tokens"}
	if c == nil {
		return summary, fmt.Errorf("core: token coordinator is nil")
	}
	if horizon <= 0 {
		horizon = c.horizon
	}
	if horizon < c.margin {
		horizon = c.margin
	}
	records, err := c.store.List(ctx)
	if err != nil {
		return summary, WrapError(err, ErrorInternal, "core: listing tokens failed", nil)
	}
	now := c.now()
	for _, record := range records {
		if !IsExpiring(record, horizon, now) {
			continue
		}
		summary.Total++
		if _, err := c.ensure(ctx, record.ShopID, horizon); err != nil {
			summary.Failed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("shop %d: %v", record.ShopID, err))
			continue
		}
		summary.Processed++
	}
	return summary, nil
}

// Shops lists the shops that have a token on file.
func (c *TokenCoordinator) Shops(ctx context.Context) ([]int64, error) {
	if c == nil {
		return nil, fmt.Errorf("core: token coordinator is nil")
	}
	records, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(records))
	for _, record := range records {
		out = append(out, record.ShopID)
	}
	return out, nil
}

func recordFromGrant(shopID int64, grant TokenGrant, previousRefresh string, now time.Time) (TokenRecord, error) {
	refreshToken := strings.TrimSpace(grant.RefreshToken)
	if refreshToken == "" {
		refreshToken = previousRefresh
	}
	if grant.ExpiresIn <= 0 {
		return TokenRecord{}, fmt.Errorf("core: token grant expiry is required")
	}
	record := TokenRecord{
		ShopID:          shopID,
		AccessToken:     strings.TrimSpace(grant.AccessToken),
		RefreshToken:    refreshToken,
		ExpiresAt:       now.Add(grant.ExpiresIn),
		LastRefreshedAt: now,
	}
	if err := record.Validate(); err != nil {
		return TokenRecord{}, err
	}
	return record, nil
}

func isUnrecoverableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	switch TextCode(err) {
	case ErrorAuthRejected, ErrorBadInput, ErrorValidation:
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid_refresh_token") ||
		strings.Contains(msg, "invalid refresh token") ||
		strings.Contains(msg, "error_auth")
}
