package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AuthorizationURL builds the shop-auth redirect for the connect flow.
func (c *TokenCoordinator) AuthorizationURL(redirectURL string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: token coordinator is nil")
	}
	builder, ok := c.exchanger.(AuthorizationURLBuilder)
	if !ok {
		return "", NewError(ErrorInternal, "core: token exchanger cannot build authorization urls", nil)
	}
	redirectURL = strings.TrimSpace(redirectURL)
	if redirectURL == "" {
		return "", NewError(ErrorBadInput, "core: redirect url is required", nil)
	}
	return builder.AuthorizationURL(redirectURL)
}

// CompleteAuthorization exchanges the callback code for the first token pair
// of a shop. Errors are returned as-is so an operator can correct the input.
func (c *TokenCoordinator) CompleteAuthorization(ctx context.Context, code string, shopID int64) (record TokenRecord, err error) {
	if c == nil {
		return TokenRecord{}, fmt.Errorf("core: token coordinator is nil")
	}
	startedAt := time.Now()
	defer func() {
		c.observer.Observe(ctx, startedAt, "authorize_shop", err, map[string]any{"shop_id": shopID})
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return TokenRecord{}, NewError(ErrorBadInput, "core: authorization code is required", nil)
	}
	if shopID <= 0 {
		return TokenRecord{}, NewError(ErrorBadInput, "core: shop id is required", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	grant, err := c.exchanger.ExchangeCode(callCtx, code, shopID)
	if err != nil {
		return TokenRecord{}, err
	}
	record, err = recordFromGrant(shopID, grant, "", c.now())
	if err != nil {
		return TokenRecord{}, WrapError(err, ErrorValidation, "core: authorization returned an unusable grant", map[string]any{
			"shop_id": shopID,
		})
	}
	err = WithShopLock(ctx, c.locker, shopID, c.lockTTL, func(ctx context.Context) error {
		return c.store.Put(ctx, shopID, record)
	})
	if err != nil {
		return TokenRecord{}, err
	}
	return record, nil
}
