package sqlstore

import (
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
	"github.com/goliatone/go-marketsync/ratelimit"
	"github.com/goliatone/go-marketsync/reconcile"
	"github.com/goliatone/go-marketsync/webhooks"
)

var (
	_ core.TokenStore      = (*TokenStore)(nil)
	_ core.TokenStore      = (*CachedTokenStore)(nil)
	_ core.SyncCursorStore = (*SyncCursorStore)(nil)
	_ core.ShopLocker      = (*AdvisoryShopLocker)(nil)
	_ reconcile.Store      = (*EntityStore)(nil)
	_ reconcile.Tx         = (*entityTx)(nil)
	_ queue.Store          = (*QueueStore)(nil)
	_ webhooks.LogStore    = (*WebhookLogStore)(nil)
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
