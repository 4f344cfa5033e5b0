package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketsync/core"
)

var (
	_ gocmd.Querier[LoadSyncCursorMessage, core.SyncCursor]         = (*LoadSyncCursorQuery)(nil)
	_ gocmd.Querier[ListWebhookLogsMessage, []core.WebhookLogEntry] = (*ListWebhookLogsQuery)(nil)
	_ gocmd.Querier[GetQueueItemMessage, core.SyncQueueItem]        = (*GetQueueItemQuery)(nil)
	_ gocmd.Querier[ListShopsMessage, []ShopStatus]                 = (*ListShopsQuery)(nil)
)
