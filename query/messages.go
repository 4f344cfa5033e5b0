package query

import (
	"strings"

	"github.com/goliatone/go-marketsync/core"
)

const (
	TypeLoadSyncCursor  = "marketsync.query.sync_cursor.load"
	TypeListWebhookLogs = "marketsync.query.webhook_logs.list"
	TypeGetQueueItem    = "marketsync.query.queue_item.get"
	TypeListShops       = "marketsync.query.shops.list"
)

type LoadSyncCursorMessage struct {
	ShopID int64
	Kind   core.SyncKind
}

func (LoadSyncCursorMessage) Type() string { return TypeLoadSyncCursor }

func (m LoadSyncCursorMessage) Validate() error {
	if m.ShopID <= 0 {
		return queryValidationError("shop_id", "shop id is required")
	}
	if strings.TrimSpace(string(m.Kind)) == "" {
		return queryValidationError("kind", "sync kind is required")
	}
	return nil
}

type ListWebhookLogsMessage struct {
	ShopID int64
	Limit  int
}

func (ListWebhookLogsMessage) Type() string { return TypeListWebhookLogs }

func (m ListWebhookLogsMessage) Validate() error {
	if m.ShopID < 0 {
		return queryValidationError("shop_id", "shop id must be >= 0")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type GetQueueItemMessage struct {
	ID string
}

func (GetQueueItemMessage) Type() string { return TypeGetQueueItem }

func (m GetQueueItemMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryValidationError("id", "queue item id is required")
	}
	return nil
}

type ListShopsMessage struct{}

func (ListShopsMessage) Type() string { return TypeListShops }
