package query

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
)

const defaultWebhookLogLimit = 50

type WebhookLogReader interface {
	Recent(ctx context.Context, shopID int64, limit int) ([]core.WebhookLogEntry, error)
}

type QueueItemReader interface {
	Get(ctx context.Context, id string) (core.SyncQueueItem, error)
}

type TokenLister interface {
	List(ctx context.Context) ([]core.TokenRecord, error)
}

// ShopStatus is the public view of a connected shop. Token values are never
// part of it.
type ShopStatus struct {
	ShopID          int64     `json:"shop_id"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastRefreshedAt time.Time `json:"last_refreshed_at,omitempty"`
	Expiring        bool      `json:"expiring"`
}

type LoadSyncCursorQuery struct {
	reader core.SyncCursorStore
}

func NewLoadSyncCursorQuery(reader core.SyncCursorStore) *LoadSyncCursorQuery {
	return &LoadSyncCursorQuery{reader: reader}
}

// Query returns the stored cursor, or an empty one keyed by shop and kind
// when that sync never ran.
func (q *LoadSyncCursorQuery) Query(ctx context.Context, msg LoadSyncCursorMessage) (core.SyncCursor, error) {
	if q == nil || q.reader == nil {
		return core.SyncCursor{}, queryDependencyError("query: sync cursor reader is required")
	}
	kind := core.SyncKind(strings.ToLower(strings.TrimSpace(string(msg.Kind))))
	cursor, err := q.reader.Get(ctx, msg.ShopID, kind)
	if err != nil {
		return core.SyncCursor{}, err
	}
	if cursor == nil {
		return core.SyncCursor{ShopID: msg.ShopID, Kind: kind}, nil
	}
	return *cursor, nil
}

type ListWebhookLogsQuery struct {
	reader WebhookLogReader
}

func NewListWebhookLogsQuery(reader WebhookLogReader) *ListWebhookLogsQuery {
	return &ListWebhookLogsQuery{reader: reader}
}

func (q *ListWebhookLogsQuery) Query(ctx context.Context, msg ListWebhookLogsMessage) ([]core.WebhookLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook log reader is required")
	}
	limit := msg.Limit
	if limit <= 0 {
		limit = defaultWebhookLogLimit
	}
	return q.reader.Recent(ctx, msg.ShopID, limit)
}

type GetQueueItemQuery struct {
	reader QueueItemReader
}

func NewGetQueueItemQuery(reader QueueItemReader) *GetQueueItemQuery {
	return &GetQueueItemQuery{reader: reader}
}

func (q *GetQueueItemQuery) Query(ctx context.Context, msg GetQueueItemMessage) (core.SyncQueueItem, error) {
	if q == nil || q.reader == nil {
		return core.SyncQueueItem{}, queryDependencyError("query: queue reader is required")
	}
	item, err := q.reader.Get(ctx, strings.TrimSpace(msg.ID))
	if errors.Is(err, queue.ErrItemNotFound) {
		return core.SyncQueueItem{}, queryNotFoundError(err, "query: queue item not found")
	}
	return item, err
}

type ListShopsQuery struct {
	tokens TokenLister
	margin time.Duration
	Now    func() time.Time
}

// NewListShopsQuery flags a shop as expiring when its token lapses within
// margin.
func NewListShopsQuery(tokens TokenLister, margin time.Duration) *ListShopsQuery {
	return &ListShopsQuery{
		tokens: tokens,
		margin: margin,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (q *ListShopsQuery) Query(ctx context.Context, _ ListShopsMessage) ([]ShopStatus, error) {
	if q == nil || q.tokens == nil {
		return nil, queryDependencyError("query: token store is required")
	}
	records, err := q.tokens.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if q.Now != nil {
		now = q.Now()
	}
	out := make([]ShopStatus, 0, len(records))
	for _, record := range records {
		out = append(out, ShopStatus{
			ShopID:          record.ShopID,
			ExpiresAt:       record.ExpiresAt,
			LastRefreshedAt: record.LastRefreshedAt,
			Expiring:        core.IsExpiring(record, q.margin, now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopID < out[j].ShopID })
	return out, nil
}
