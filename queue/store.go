package queue

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

var ErrItemNotFound = errors.New("queue: item not found")

// Store persists queue items. ClaimBatch moves up to limit due items
// (pending or retry, scheduled_at <= now) to processing, ordered by priority
// descending then age ascending, and returns them.
type Store interface {
	Enqueue(ctx context.Context, item core.SyncQueueItem) (core.SyncQueueItem, error)
	ClaimBatch(ctx context.Context, now time.Time, limit int) ([]core.SyncQueueItem, error)
	MarkSuccess(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, retryCount int, scheduledAt time.Time, message string) error
	MarkFailed(ctx context.Context, id string, retryCount int, message string, at time.Time) error
	Get(ctx context.Context, id string) (core.SyncQueueItem, error)
}
