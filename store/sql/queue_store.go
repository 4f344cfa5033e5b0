package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// QueueStore is the sync_queue table. ClaimBatch flips due rows to
// processing in one statement so two workers never claim the same item.
type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*syncQueueRecord]
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	repo, err := newRepository(db, syncQueueHandlers(), "sync queue")
	if err != nil {
		return nil, err
	}
	return &QueueStore{db: db, repo: repo}, nil
}

func (s *QueueStore) Enqueue(ctx context.Context, item core.SyncQueueItem) (core.SyncQueueItem, error) {
	if s == nil || s.repo == nil {
		return core.SyncQueueItem{}, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if strings.TrimSpace(item.ID) == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = item.CreatedAt
	}
	record := newSyncQueueRecord(item)
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.SyncQueueItem{}, err
	}
	return created.toDomain(), nil
}

func (s *QueueStore) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]core.SyncQueueItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}
	var records []syncQueueRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM sync_queue
	WHERE status IN (?, ?)
	  AND scheduled_at <= ?
	ORDER BY priority DESC, created_at ASC, id ASC
	LIMIT ?
	` + lock + `
)
UPDATE sync_queue
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	shop_id,
	sync_type,
	payload,
	status,
	priority,
	retry_count,
	max_retries,
	scheduled_at,
	error_message,
	processed_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.QueueStatusPending),
			string(core.QueueStatusRetry),
			now,
			limit,
			string(core.QueueStatusProcessing),
			now,
			string(core.QueueStatusPending),
			string(core.QueueStatusRetry),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	// RETURNING order is unspecified
	sort.Slice(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority > records[j].Priority
		}
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	items := make([]core.SyncQueueItem, 0, len(records))
	for index := range records {
		items = append(items, records[index].toDomain())
	}
	return items, nil
}

func (s *QueueStore) MarkSuccess(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	return s.updateItem(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", string(core.QueueStatusSuccess)).
			Set("error_message = ?", "").
			Set("processed_at = ?", at).
			Set("updated_at = ?", at)
	})
}

func (s *QueueStore) MarkRetry(ctx context.Context, id string, retryCount int, scheduledAt time.Time, message string) error {
	return s.updateItem(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", string(core.QueueStatusRetry)).
			Set("retry_count = ?", retryCount).
			Set("scheduled_at = ?", scheduledAt.UTC()).
			Set("error_message = ?", message).
			Set("updated_at = ?", time.Now().UTC())
	})
}

func (s *QueueStore) MarkFailed(ctx context.Context, id string, retryCount int, message string, at time.Time) error {
	at = at.UTC()
	return s.updateItem(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", string(core.QueueStatusFailed)).
			Set("retry_count = ?", retryCount).
			Set("error_message = ?", message).
			Set("processed_at = ?", at).
			Set("updated_at = ?", at)
	})
}

func (s *QueueStore) Get(ctx context.Context, id string) (core.SyncQueueItem, error) {
	if s == nil || s.db == nil {
		return core.SyncQueueItem{}, fmt.Errorf("sqlstore: queue store is not configured")
	}
	record := &syncQueueRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SyncQueueItem{}, queue.ErrItemNotFound
		}
		return core.SyncQueueItem{}, err
	}
	return record.toDomain(), nil
}

func (s *QueueStore) updateItem(ctx context.Context, id string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: queue item id is required")
	}
	result, err := apply(s.db.NewUpdate().Model((*syncQueueRecord)(nil))).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

func newSyncQueueRecord(item core.SyncQueueItem) *syncQueueRecord {
	return &syncQueueRecord{
		ID:           item.ID,
		ShopID:       item.ShopID,
		SyncType:     string(item.SyncType),
		Payload:      copyAnyMap(item.Payload),
		Status:       string(item.Status),
		Priority:     item.Priority,
		RetryCount:   item.RetryCount,
		MaxRetries:   item.MaxRetries,
		ScheduledAt:  item.ScheduledAt.UTC(),
		ErrorMessage: item.ErrorMessage,
		ProcessedAt:  copyTimePointer(item.ProcessedAt),
		CreatedAt:    item.CreatedAt.UTC(),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}
}

func (r *syncQueueRecord) toDomain() core.SyncQueueItem {
	if r == nil {
		return core.SyncQueueItem{}
	}
	return core.SyncQueueItem{
		ID:           r.ID,
		ShopID:       r.ShopID,
		SyncType:     core.SyncType(r.SyncType),
		Payload:      copyAnyMap(r.Payload),
		Status:       core.QueueStatus(r.Status),
		Priority:     r.Priority,
		RetryCount:   r.RetryCount,
		MaxRetries:   r.MaxRetries,
		ScheduledAt:  r.ScheduledAt.UTC(),
		ErrorMessage: r.ErrorMessage,
		ProcessedAt:  copyTimePointer(r.ProcessedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}
