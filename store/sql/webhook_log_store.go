package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookLogStore is the append-only webhook_logs table. Complete touches an
// entry at most once.
type WebhookLogStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookLogRecord]
}

func NewWebhookLogStore(db *bun.DB) (*WebhookLogStore, error) {
	repo, err := newRepository(db, webhookLogHandlers(), "webhook log")
	if err != nil {
		return nil, err
	}
	return &WebhookLogStore{db: db, repo: repo}, nil
}

func (s *WebhookLogStore) Append(ctx context.Context, entry core.WebhookLogEntry) (core.WebhookLogEntry, error) {
	if s == nil || s.repo == nil {
		return core.WebhookLogEntry{}, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	if strings.TrimSpace(string(entry.Status)) == "" {
		entry.Status = core.WebhookStatusReceived
	}
	record := &webhookLogRecord{
		ID:          entry.ID,
		Code:        entry.Code,
		ShopID:      entry.ShopID,
		Payload:     entry.Payload,
		Signature:   entry.Signature,
		Verified:    entry.Verified,
		Status:      string(entry.Status),
		Error:       entry.Error,
		Digest:      entry.Digest,
		ReceivedAt:  entry.ReceivedAt.UTC(),
		CompletedAt: copyTimePointer(entry.CompletedAt),
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.WebhookLogEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *WebhookLogStore) Complete(
	ctx context.Context,
	id string,
	status core.WebhookStatus,
	message string,
	at time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: webhook log id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookLogRecord)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", message).
		Set("completed_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("sqlstore: webhook log entry %s not found or already completed", id)
	}
	return nil
}

func (s *WebhookLogStore) ProcessedDigest(ctx context.Context, digest string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return false, nil
	}
	return s.db.NewSelect().
		Model((*webhookLogRecord)(nil)).
		Where("?TableAlias.digest = ?", digest).
		Where("?TableAlias.status = ?", string(core.WebhookStatusSuccess)).
		Exists(ctx)
}

// Recent lists the newest entries for a shop, or for every shop when shopID
// is zero.
func (s *WebhookLogStore) Recent(ctx context.Context, shopID int64, limit int) ([]core.WebhookLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook log store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []webhookLogRecord
	query := s.db.NewSelect().Model(&records)
	if shopID > 0 {
		query = query.Where("?TableAlias.shop_id = ?", shopID)
	}
	if err := query.OrderExpr("?TableAlias.received_at DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.WebhookLogEntry, 0, len(records))
	for index := range records {
		out = append(out, records[index].toDomain())
	}
	return out, nil
}

func (r *webhookLogRecord) toDomain() core.WebhookLogEntry {
	if r == nil {
		return core.WebhookLogEntry{}
	}
	return core.WebhookLogEntry{
		ID:          r.ID,
		Code:        r.Code,
		ShopID:      r.ShopID,
		Payload:     r.Payload,
		Signature:   r.Signature,
		Verified:    r.Verified,
		Status:      core.WebhookStatus(r.Status),
		Error:       r.Error,
		Digest:      r.Digest,
		ReceivedAt:  r.ReceivedAt.UTC(),
		CompletedAt: copyTimePointer(r.CompletedAt),
	}
}
