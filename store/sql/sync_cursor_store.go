package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SyncCursorStore keeps the watermark and resume checkpoint of each
// (shop, kind) pair.
type SyncCursorStore struct {
	db   *bun.DB
	repo repository.Repository[*syncCursorRecord]
}

func NewSyncCursorStore(db *bun.DB) (*SyncCursorStore, error) {
	repo, err := newRepository(db, syncCursorHandlers(), "sync cursor")
	if err != nil {
		return nil, err
	}
	return &SyncCursorStore{db: db, repo: repo}, nil
}

func (s *SyncCursorStore) Get(ctx context.Context, shopID int64, kind core.SyncKind) (*core.SyncCursor, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: sync cursor store is not configured")
	}
	kind = normalizeSyncKind(kind)
	if shopID <= 0 || kind == "" {
		return nil, fmt.Errorf("sqlstore: shop id and sync kind are required")
	}
	record := &syncCursorRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.shop_id = ?", shopID).
		Where("?TableAlias.kind = ?", string(kind)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out := record.toDomain()
	return &out, nil
}

func (s *SyncCursorStore) Put(ctx context.Context, cursor core.SyncCursor) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: sync cursor store is not configured")
	}
	cursor.Kind = normalizeSyncKind(cursor.Kind)
	if cursor.ShopID <= 0 || cursor.Kind == "" {
		return fmt.Errorf("sqlstore: shop id and sync kind are required")
	}
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}
	err := s.put(ctx, cursor)
	if isUniqueViolation(err) {
		err = s.put(ctx, cursor)
	}
	return err
}

func (s *SyncCursorStore) put(ctx context.Context, cursor core.SyncCursor) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSyncCursorTx(ctx, tx, cursor.ShopID, cursor.Kind)
		if err != nil {
			return err
		}
		if record == nil {
			record = &syncCursorRecord{
				ID:        uuid.NewString(),
				CreatedAt: cursor.UpdatedAt.UTC(),
			}
			applySyncCursor(record, cursor)
			_, createErr := s.repo.CreateTx(ctx, tx, record)
			return createErr
		}
		applySyncCursor(record, cursor)
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func applySyncCursor(record *syncCursorRecord, cursor core.SyncCursor) {
	record.ShopID = cursor.ShopID
	record.Kind = string(cursor.Kind)
	record.Watermark = timePointer(cursor.Watermark)
	record.InFlight = cursor.InFlight
	record.Dimension = cursor.Dimension
	record.Cursor = cursor.Cursor
	record.Page = cursor.Page
	record.DimensionDone = cursor.DimensionDone
	record.WindowFrom = timePointer(cursor.WindowFrom)
	record.WindowTo = timePointer(cursor.WindowTo)
	record.Failed = append([]string{}, cursor.FailedDimensions...)
	record.UpdatedAt = cursor.UpdatedAt.UTC()
}

func (r *syncCursorRecord) toDomain() core.SyncCursor {
	if r == nil {
		return core.SyncCursor{}
	}
	return core.SyncCursor{
		ShopID:        r.ShopID,
		Kind:          core.SyncKind(r.Kind),
		Watermark:     timeValue(r.Watermark),
		InFlight:      r.InFlight,
		Dimension:     r.Dimension,
		Cursor:        r.Cursor,
		Page:          r.Page,
		DimensionDone: r.DimensionDone,
		WindowFrom:    timeValue(r.WindowFrom),
		WindowTo:      timeValue(r.WindowTo),
		UpdatedAt:     r.UpdatedAt.UTC(),

		FailedDimensions: append([]string(nil), r.Failed...),
	}
}

func findSyncCursorTx(ctx context.Context, tx bun.Tx, shopID int64, kind core.SyncKind) (*syncCursorRecord, error) {
	record := &syncCursorRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.shop_id = ?", shopID).
		Where("?TableAlias.kind = ?", string(kind)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeSyncKind(kind core.SyncKind) core.SyncKind {
	return core.SyncKind(strings.TrimSpace(strings.ToLower(string(kind))))
}
