package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-marketsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore keeps one shop_tokens row per shop. Put overwrites the row in
// place so a refresh never leaves two live tokens for a shop.
type TokenStore struct {
	db   *bun.DB
	repo repository.Repository[*shopTokenRecord]
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	repo, err := newRepository(db, shopTokenHandlers(), "shop token")
	if err != nil {
		return nil, err
	}
	return &TokenStore{db: db, repo: repo}, nil
}

func (s *TokenStore) Get(ctx context.Context, shopID int64) (*core.TokenRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: token store is not configured")
	}
	record := &shopTokenRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.shop_id = ?", shopID).
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

func (s *TokenStore) Put(ctx context.Context, shopID int64, in core.TokenRecord) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	in.ShopID = shopID
	if err := in.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	err := s.put(ctx, shopID, in, now)
	if isUniqueViolation(err) {
		// lost the first-insert race; the second pass updates the winner
		err = s.put(ctx, shopID, in, now)
	}
	return err
}

func (s *TokenStore) put(ctx context.Context, shopID int64, in core.TokenRecord, now time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findShopTokenTx(ctx, tx, shopID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &shopTokenRecord{
				ID:        uuid.NewString(),
				ShopID:    shopID,
				CreatedAt: now,
			}
			applyTokenRecord(record, in, now)
			_, createErr := s.repo.CreateTx(ctx, tx, record)
			return createErr
		}
		applyTokenRecord(record, in, now)
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func (s *TokenStore) List(ctx context.Context) ([]core.TokenRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: token store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("shop_id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]core.TokenRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func applyTokenRecord(record *shopTokenRecord, in core.TokenRecord, now time.Time) {
	record.AccessToken = in.AccessToken
	record.RefreshToken = in.RefreshToken
	record.ExpiresAt = in.ExpiresAt.UTC()
	record.LastRefreshedAt = timePointer(in.LastRefreshedAt)
	record.UpdatedAt = now
}

func (r *shopTokenRecord) toDomain() core.TokenRecord {
	if r == nil {
		return core.TokenRecord{}
	}
	return core.TokenRecord{
		ShopID:          r.ShopID,
		AccessToken:     r.AccessToken,
		RefreshToken:    r.RefreshToken,
		ExpiresAt:       r.ExpiresAt.UTC(),
		LastRefreshedAt: timeValue(r.LastRefreshedAt),
	}
}

func findShopTokenTx(ctx context.Context, tx bun.Tx, shopID int64) (*shopTokenRecord, error) {
	record := &shopTokenRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.shop_id = ?", shopID).
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
