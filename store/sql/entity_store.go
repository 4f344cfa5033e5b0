package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/reconcile"
	"github.com/uptrace/bun"
)

// EntityStore persists orders, products and their children. Every
// reconciliation unit runs in one bun transaction; a natural key collision
// on insert surfaces as reconcile.ErrConflict so the caller can re-read and
// retry as an update.
type EntityStore struct {
	db *bun.DB
}

func NewEntityStore(db *bun.DB) (*EntityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &EntityStore{db: db}, nil
}

func (s *EntityStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx reconcile.Tx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: entity store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &entityTx{tx: tx})
	})
}

type entityTx struct {
	tx bun.Tx
}

func (t *entityTx) FindOrder(ctx context.Context, shopID int64, orderSN string) (*reconcile.OrderRow, error) {
	record := &orderRecord{}
	found, err := t.findOne(ctx, record, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.shop_id = ?", shopID).
			Where("?TableAlias.order_sn = ?", strings.TrimSpace(orderSN))
	})
	if err != nil || !found {
		return nil, err
	}
	row := record.toRow()
	return &row, nil
}

func (t *entityTx) InsertOrder(ctx context.Context, row *reconcile.OrderRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: order row is required")
	}
	return t.insert(ctx, newOrderRecord(*row))
}

func (t *entityTx) UpdateOrder(ctx context.Context, row *reconcile.OrderRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: order row is required")
	}
	return t.update(ctx, newOrderRecord(*row), row.ID)
}

func (t *entityTx) FindOrderItem(
	ctx context.Context,
	shopID int64,
	orderSN string,
	itemID int64,
	modelID int64,
) (*reconcile.OrderItemRow, error) {
	record := &orderItemRecord{}
	found, err := t.findOne(ctx, record, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.shop_id = ?", shopID).
			Where("?TableAlias.order_sn = ?", strings.TrimSpace(orderSN)).
			Where("?TableAlias.item_id = ?", itemID).
			Where("?TableAlias.model_id = ?", modelID)
	})
	if err != nil || !found {
		return nil, err
	}
	row := record.toRow()
	return &row, nil
}

func (t *entityTx) InsertOrderItem(ctx context.Context, row *reconcile.OrderItemRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: order item row is required")
	}
	return t.insert(ctx, newOrderItemRecord(*row))
}

// UpdateOrderItem never writes the locally owned note column.
func (t *entityTx) UpdateOrderItem(ctx context.Context, row *reconcile.OrderItemRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: order item row is required")
	}
	return t.update(ctx, newOrderItemRecord(*row), row.ID, "note", "created_at")
}

func (t *entityTx) FindProduct(ctx context.Context, shopID int64, itemID int64) (*reconcile.ProductRow, error) {
	record := &productRecord{}
	found, err := t.findOne(ctx, record, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.shop_id = ?", shopID).
			Where("?TableAlias.item_id = ?", itemID)
	})
	if err != nil || !found {
		return nil, err
	}
	row := record.toRow()
	return &row, nil
}

func (t *entityTx) InsertProduct(ctx context.Context, row *reconcile.ProductRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: product row is required")
	}
	return t.insert(ctx, newProductRecord(*row))
}

func (t *entityTx) UpdateProduct(ctx context.Context, row *reconcile.ProductRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: product row is required")
	}
	return t.update(ctx, newProductRecord(*row), row.ID)
}

func (t *entityTx) FindVariation(ctx context.Context, shopID int64, modelID int64) (*reconcile.VariationRow, error) {
	record := &variationRecord{}
	found, err := t.findOne(ctx, record, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.shop_id = ?", shopID).
			Where("?TableAlias.model_id = ?", modelID)
	})
	if err != nil || !found {
		return nil, err
	}
	row := record.toRow()
	return &row, nil
}

func (t *entityTx) InsertVariation(ctx context.Context, row *reconcile.VariationRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: variation row is required")
	}
	return t.insert(ctx, newVariationRecord(*row))
}

// UpdateVariation never writes the locally owned local_sku column.
func (t *entityTx) UpdateVariation(ctx context.Context, row *reconcile.VariationRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: variation row is required")
	}
	return t.update(ctx, newVariationRecord(*row), row.ID, "local_sku", "created_at")
}

func (t *entityTx) AppendInventoryLog(ctx context.Context, row *reconcile.InventoryLogRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: inventory log row is required")
	}
	record := &inventoryLogRecord{
		ID:        row.ID,
		ShopID:    row.ShopID,
		ItemID:    row.ItemID,
		ModelID:   row.ModelID,
		Field:     row.Field,
		Before:    row.Before,
		After:     row.After,
		Source:    row.Source,
		CreatedAt: row.CreatedAt.UTC(),
	}
	return t.insert(ctx, record)
}

func (t *entityTx) FindReturn(ctx context.Context, shopID int64, returnSN string) (*reconcile.ReturnRow, error) {
	record := &returnRecord{}
	found, err := t.findOne(ctx, record, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.shop_id = ?", shopID).
			Where("?TableAlias.return_sn = ?", strings.TrimSpace(returnSN))
	})
	if err != nil || !found {
		return nil, err
	}
	row := record.toRow()
	return &row, nil
}

func (t *entityTx) InsertReturn(ctx context.Context, row *reconcile.ReturnRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: return row is required")
	}
	return t.insert(ctx, newReturnRecord(*row))
}

func (t *entityTx) UpdateReturn(ctx context.Context, row *reconcile.ReturnRow) error {
	if row == nil {
		return fmt.Errorf("sqlstore: return row is required")
	}
	return t.update(ctx, newReturnRecord(*row), row.ID)
}

func (t *entityTx) findOne(ctx context.Context, model any, apply func(*bun.SelectQuery) *bun.SelectQuery) (bool, error) {
	err := apply(t.tx.NewSelect().Model(model)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *entityTx) insert(ctx context.Context, model any) error {
	if _, err := t.tx.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", reconcile.ErrConflict, err)
		}
		return err
	}
	return nil
}

func (t *entityTx) update(ctx context.Context, model any, id string, skip ...string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: row id is required for update")
	}
	query := t.tx.NewUpdate().Model(model).Where("id = ?", id)
	if len(skip) > 0 {
		query = query.ExcludeColumn(skip...)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("sqlstore: row %s does not exist", id)
	}
	return nil
}

func newOrderRecord(row reconcile.OrderRow) *orderRecord {
	return &orderRecord{
		ID:              row.ID,
		ShopID:          row.ShopID,
		OrderSN:         row.OrderSN,
		Status:          row.Status,
		BuyerUsername:   row.BuyerUsername,
		Currency:        row.Currency,
		TotalAmount:     row.TotalAmount,
		ShippingCarrier: row.ShippingCarrier,
		TrackingNumber:  row.TrackingNumber,
		PaymentMethod:   row.PaymentMethod,
		CreateTime:      timePointer(row.CreateTime),
		UpdateTime:      timePointer(row.UpdateTime),
		SyncedAt:        timePointer(row.SyncedAt),
		CreatedAt:       utcOrNow(row.CreatedAt),
		UpdatedAt:       utcOrNow(row.UpdatedAt),
	}
}

func (r *orderRecord) toRow() reconcile.OrderRow {
	return reconcile.OrderRow{
		ID:              r.ID,
		ShopID:          r.ShopID,
		OrderSN:         r.OrderSN,
		Status:          r.Status,
		BuyerUsername:   r.BuyerUsername,
		Currency:        r.Currency,
		TotalAmount:     r.TotalAmount,
		ShippingCarrier: r.ShippingCarrier,
		TrackingNumber:  r.TrackingNumber,
		PaymentMethod:   r.PaymentMethod,
		CreateTime:      timeValue(r.CreateTime),
		UpdateTime:      timeValue(r.UpdateTime),
		SyncedAt:        timeValue(r.SyncedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newOrderItemRecord(row reconcile.OrderItemRow) *orderItemRecord {
	return &orderItemRecord{
		ID:              row.ID,
		OrderID:         row.OrderID,
		ShopID:          row.ShopID,
		OrderSN:         row.OrderSN,
		ItemID:          row.ItemID,
		ModelID:         row.ModelID,
		ItemName:        row.ItemName,
		ModelName:       row.ModelName,
		SKU:             row.SKU,
		Quantity:        row.Quantity,
		OriginalPrice:   row.OriginalPrice,
		DiscountedPrice: row.DiscountedPrice,
		Note:            row.Note,
		CreatedAt:       utcOrNow(row.CreatedAt),
		UpdatedAt:       utcOrNow(row.UpdatedAt),
	}
}

func (r *orderItemRecord) toRow() reconcile.OrderItemRow {
	return reconcile.OrderItemRow{
		ID:              r.ID,
		OrderID:         r.OrderID,
		ShopID:          r.ShopID,
		OrderSN:         r.OrderSN,
		ItemID:          r.ItemID,
		ModelID:         r.ModelID,
		ItemName:        r.ItemName,
		ModelName:       r.ModelName,
		SKU:             r.SKU,
		Quantity:        r.Quantity,
		OriginalPrice:   r.OriginalPrice,
		DiscountedPrice: r.DiscountedPrice,
		Note:            r.Note,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newProductRecord(row reconcile.ProductRow) *productRecord {
	return &productRecord{
		ID:            row.ID,
		ShopID:        row.ShopID,
		ItemID:        row.ItemID,
		Name:          row.Name,
		SKU:           row.SKU,
		Status:        row.Status,
		Price:         row.Price,
		Stock:         row.Stock,
		ReservedStock: row.ReservedStock,
		HasModels:     row.HasModels,
		UpdateTime:    timePointer(row.UpdateTime),
		SyncedAt:      timePointer(row.SyncedAt),
		CreatedAt:     utcOrNow(row.CreatedAt),
		UpdatedAt:     utcOrNow(row.UpdatedAt),
	}
}

func (r *productRecord) toRow() reconcile.ProductRow {
	return reconcile.ProductRow{
		ID:            r.ID,
		ShopID:        r.ShopID,
		ItemID:        r.ItemID,
		Name:          r.Name,
		SKU:           r.SKU,
		Status:        r.Status,
		Price:         r.Price,
		Stock:         r.Stock,
		ReservedStock: r.ReservedStock,
		HasModels:     r.HasModels,
		UpdateTime:    timeValue(r.UpdateTime),
		SyncedAt:      timeValue(r.SyncedAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newVariationRecord(row reconcile.VariationRow) *variationRecord {
	return &variationRecord{
		ID:        row.ID,
		ProductID: row.ProductID,
		ShopID:    row.ShopID,
		ItemID:    row.ItemID,
		ModelID:   row.ModelID,
		Name:      row.Name,
		SKU:       row.SKU,
		LocalSKU:  row.LocalSKU,
		Price:     row.Price,
		Stock:     row.Stock,
		CreatedAt: utcOrNow(row.CreatedAt),
		UpdatedAt: utcOrNow(row.UpdatedAt),
	}
}

func (r *variationRecord) toRow() reconcile.VariationRow {
	return reconcile.VariationRow{
		ID:        r.ID,
		ProductID: r.ProductID,
		ShopID:    r.ShopID,
		ItemID:    r.ItemID,
		ModelID:   r.ModelID,
		Name:      r.Name,
		SKU:       r.SKU,
		LocalSKU:  r.LocalSKU,
		Price:     r.Price,
		Stock:     r.Stock,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newReturnRecord(row reconcile.ReturnRow) *returnRecord {
	return &returnRecord{
		ID:           row.ID,
		ShopID:       row.ShopID,
		ReturnSN:     row.ReturnSN,
		OrderSN:      row.OrderSN,
		Status:       row.Status,
		Reason:       row.Reason,
		RefundAmount: row.RefundAmount,
		UpdateTime:   timePointer(row.UpdateTime),
		SyncedAt:     timePointer(row.SyncedAt),
		CreatedAt:    utcOrNow(row.CreatedAt),
		UpdatedAt:    utcOrNow(row.UpdatedAt),
	}
}

func (r *returnRecord) toRow() reconcile.ReturnRow {
	return reconcile.ReturnRow{
		ID:           r.ID,
		ShopID:       r.ShopID,
		ReturnSN:     r.ReturnSN,
		OrderSN:      r.OrderSN,
		Status:       r.Status,
		Reason:       r.Reason,
		RefundAmount: r.RefundAmount,
		UpdateTime:   timeValue(r.UpdateTime),
		SyncedAt:     timeValue(r.SyncedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func utcOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
