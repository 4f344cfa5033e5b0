package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/google/uuid"
)

// SourceSync marks inventory history written by a scheduled or manual sync.
const SourceSync = "sync"

type Reconciler struct {
	store    Store
	observer *core.Observer
	now      func() time.Time
	newID    func() string
}

type Option func(*Reconciler)

func WithObserver(observer *core.Observer) Option {
	return func(r *Reconciler) {
		if observer != nil {
			r.observer = observer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) {
		if newID != nil {
			r.newID = newID
		}
	}
}

func New(store Store, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	r := &Reconciler{
		store:    store,
		observer: core.NewObserver(nil, nil),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// inTx runs fn in its own transaction and retries once when an insert lost
// a race on the natural key; the second pass finds the row and updates it.
func (r *Reconciler) inTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := r.store.WithinTx(ctx, fn)
	if errors.Is(err, ErrConflict) {
		err = r.store.WithinTx(ctx, fn)
	}
	return err
}

// UpsertOrder writes the order and its line items. A snapshot older than the
// stored update_time does not move the status back.
func (r *Reconciler) UpsertOrder(ctx context.Context, order core.ExternalOrder) (result core.UpsertResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"shop_id":  order.ShopID,
		"kind":     "order",
		"order_sn": order.OrderSN,
	}
	defer func() {
		fields["action"] = string(result.Action)
		r.observer.Observe(ctx, startedAt, "upsert", err, fields)
	}()

	order.OrderSN = strings.TrimSpace(order.OrderSN)
	if order.ShopID <= 0 || order.OrderSN == "" {
		return core.UpsertResult{}, core.NewError(core.ErrorValidation, "reconcile: order needs a shop id and order_sn", nil)
	}
	r.reportIssues(ctx, "order", order.OrderSN, order.ShopID, order.Issues)

	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		now := r.now()
		row, err := tx.FindOrder(ctx, order.ShopID, order.OrderSN)
		if err != nil {
			return err
		}
		if row == nil {
			row = &OrderRow{
				ID:        r.newID(),
				ShopID:    order.ShopID,
				OrderSN:   order.OrderSN,
				CreatedAt: now,
			}
			applyOrderFields(row, order, now)
			if err := tx.InsertOrder(ctx, row); err != nil {
				return err
			}
			result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionCreated}
		} else {
			stale := staleOrder(row, order)
			applyOrderFields(row, order, now)
			if err := tx.UpdateOrder(ctx, row); err != nil {
				return err
			}
			result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionUpdated}
			if stale {
				return nil
			}
		}
		return r.upsertOrderItems(ctx, tx, row, order.Items, now)
	})
	if err != nil {
		return core.UpsertResult{}, wrapWriteError(err, "order", order.OrderSN)
	}
	return result, nil
}

// staleOrder reports whether order is an older snapshot than the stored row.
func staleOrder(row *OrderRow, order core.ExternalOrder) bool {
	return !order.UpdateTime.IsZero() && !row.UpdateTime.IsZero() && order.UpdateTime.Before(row.UpdateTime)
}

// applyOrderFields copies a snapshot onto row. An older snapshot only bumps
// SyncedAt; none of its mapped fields replace newer values.
func applyOrderFields(row *OrderRow, order core.ExternalOrder, now time.Time) {
	row.SyncedAt = now
	row.UpdatedAt = now
	if staleOrder(row, order) {
		return
	}
	if order.Status != "" {
		row.Status = string(order.Status)
	}
	if !order.UpdateTime.IsZero() {
		row.UpdateTime = order.UpdateTime
	}
	row.BuyerUsername = order.BuyerUsername
	row.Currency = order.Currency
	row.TotalAmount = order.TotalAmount
	row.PaymentMethod = order.PaymentMethod
	if order.ShippingCarrier != "" {
		row.ShippingCarrier = order.ShippingCarrier
	}
	if order.TrackingNumber != "" {
		row.TrackingNumber = order.TrackingNumber
	}
	if !order.CreateTime.IsZero() {
		row.CreateTime = order.CreateTime
	}
}

func (r *Reconciler) upsertOrderItems(ctx context.Context, tx Tx, order *OrderRow, items []core.ExternalOrderItem, now time.Time) error {
	for _, item := range items {
		if item.ItemID <= 0 {
			continue
		}
		row, err := tx.FindOrderItem(ctx, order.ShopID, order.OrderSN, item.ItemID, item.ModelID)
		if err != nil {
			return err
		}
		create := row == nil
		if create {
			row = &OrderItemRow{
				ID:        r.newID(),
				OrderID:   order.ID,
				ShopID:    order.ShopID,
				OrderSN:   order.OrderSN,
				ItemID:    item.ItemID,
				ModelID:   item.ModelID,
				CreatedAt: now,
			}
		}
		row.ItemName = item.ItemName
		row.ModelName = item.ModelName
		row.SKU = firstNonEmpty(item.ModelSKU, item.ItemSKU)
		row.Quantity = item.Quantity
		row.OriginalPrice = item.OriginalPrice
		row.DiscountedPrice = item.DiscountedPrice
		row.UpdatedAt = now
		if create {
			err = tx.InsertOrderItem(ctx, row)
		} else {
			err = tx.UpdateOrderItem(ctx, row)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertProduct writes the product and its variations, appending inventory
// history for every stock value that changed.
func (r *Reconciler) UpsertProduct(ctx context.Context, product core.ExternalProduct) (result core.UpsertResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"shop_id": product.ShopID,
		"kind":    "product",
		"item_id": product.ItemID,
	}
	defer func() {
		fields["action"] = string(result.Action)
		r.observer.Observe(ctx, startedAt, "upsert", err, fields)
	}()

	if product.ShopID <= 0 || product.ItemID <= 0 {
		return core.UpsertResult{}, core.NewError(core.ErrorValidation, "reconcile: product needs a shop id and item_id", nil)
	}
	r.reportIssues(ctx, "product", fmt.Sprint(product.ItemID), product.ShopID, product.Issues)

	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		now := r.now()
		row, err := tx.FindProduct(ctx, product.ShopID, product.ItemID)
		if err != nil {
			return err
		}
		if row == nil {
			row = &ProductRow{
				ID:        r.newID(),
				ShopID:    product.ShopID,
				ItemID:    product.ItemID,
				CreatedAt: now,
			}
			applyProductFields(row, product, now)
			if err := tx.InsertProduct(ctx, row); err != nil {
				return err
			}
			result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionCreated}
		} else {
			if err := r.logStock(ctx, tx, row.ShopID, row.ItemID, 0, InventoryFieldStock, row.Stock, product.Stock, SourceSync, now); err != nil {
				return err
			}
			if err := r.logStock(ctx, tx, row.ShopID, row.ItemID, 0, InventoryFieldReserved, row.ReservedStock, product.ReservedStock, SourceSync, now); err != nil {
				return err
			}
			applyProductFields(row, product, now)
			if err := tx.UpdateProduct(ctx, row); err != nil {
				return err
			}
			result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionUpdated}
		}
		return r.upsertVariations(ctx, tx, row, product.Models, now)
	})
	if err != nil {
		return core.UpsertResult{}, wrapWriteError(err, "product", fmt.Sprint(product.ItemID))
	}
	return result, nil
}

func applyProductFields(row *ProductRow, product core.ExternalProduct, now time.Time) {
	row.Name = product.Name
	row.SKU = product.SKU
	if product.Status != "" {
		row.Status = string(product.Status)
	}
	row.Price = product.Price
	row.Stock = product.Stock
	row.ReservedStock = product.ReservedStock
	row.HasModels = product.HasModels || len(product.Models) > 0
	if !product.UpdateTime.IsZero() {
		row.UpdateTime = product.UpdateTime
	}
	row.SyncedAt = now
	row.UpdatedAt = now
}

func (r *Reconciler) upsertVariations(ctx context.Context, tx Tx, product *ProductRow, models []core.ExternalModel, now time.Time) error {
	for _, model := range models {
		if model.ModelID <= 0 {
			continue
		}
		row, err := tx.FindVariation(ctx, product.ShopID, model.ModelID)
		if err != nil {
			return err
		}
		if row == nil {
			row = &VariationRow{
				ID:        r.newID(),
				ProductID: product.ID,
				ShopID:    product.ShopID,
				ItemID:    product.ItemID,
				ModelID:   model.ModelID,
				Name:      model.Name,
				SKU:       model.SKU,
				Price:     model.Price,
				Stock:     model.Stock,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertVariation(ctx, row); err != nil {
				return err
			}
			continue
		}
		if err := r.logStock(ctx, tx, product.ShopID, product.ItemID, model.ModelID, InventoryFieldStock, row.Stock, model.Stock, SourceSync, now); err != nil {
			return err
		}
		row.ProductID = product.ID
		row.ItemID = product.ItemID
		row.Name = model.Name
		row.SKU = model.SKU
		row.Price = model.Price
		row.Stock = model.Stock
		row.UpdatedAt = now
		if err := tx.UpdateVariation(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// logStock appends a history row when before and after differ.
func (r *Reconciler) logStock(ctx context.Context, tx Tx, shopID int64, itemID int64, modelID int64, field string, before int, after int, source string, now time.Time) error {
	if before == after {
		return nil
	}
	return tx.AppendInventoryLog(ctx, &InventoryLogRow{
		ID:        r.newID(),
		ShopID:    shopID,
		ItemID:    itemID,
		ModelID:   modelID,
		Field:     field,
		Before:    before,
		After:     after,
		Source:    source,
		CreatedAt: now,
	})
}

func (r *Reconciler) UpsertReturn(ctx context.Context, ret core.ExternalReturn) (result core.UpsertResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"shop_id":   ret.ShopID,
		"kind":      "return",
		"return_sn": ret.ReturnSN,
	}
	defer func() {
		fields["action"] = string(result.Action)
		r.observer.Observe(ctx, startedAt, "upsert", err, fields)
	}()

	ret.ReturnSN = strings.TrimSpace(ret.ReturnSN)
	if ret.ShopID <= 0 || ret.ReturnSN == "" {
		return core.UpsertResult{}, core.NewError(core.ErrorValidation, "reconcile: return needs a shop id and return_sn", nil)
	}
	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		now := r.now()
		row, err := tx.FindReturn(ctx, ret.ShopID, ret.ReturnSN)
		if err != nil {
			return err
		}
		create := row == nil
		if create {
			row = &ReturnRow{ID: r.newID(), ShopID: ret.ShopID, ReturnSN: ret.ReturnSN, CreatedAt: now}
		}
		row.OrderSN = ret.OrderSN
		row.Status = ret.Status
		row.Reason = ret.Reason
		row.RefundAmount = ret.RefundAmount
		if !ret.UpdateTime.IsZero() {
			row.UpdateTime = ret.UpdateTime
		}
		row.SyncedAt = now
		row.UpdatedAt = now
		if create {
			result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionCreated}
			return tx.InsertReturn(ctx, row)
		}
		result = core.UpsertResult{ID: row.ID, Action: core.UpsertActionUpdated}
		return tx.UpdateReturn(ctx, row)
	})
	if err != nil {
		return core.UpsertResult{}, wrapWriteError(err, "return", ret.ReturnSN)
	}
	return result, nil
}

func (r *Reconciler) reportIssues(ctx context.Context, kind string, key string, shopID int64, issues []string) {
	if len(issues) == 0 {
		return
	}
	r.observer.Warn(ctx, "upstream payload coerced", map[string]any{
		"shop_id":    shopID,
		"kind":       kind,
		"key":        key,
		"error_code": core.ErrorValidation,
		"issues":     strings.Join(issues, "; "),
	})
}

func wrapWriteError(err error, kind string, key string) error {
	if core.TextCode(err) != "" {
		return err
	}
	return core.WrapError(err, core.ErrorInternal, fmt.Sprintf("reconcile: writing %s %s failed", kind, key), map[string]any{
		"kind": kind,
		"key":  key,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
