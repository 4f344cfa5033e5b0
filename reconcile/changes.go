package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

// Partial updates pushed by the marketplace. Each returns changed=false when
// the stored row already holds the value, and NOT_FOUND when the entity was
// never synced so the caller can fetch it in full.

type OrderStatusChange struct {
	ShopID     int64
	OrderSN    string
	Status     core.OrderStatus
	UpdateTime time.Time
}

type TrackingChange struct {
	ShopID         int64
	OrderSN        string
	TrackingNumber string
	Carrier        string
}

// StockChange sets the available and/or reserved stock of an item, or of one
// of its variations when ModelID is set. Nil fields are left untouched.
type StockChange struct {
	ShopID   int64
	ItemID   int64
	ModelID  int64
	Stock    *int
	Reserved *int
	Source   string
}

type PriceChange struct {
	ShopID  int64
	ItemID  int64
	ModelID int64
	Price   float64
}

// ApplyOrderStatus moves an order to status unless the change is older than
// the stored update_time.
func (r *Reconciler) ApplyOrderStatus(ctx context.Context, change OrderStatusChange) (changed bool, err error) {
	change.OrderSN = strings.TrimSpace(change.OrderSN)
	if change.ShopID <= 0 || change.OrderSN == "" || change.Status == "" {
		return false, core.NewError(core.ErrorValidation, "reconcile: status change needs shop id, order_sn and status", nil)
	}
	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = false
		row, err := tx.FindOrder(ctx, change.ShopID, change.OrderSN)
		if err != nil {
			return err
		}
		if row == nil {
			return orderNotFound(change.ShopID, change.OrderSN)
		}
		if !change.UpdateTime.IsZero() && !row.UpdateTime.IsZero() && change.UpdateTime.Before(row.UpdateTime) {
			return nil
		}
		if row.Status == string(change.Status) {
			return nil
		}
		now := r.now()
		row.Status = string(change.Status)
		if !change.UpdateTime.IsZero() {
			row.UpdateTime = change.UpdateTime
		}
		row.UpdatedAt = now
		changed = true
		return tx.UpdateOrder(ctx, row)
	})
	return changed, err
}

func (r *Reconciler) ApplyTracking(ctx context.Context, change TrackingChange) (changed bool, err error) {
	change.OrderSN = strings.TrimSpace(change.OrderSN)
	change.TrackingNumber = strings.TrimSpace(change.TrackingNumber)
	if change.ShopID <= 0 || change.OrderSN == "" || change.TrackingNumber == "" {
		return false, core.NewError(core.ErrorValidation, "reconcile: tracking change needs shop id, order_sn and tracking number", nil)
	}
	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = false
		row, err := tx.FindOrder(ctx, change.ShopID, change.OrderSN)
		if err != nil {
			return err
		}
		if row == nil {
			return orderNotFound(change.ShopID, change.OrderSN)
		}
		carrier := strings.TrimSpace(change.Carrier)
		if row.TrackingNumber == change.TrackingNumber && (carrier == "" || row.ShippingCarrier == carrier) {
			return nil
		}
		row.TrackingNumber = change.TrackingNumber
		if carrier != "" {
			row.ShippingCarrier = carrier
		}
		row.UpdatedAt = r.now()
		changed = true
		return tx.UpdateOrder(ctx, row)
	})
	return changed, err
}

// ApplyStock writes the new stock values and appends one history row per
// value that moved.
func (r *Reconciler) ApplyStock(ctx context.Context, change StockChange) (changed bool, err error) {
	if change.ShopID <= 0 || change.ItemID <= 0 {
		return false, core.NewError(core.ErrorValidation, "reconcile: stock change needs shop id and item id", nil)
	}
	if change.Stock == nil && change.Reserved == nil {
		return false, nil
	}
	if (change.Stock != nil && *change.Stock < 0) || (change.Reserved != nil && *change.Reserved < 0) {
		return false, core.NewError(core.ErrorValidation, "reconcile: stock values cannot be negative", map[string]any{
			"item_id": change.ItemID,
		})
	}
	source := strings.TrimSpace(change.Source)
	if source == "" {
		source = SourceSync
	}
	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = false
		now := r.now()
		if change.ModelID > 0 {
			return r.applyVariationStock(ctx, tx, change, source, now, &changed)
		}
		row, err := tx.FindProduct(ctx, change.ShopID, change.ItemID)
		if err != nil {
			return err
		}
		if row == nil {
			return productNotFound(change.ShopID, change.ItemID)
		}
		if change.Stock != nil && *change.Stock != row.Stock {
			if err := r.logStock(ctx, tx, row.ShopID, row.ItemID, 0, InventoryFieldStock, row.Stock, *change.Stock, source, now); err != nil {
				return err
			}
			row.Stock = *change.Stock
			changed = true
		}
		if change.Reserved != nil && *change.Reserved != row.ReservedStock {
			if err := r.logStock(ctx, tx, row.ShopID, row.ItemID, 0, InventoryFieldReserved, row.ReservedStock, *change.Reserved, source, now); err != nil {
				return err
			}
			row.ReservedStock = *change.Reserved
			changed = true
		}
		if !changed {
			return nil
		}
		row.UpdatedAt = now
		return tx.UpdateProduct(ctx, row)
	})
	return changed, err
}

func (r *Reconciler) applyVariationStock(ctx context.Context, tx Tx, change StockChange, source string, now time.Time, changed *bool) error {
	row, err := tx.FindVariation(ctx, change.ShopID, change.ModelID)
	if err != nil {
		return err
	}
	if row == nil {
		return core.NewError(core.ErrorNotFound, fmt.Sprintf("reconcile: variation %d not synced", change.ModelID), map[string]any{
			"shop_id":  change.ShopID,
			"item_id":  change.ItemID,
			"model_id": change.ModelID,
		})
	}
	// variations carry no reserved counter; reserved changes land on the item
	if change.Reserved != nil {
		product, err := tx.FindProduct(ctx, change.ShopID, change.ItemID)
		if err != nil {
			return err
		}
		if product != nil && product.ReservedStock != *change.Reserved {
			if err := r.logStock(ctx, tx, product.ShopID, product.ItemID, change.ModelID, InventoryFieldReserved, product.ReservedStock, *change.Reserved, source, now); err != nil {
				return err
			}
			product.ReservedStock = *change.Reserved
			product.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, product); err != nil {
				return err
			}
			*changed = true
		}
	}
	if change.Stock == nil || *change.Stock == row.Stock {
		return nil
	}
	if err := r.logStock(ctx, tx, row.ShopID, row.ItemID, row.ModelID, InventoryFieldStock, row.Stock, *change.Stock, source, now); err != nil {
		return err
	}
	row.Stock = *change.Stock
	row.UpdatedAt = now
	*changed = true
	return tx.UpdateVariation(ctx, row)
}

func (r *Reconciler) ApplyPrice(ctx context.Context, change PriceChange) (changed bool, err error) {
	if change.ShopID <= 0 || change.ItemID <= 0 || change.Price <= 0 {
		return false, core.NewError(core.ErrorValidation, "reconcile: price change needs shop id, item id and a positive price", nil)
	}
	err = r.inTx(ctx, func(ctx context.Context, tx Tx) error {
		changed = false
		now := r.now()
		if change.ModelID > 0 {
			row, err := tx.FindVariation(ctx, change.ShopID, change.ModelID)
			if err != nil {
				return err
			}
			if row == nil {
				return core.NewError(core.ErrorNotFound, fmt.Sprintf("reconcile: variation %d not synced", change.ModelID), nil)
			}
			if row.Price == change.Price {
				return nil
			}
			row.Price = change.Price
			row.UpdatedAt = now
			changed = true
			return tx.UpdateVariation(ctx, row)
		}
		row, err := tx.FindProduct(ctx, change.ShopID, change.ItemID)
		if err != nil {
			return err
		}
		if row == nil {
			return productNotFound(change.ShopID, change.ItemID)
		}
		if row.Price == change.Price {
			return nil
		}
		row.Price = change.Price
		row.UpdatedAt = now
		changed = true
		return tx.UpdateProduct(ctx, row)
	})
	return changed, err
}

func orderNotFound(shopID int64, orderSN string) error {
	return core.NewError(core.ErrorNotFound, fmt.Sprintf("reconcile: order %s not synced", orderSN), map[string]any{
		"shop_id":  shopID,
		"order_sn": orderSN,
	})
}

func productNotFound(shopID int64, itemID int64) error {
	return core.NewError(core.ErrorNotFound, fmt.Sprintf("reconcile: item %d not synced", itemID), map[string]any{
		"shop_id": shopID,
		"item_id": itemID,
	})
}
