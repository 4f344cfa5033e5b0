package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/reconcile"
)

const SourceWebhook = "webhook"

// Reconciler is the write side the push handlers apply changes through.
type Reconciler interface {
	ApplyOrderStatus(ctx context.Context, change reconcile.OrderStatusChange) (bool, error)
	ApplyTracking(ctx context.Context, change reconcile.TrackingChange) (bool, error)
	ApplyStock(ctx context.Context, change reconcile.StockChange) (bool, error)
	UpsertOrder(ctx context.Context, order core.ExternalOrder) (core.UpsertResult, error)
	UpsertProduct(ctx context.Context, product core.ExternalProduct) (core.UpsertResult, error)
}

// Upstream loads a full entity when a push refers to one that was never
// synced, or when the push carries no usable values.
type Upstream interface {
	FetchOrder(ctx context.Context, shopID int64, orderSN string) (core.ExternalOrder, error)
	FetchProduct(ctx context.Context, shopID int64, itemID int64) (core.ExternalProduct, error)
}

// Handlers holds the default push handlers.
type Handlers struct {
	Reconciler Reconciler
	Upstream   Upstream
	Observer   *core.Observer
}

// RegisterDefaultHandlers wires order status, tracking, reserved stock and
// promotion pushes plus the log-only shop events.
func RegisterDefaultHandlers(r *Receiver, h Handlers) error {
	if h.Reconciler == nil {
		return fmt.Errorf("webhooks: reconciler is required")
	}
	if h.Observer == nil {
		h.Observer = r.Observer
	}
	registrations := map[int]Handler{
		CodeShopDeauthorization: HandlerFunc(h.ShopEvent),
		CodeOrderStatus:         HandlerFunc(h.OrderStatus),
		CodeTrackingNumber:      HandlerFunc(h.TrackingNumber),
		CodeShopUpdate:          HandlerFunc(h.ShopEvent),
		CodeReservedStock:       HandlerFunc(h.ReservedStock),
		CodePromotionUpdate:     HandlerFunc(h.PromotionUpdate),
	}
	for _, code := range []int{CodeShopDeauthorization, CodeOrderStatus, CodeTrackingNumber, CodeShopUpdate, CodeReservedStock, CodePromotionUpdate} {
		if err := r.Register(code, registrations[code]); err != nil {
			return err
		}
	}
	return nil
}

// OrderStatus applies a status push. A buyer cancellation arrives as a
// status push with IN_CANCEL or CANCELLED.
func (h Handlers) OrderStatus(ctx context.Context, event Envelope) error {
	var coerce core.Coercion
	change := reconcile.OrderStatusChange{
		ShopID:     event.ShopID,
		OrderSN:    coerce.String("ordersn", firstValue(event.Data, "ordersn", "order_sn")),
		Status:     core.OrderStatus(strings.ToUpper(coerce.String("status", event.Data["status"]))),
		UpdateTime: coerce.Unix("update_time", event.Data["update_time"]),
	}
	if !coerce.Valid() || change.OrderSN == "" || change.Status == "" {
		return dataError(event, coerce.Issues)
	}
	if change.UpdateTime.IsZero() {
		change.UpdateTime = event.Timestamp
	}
	if change.Status.IsCancellation() {
		h.Observer.Info(ctx, "order cancellation received", map[string]any{
			"shop_id":  change.ShopID,
			"order_sn": change.OrderSN,
			"status":   string(change.Status),
		})
	}
	_, err := h.Reconciler.ApplyOrderStatus(ctx, change)
	if core.HasTextCode(err, core.ErrorNotFound) {
		return h.syncOrder(ctx, change.ShopID, change.OrderSN)
	}
	return err
}

func (h Handlers) TrackingNumber(ctx context.Context, event Envelope) error {
	var coerce core.Coercion
	change := reconcile.TrackingChange{
		ShopID:         event.ShopID,
		OrderSN:        coerce.String("ordersn", firstValue(event.Data, "ordersn", "order_sn")),
		TrackingNumber: coerce.String("tracking_no", firstValue(event.Data, "tracking_no", "tracking_number")),
		Carrier:        coerce.String("shipping_carrier", firstValue(event.Data, "shipping_carrier", "logistics_channel")),
	}
	if !coerce.Valid() || change.OrderSN == "" || change.TrackingNumber == "" {
		return dataError(event, coerce.Issues)
	}
	_, err := h.Reconciler.ApplyTracking(ctx, change)
	if core.HasTextCode(err, core.ErrorNotFound) {
		return h.syncOrder(ctx, change.ShopID, change.OrderSN)
	}
	return err
}

// ReservedStock reads the reserved value from changed_values, falling back
// to a flat reserved_stock field.
func (h Handlers) ReservedStock(ctx context.Context, event Envelope) error {
	var coerce core.Coercion
	itemID := coerce.Int64("item_id", event.Data["item_id"])
	modelID := coerce.Int64("model_id", firstValue(event.Data, "model_id", "variation_id"))
	reserved, found := reservedValue(&coerce, event.Data)
	if !coerce.Valid() || itemID <= 0 {
		return dataError(event, coerce.Issues)
	}
	if !found {
		return h.syncProduct(ctx, event.ShopID, itemID)
	}
	_, err := h.Reconciler.ApplyStock(ctx, reconcile.StockChange{
		ShopID:   event.ShopID,
		ItemID:   itemID,
		ModelID:  modelID,
		Reserved: &reserved,
		Source:   SourceWebhook,
	})
	if core.HasTextCode(err, core.ErrorNotFound) {
		return h.syncProduct(ctx, event.ShopID, itemID)
	}
	return err
}

// PromotionUpdate re-reads the item since promotion pushes carry no prices.
func (h Handlers) PromotionUpdate(ctx context.Context, event Envelope) error {
	var coerce core.Coercion
	itemID := coerce.Int64("item_id", event.Data["item_id"])
	if !coerce.Valid() || itemID <= 0 {
		return dataError(event, coerce.Issues)
	}
	return h.syncProduct(ctx, event.ShopID, itemID)
}

func (h Handlers) ShopEvent(ctx context.Context, event Envelope) error {
	message := "shop updated"
	if event.Code == CodeShopDeauthorization {
		message = "shop deauthorized"
	}
	h.Observer.Info(ctx, message, map[string]any{
		"shop_id": event.ShopID,
		"code":    event.Code,
	})
	return nil
}

func (h Handlers) syncOrder(ctx context.Context, shopID int64, orderSN string) error {
	if h.Upstream == nil {
		return core.NewError(core.ErrorNotFound, fmt.Sprintf("webhooks: order %s is unknown and no upstream is configured", orderSN), nil)
	}
	order, err := h.Upstream.FetchOrder(ctx, shopID, orderSN)
	if err != nil {
		return err
	}
	_, err = h.Reconciler.UpsertOrder(ctx, order)
	return err
}

func (h Handlers) syncProduct(ctx context.Context, shopID int64, itemID int64) error {
	if h.Upstream == nil {
		return core.NewError(core.ErrorNotFound, fmt.Sprintf("webhooks: item %d is unknown and no upstream is configured", itemID), nil)
	}
	product, err := h.Upstream.FetchProduct(ctx, shopID, itemID)
	if err != nil {
		return err
	}
	_, err = h.Reconciler.UpsertProduct(ctx, product)
	return err
}

func reservedValue(coerce *core.Coercion, data map[string]any) (int, bool) {
	changes, _ := data["changed_values"].([]any)
	for _, raw := range changes {
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		if !strings.EqualFold(coerce.String("changed_values.name", entry["name"]), "reserved_stock") {
			continue
		}
		return coerce.Int("changed_values.new", entry["new"]), true
	}
	if value, ok := data["reserved_stock"]; ok && value != nil {
		return coerce.Int("reserved_stock", value), true
	}
	return 0, false
}

func firstValue(data map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := data[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func dataError(event Envelope, issues []string) error {
	return core.NewError(core.ErrorValidation, fmt.Sprintf("webhooks: push code %d has malformed data", event.Code), map[string]any{
		"shop_id": event.ShopID,
		"issues":  issues,
	})
}

var _ Reconciler = (*reconcile.Reconciler)(nil)
