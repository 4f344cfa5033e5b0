package queue

import (
	"context"
	"fmt"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/shopee"
)

type TokenSource interface {
	EnsureValid(ctx context.Context, shopID int64) (core.TokenRecord, error)
}

// Pusher is the slice of the marketplace client the push handlers need.
type Pusher interface {
	UpdateStock(ctx context.Context, session shopee.Session, update shopee.StockUpdate) error
	UpdatePrice(ctx context.Context, session shopee.Session, update shopee.PriceUpdate) error
}

// StockPayload builds the payload of a stock_update item.
func StockPayload(itemID int64, modelID int64, stock int) map[string]any {
	return map[string]any{"item_id": itemID, "model_id": modelID, "stock": stock}
}

// PricePayload builds the payload of a price_update item.
func PricePayload(itemID int64, modelID int64, price float64) map[string]any {
	return map[string]any{"item_id": itemID, "model_id": modelID, "price": price}
}

// StockHandler pushes a local stock value to the marketplace.
type StockHandler struct {
	Tokens TokenSource
	Pusher Pusher
}

func (h StockHandler) Handle(ctx context.Context, item core.SyncQueueItem) error {
	var coerce core.Coercion
	update := shopee.StockUpdate{
		ItemID:  coerce.Int64("item_id", item.Payload["item_id"]),
		ModelID: coerce.Int64("model_id", item.Payload["model_id"]),
		Stock:   coerce.Int("stock", item.Payload["stock"]),
	}
	if !coerce.Valid() || update.ItemID <= 0 {
		return payloadError(item, coerce.Issues)
	}
	session, err := h.session(ctx, item.ShopID)
	if err != nil {
		return err
	}
	return h.Pusher.UpdateStock(ctx, session, update)
}

func (h StockHandler) session(ctx context.Context, shopID int64) (shopee.Session, error) {
	if h.Tokens == nil || h.Pusher == nil {
		return shopee.Session{}, fmt.Errorf("queue: stock handler is not configured")
	}
	record, err := h.Tokens.EnsureValid(ctx, shopID)
	if err != nil {
		return shopee.Session{}, err
	}
	return shopee.SessionFrom(record), nil
}

// PriceHandler pushes a local price to the marketplace.
type PriceHandler struct {
	Tokens TokenSource
	Pusher Pusher
}

func (h PriceHandler) Handle(ctx context.Context, item core.SyncQueueItem) error {
	var coerce core.Coercion
	update := shopee.PriceUpdate{
		ItemID:  coerce.Int64("item_id", item.Payload["item_id"]),
		ModelID: coerce.Int64("model_id", item.Payload["model_id"]),
		Price:   coerce.Float64("price", item.Payload["price"]),
	}
	if !coerce.Valid() || update.ItemID <= 0 {
		return payloadError(item, coerce.Issues)
	}
	if h.Tokens == nil || h.Pusher == nil {
		return fmt.Errorf("queue: price handler is not configured")
	}
	record, err := h.Tokens.EnsureValid(ctx, item.ShopID)
	if err != nil {
		return err
	}
	return h.Pusher.UpdatePrice(ctx, shopee.SessionFrom(record), update)
}

func payloadError(item core.SyncQueueItem, issues []string) error {
	return core.NewError(core.ErrorValidation, fmt.Sprintf("queue: %s payload is malformed", item.SyncType), map[string]any{
		"id":     item.ID,
		"issues": issues,
	})
}

// RegisterPushHandlers wires the stock_update and price_update handlers.
func RegisterPushHandlers(w *Worker, tokens TokenSource, pusher Pusher) error {
	if err := w.Register(core.SyncTypeStockUpdate, StockHandler{Tokens: tokens, Pusher: pusher}); err != nil {
		return err
	}
	return w.Register(core.SyncTypePriceUpdate, PriceHandler{Tokens: tokens, Pusher: pusher})
}

var (
	_ Handler = StockHandler{}
	_ Handler = PriceHandler{}
	_ Pusher  = (*shopee.Client)(nil)
)
