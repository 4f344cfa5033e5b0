package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/reconcile"
	"github.com/goliatone/go-marketsync/shopee"
)

const pushKey = "push-key"

var receivedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeUpstream struct {
	mu       sync.Mutex
	orders   map[string]core.ExternalOrder
	products map[int64]core.ExternalProduct
	calls    []string
}

func (u *fakeUpstream) FetchOrder(_ context.Context, shopID int64, orderSN string) (core.ExternalOrder, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, "order:"+orderSN)
	order, ok := u.orders[orderSN]
	if !ok {
		return core.ExternalOrder{}, core.NewError(core.ErrorNotFound, "order not found upstream", nil)
	}
	order.ShopID = shopID
	return order, nil
}

func (u *fakeUpstream) FetchProduct(_ context.Context, shopID int64, itemID int64) (core.ExternalProduct, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, fmt.Sprintf("item:%d", itemID))
	product, ok := u.products[itemID]
	if !ok {
		return core.ExternalProduct{}, core.NewError(core.ErrorNotFound, "item not found upstream", nil)
	}
	product.ShopID = shopID
	return product, nil
}

func (u *fakeUpstream) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type harness struct {
	receiver *Receiver
	log      *MemoryLog
	store    *reconcile.MemoryStore
	rec      *reconcile.Reconciler
	upstream *fakeUpstream
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := reconcile.NewMemoryStore()
	rec, err := reconcile.New(store, reconcile.WithClock(func() time.Time { return receivedAt }))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	log := NewMemoryLog()
	receiver := NewReceiver(shopee.PushVerifier{PartnerKey: pushKey}, log)
	receiver.Now = func() time.Time { return receivedAt }
	upstream := &fakeUpstream{
		orders: map[string]core.ExternalOrder{
			"A1": {
				OrderSN:    "A1",
				Status:     core.OrderStatusReadyToShip,
				UpdateTime: receivedAt.Add(-2 * time.Hour),
				Items:      []core.ExternalOrderItem{{ItemID: 9001, ItemName: "Mug", Quantity: 1}},
			},
		},
		products: map[int64]core.ExternalProduct{},
	}
	if err := RegisterDefaultHandlers(receiver, Handlers{Reconciler: rec, Upstream: upstream}); err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	return harness{receiver: receiver, log: log, store: store, rec: rec, upstream: upstream}
}

func signed(body string) ([]byte, string) {
	return []byte(body), core.Sign(pushKey, body)
}

func lastEntry(t *testing.T, log *MemoryLog) core.WebhookLogEntry {
	t.Helper()
	entries := log.Entries()
	if len(entries) == 0 {
		t.Fatalf("expected a log entry")
	}
	return entries[len(entries)-1]
}

func TestReceive_UnknownOrderIsFetchedThenDuplicateIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	body, sig := signed(`{"code":3,"shop_id":55,"timestamp":1772366400,"data":{"ordersn":"A1","status":"SHIPPED","update_time":1772366000}}`)

	ack := h.receiver.Receive(ctx, body, sig)
	if ack.Status != core.WebhookStatusSuccess || ack.Code != CodeOrderStatus {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if h.upstream.callCount() != 1 {
		t.Fatalf("expected unknown order to be fetched once, got %d calls", h.upstream.callCount())
	}
	orders := h.store.Orders()
	if len(orders) != 1 || orders[0].OrderSN != "A1" {
		t.Fatalf("expected order A1 to be stored, got %+v", orders)
	}
	entry := lastEntry(t, h.log)
	if !entry.Verified || entry.CompletedAt == nil || entry.Digest != Digest(body) {
		t.Fatalf("unexpected log entry %+v", entry)
	}

	replay := h.receiver.Receive(ctx, body, sig)
	if replay.Status != core.WebhookStatusDuplicate {
		t.Fatalf("expected duplicate on replay, got %s", replay.Status)
	}
	if h.upstream.callCount() != 1 {
		t.Fatalf("replay must not reach the handler")
	}
	if len(h.log.Entries()) != 2 {
		t.Fatalf("every push is logged, got %d entries", len(h.log.Entries()))
	}
}

func TestReceive_StatusPushMovesKnownOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.rec.UpsertOrder(ctx, core.ExternalOrder{
		ShopID:     55,
		OrderSN:    "B2",
		Status:     core.OrderStatusReadyToShip,
		UpdateTime: receivedAt.Add(-3 * time.Hour),
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	body, sig := signed(fmt.Sprintf(`{"code":3,"shop_id":55,"data":{"ordersn":"B2","status":"in_cancel","update_time":%d}}`, receivedAt.Add(-time.Hour).Unix()))
	if ack := h.receiver.Receive(ctx, body, sig); ack.Status != core.WebhookStatusSuccess {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if h.upstream.callCount() != 0 {
		t.Fatalf("known order must not be fetched")
	}
	orders := h.store.Orders()
	if len(orders) != 1 || orders[0].Status != string(core.OrderStatusInCancel) {
		t.Fatalf("expected IN_CANCEL, got %+v", orders)
	}
}

func TestReceive_UnverifiedIsLoggedButNotApplied(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"code":3,"shop_id":55,"data":{"ordersn":"A1","status":"SHIPPED"}}`)

	ack := h.receiver.Receive(context.Background(), body, "not-a-signature")
	if ack.Status != core.WebhookStatusUnverified {
		t.Fatalf("expected unverified, got %s", ack.Status)
	}
	if h.upstream.callCount() != 0 || len(h.store.Orders()) != 0 {
		t.Fatalf("unverified push must not be applied")
	}
	entry := lastEntry(t, h.log)
	if entry.Verified || entry.Payload != string(body) {
		t.Fatalf("unexpected log entry %+v", entry)
	}
}

func TestReceive_MalformedBodyAndUnknownCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	body, sig := signed(`not json`)
	if ack := h.receiver.Receive(ctx, body, sig); ack.Status != core.WebhookStatusFailed {
		t.Fatalf("expected failed for malformed body, got %s", ack.Status)
	}
	if entry := lastEntry(t, h.log); entry.Error == "" {
		t.Fatalf("expected parse error on log entry")
	}

	body, sig = signed(`{"code":42,"shop_id":55,"data":{}}`)
	if ack := h.receiver.Receive(ctx, body, sig); ack.Status != core.WebhookStatusIgnored {
		t.Fatalf("expected ignored for unknown code, got %s", ack.Status)
	}
}

func TestReceive_ReservedStockFromChangedValues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.rec.UpsertProduct(ctx, core.ExternalProduct{ShopID: 55, ItemID: 700, Name: "Mug", Stock: 10, ReservedStock: 1}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	body, sig := signed(`{"code":8,"shop_id":55,"data":{"item_id":700,"changed_values":[{"name":"reserved_stock","old":1,"new":4}]}}`)
	if ack := h.receiver.Receive(ctx, body, sig); ack.Status != core.WebhookStatusSuccess {
		t.Fatalf("unexpected ack %+v", ack)
	}
	products := h.store.Products()
	if len(products) != 1 || products[0].ReservedStock != 4 {
		t.Fatalf("expected reserved stock 4, got %+v", products)
	}
	var found bool
	for _, row := range h.store.InventoryLogs() {
		if row.Field == reconcile.InventoryFieldReserved && row.Source == SourceWebhook && row.Before == 1 && row.After == 4 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reserved stock history row, got %+v", h.store.InventoryLogs())
	}
}

func TestReceive_PromotionRefetchesItem(t *testing.T) {
	h := newHarness(t)
	h.upstream.products[700] = core.ExternalProduct{ItemID: 700, Name: "Mug", Price: 12.5, Stock: 3}
	body, sig := signed(`{"code":9,"shop_id":55,"data":{"item_id":"700"}}`)
	if ack := h.receiver.Receive(context.Background(), body, sig); ack.Status != core.WebhookStatusSuccess {
		t.Fatalf("unexpected ack %+v", ack)
	}
	products := h.store.Products()
	if len(products) != 1 || products[0].Price != 12.5 {
		t.Fatalf("expected refetched product, got %+v", products)
	}
}

func TestReceive_TrackingWithoutNumberFails(t *testing.T) {
	h := newHarness(t)
	body, sig := signed(`{"code":4,"shop_id":55,"data":{"ordersn":"A1"}}`)
	ack := h.receiver.Receive(context.Background(), body, sig)
	if ack.Status != core.WebhookStatusFailed {
		t.Fatalf("expected failed, got %s", ack.Status)
	}
	if entry := lastEntry(t, h.log); entry.Error == "" {
		t.Fatalf("expected error message on log entry")
	}
}

func TestReceive_HandlerPanicAndTimeoutAreRecorded(t *testing.T) {
	log := NewMemoryLog()
	receiver := NewReceiver(shopee.PushVerifier{PartnerKey: pushKey}, log)
	receiver.Timeout = 20 * time.Millisecond
	if err := receiver.Register(CodeShopUpdate, HandlerFunc(func(context.Context, Envelope) error {
		panic("boom")
	})); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := receiver.Register(CodePromotionUpdate, HandlerFunc(func(ctx context.Context, _ Envelope) error {
		<-ctx.Done()
		return ctx.Err()
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	body, sig := signed(`{"code":5,"shop_id":55,"data":{}}`)
	if ack := receiver.Receive(context.Background(), body, sig); ack.Status != core.WebhookStatusFailed {
		t.Fatalf("expected failed after panic, got %s", ack.Status)
	}

	body, sig = signed(`{"code":9,"shop_id":55,"data":{"item_id":1}}`)
	if ack := receiver.Receive(context.Background(), body, sig); ack.Status != core.WebhookStatusFailed {
		t.Fatalf("expected failed after timeout, got %s", ack.Status)
	}
	if entry := lastEntry(t, log); entry.Error == "" {
		t.Fatalf("expected timeout message on log entry")
	}
}

func TestReceiver_RegisterRejectsDuplicates(t *testing.T) {
	receiver := NewReceiver(nil, NewMemoryLog())
	noop := HandlerFunc(func(context.Context, Envelope) error { return nil })
	if err := receiver.Register(CodeOrderStatus, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := receiver.Register(CodeOrderStatus, noop); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

type failingLog struct {
	*MemoryLog
}

func (failingLog) Append(context.Context, core.WebhookLogEntry) (core.WebhookLogEntry, error) {
	return core.WebhookLogEntry{}, errors.New("disk full")
}

func TestReceive_AcksWhenLogIsUnavailable(t *testing.T) {
	receiver := NewReceiver(shopee.PushVerifier{PartnerKey: pushKey}, failingLog{NewMemoryLog()})
	called := false
	_ = receiver.Register(CodeShopUpdate, HandlerFunc(func(context.Context, Envelope) error {
		called = true
		return nil
	}))
	body, sig := signed(`{"code":5,"shop_id":55,"data":{}}`)
	ack := receiver.Receive(context.Background(), body, sig)
	if ack.Status != core.WebhookStatusSuccess || !called {
		t.Fatalf("expected the push to be processed without a log, got %+v", ack)
	}
}

func TestParseEnvelope_CoercesStringNumbers(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"code":"3","shop_id":"55","timestamp":1772366400,"data":{"ordersn":"A1"}}`), " sig ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Code != 3 || env.ShopID != 55 || env.Timestamp.IsZero() || env.Data["ordersn"] != "A1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := ParseEnvelope([]byte(`{"shop_id":55}`), ""); !core.HasTextCode(err, core.ErrorValidation) {
		t.Fatalf("expected VALIDATION for missing code, got %v", err)
	}
}
