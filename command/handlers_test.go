package command

import (
	"context"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
)

type stubJobRunner struct {
	lastShopID  int64
	lastKind    core.SyncKind
	lastOrderSN string
	calls       []string
	summary     core.JobSummary
	err         error
}

func (s *stubJobRunner) SyncOrders(_ context.Context, shopID int64) (core.JobSummary, error) {
	s.calls = append(s.calls, "orders")
	s.lastShopID = shopID
	return s.summary, s.err
}

func (s *stubJobRunner) SyncProducts(_ context.Context, shopID int64) (core.JobSummary, error) {
	s.calls = append(s.calls, "products")
	s.lastShopID = shopID
	return s.summary, s.err
}

func (s *stubJobRunner) SyncReturns(_ context.Context, shopID int64) (core.JobSummary, error) {
	s.calls = append(s.calls, "returns")
	s.lastShopID = shopID
	return s.summary, s.err
}

func (s *stubJobRunner) SyncAll(_ context.Context, kind core.SyncKind) (core.JobSummary, error) {
	s.calls = append(s.calls, "all")
	s.lastKind = kind
	return s.summary, s.err
}

func (s *stubJobRunner) RefreshOrder(_ context.Context, shopID int64, orderSN string) (core.UpsertResult, error) {
	s.calls = append(s.calls, "order")
	s.lastShopID = shopID
	s.lastOrderSN = orderSN
	return core.UpsertResult{ID: "order-1", Action: core.UpsertActionUpdated}, s.err
}

func (s *stubJobRunner) RefreshTokens(context.Context) (core.JobSummary, error) {
	s.calls = append(s.calls, "tokens")
	return s.summary, s.err
}

func (s *stubJobRunner) ProcessQueue(context.Context) (core.JobSummary, error) {
	s.calls = append(s.calls, "queue")
	return s.summary, s.err
}

func TestSyncOrdersCommand_StoresSummary(t *testing.T) {
	jobs := &stubJobRunner{summary: core.JobSummary{Job: "sync_orders", ShopID: 55, Processed: 3, Total: 3}}
	collector := gocmd.NewResult[core.JobSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewSyncOrdersCommand(jobs).Execute(ctx, SyncOrdersMessage{ShopID: 55}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if jobs.lastShopID != 55 {
		t.Fatalf("expected shop 55 to be synced, got %d", jobs.lastShopID)
	}
	summary, ok := collector.Load()
	if !ok || summary.Processed != 3 {
		t.Fatalf("expected stored summary, got %+v ok=%v", summary, ok)
	}
}

func TestSyncCommand_SkippedRunStillStoresSummary(t *testing.T) {
	jobs := &stubJobRunner{
		summary: core.JobSummary{Job: "sync_products", ShopID: 55, Skipped: true},
		err:     core.ErrJobAlreadyRunning("sync_products"),
	}
	collector := gocmd.NewResult[core.JobSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewSyncProductsCommand(jobs).Execute(ctx, SyncProductsMessage{ShopID: 55})
	if !core.HasTextCode(err, core.ErrorJobAlreadyRunning) {
		t.Fatalf("expected JOB_ALREADY_RUNNING, got %v", err)
	}
	summary, ok := collector.Load()
	if !ok || !summary.Skipped {
		t.Fatalf("expected skipped summary to be stored, got %+v ok=%v", summary, ok)
	}
}

func TestJobCommands_DelegateToRunner(t *testing.T) {
	jobs := &stubJobRunner{}
	ctx := context.Background()

	if err := NewSyncReturnsCommand(jobs).Execute(ctx, SyncReturnsMessage{ShopID: 7}); err != nil {
		t.Fatalf("sync returns: %v", err)
	}
	if err := NewSyncAllCommand(jobs).Execute(ctx, SyncAllMessage{Kind: " orders "}); err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if jobs.lastKind != core.SyncKindOrders {
		t.Fatalf("expected trimmed kind, got %q", jobs.lastKind)
	}
	if err := NewRefreshTokensCommand(jobs).Execute(ctx, RefreshTokensMessage{}); err != nil {
		t.Fatalf("refresh tokens: %v", err)
	}
	if err := NewProcessQueueCommand(jobs).Execute(ctx, ProcessQueueMessage{}); err != nil {
		t.Fatalf("process queue: %v", err)
	}

	collector := gocmd.NewResult[core.UpsertResult]()
	if err := NewRefreshOrderCommand(jobs).Execute(gocmd.ContextWithResult(ctx, collector), RefreshOrderMessage{ShopID: 7, OrderSN: " A1 "}); err != nil {
		t.Fatalf("refresh order: %v", err)
	}
	if jobs.lastOrderSN != "A1" {
		t.Fatalf("expected trimmed order_sn, got %q", jobs.lastOrderSN)
	}
	if result, ok := collector.Load(); !ok || result.ID != "order-1" {
		t.Fatalf("expected upsert result, got %+v ok=%v", result, ok)
	}

	want := []string{"returns", "all", "tokens", "queue", "order"}
	if len(jobs.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, jobs.calls)
	}
	for i := range want {
		if jobs.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, jobs.calls)
		}
	}
}

type stubEnqueuer struct {
	last queue.EnqueueRequest
}

func (s *stubEnqueuer) Enqueue(_ context.Context, req queue.EnqueueRequest) (core.SyncQueueItem, error) {
	s.last = req
	return core.SyncQueueItem{ID: "item-1", ShopID: req.ShopID, SyncType: req.SyncType, Status: core.QueueStatusPending}, nil
}

func TestEnqueueSyncCommand_StoresItem(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	collector := gocmd.NewResult[core.SyncQueueItem]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	msg := EnqueueSyncMessage{Request: queue.EnqueueRequest{
		ShopID:   55,
		SyncType: core.SyncTypeStockUpdate,
		Payload:  queue.StockPayload(9001, 0, 4),
		Priority: 5,
	}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := NewEnqueueSyncCommand(enqueuer).Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if enqueuer.last.Priority != 5 {
		t.Fatalf("expected priority to pass through, got %d", enqueuer.last.Priority)
	}
	item, ok := collector.Load()
	if !ok || item.ID != "item-1" {
		t.Fatalf("expected stored queue item, got %+v ok=%v", item, ok)
	}
}

type stubAuthorizer struct {
	code   string
	shopID int64
}

func (s *stubAuthorizer) CompleteAuthorization(_ context.Context, code string, shopID int64) (core.TokenRecord, error) {
	s.code = code
	s.shopID = shopID
	return core.TokenRecord{
		ShopID:       shopID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
	}, nil
}

func TestCompleteAuthorizationCommand_Delegates(t *testing.T) {
	authorizer := &stubAuthorizer{}
	collector := gocmd.NewResult[core.TokenRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewCompleteAuthorizationCommand(authorizer).Execute(ctx, CompleteAuthorizationMessage{Code: " code-1 ", ShopID: 55}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if authorizer.code != "code-1" || authorizer.shopID != 55 {
		t.Fatalf("unexpected delegation code=%q shop=%d", authorizer.code, authorizer.shopID)
	}
	if record, ok := collector.Load(); !ok || record.ShopID != 55 {
		t.Fatalf("expected stored token record, got %+v ok=%v", record, ok)
	}
}

func TestMessages_Validate(t *testing.T) {
	invalid := []interface{ Validate() error }{
		SyncOrdersMessage{},
		SyncProductsMessage{ShopID: -1},
		SyncAllMessage{},
		SyncAllMessage{Kind: "invoices"},
		RefreshOrderMessage{ShopID: 55},
		EnqueueSyncMessage{Request: queue.EnqueueRequest{ShopID: 55, SyncType: "image_update", Payload: map[string]any{"x": 1}}},
		EnqueueSyncMessage{Request: queue.EnqueueRequest{ShopID: 55, SyncType: core.SyncTypePriceUpdate}},
		CompleteAuthorizationMessage{ShopID: 55},
	}
	for _, msg := range invalid {
		if err := msg.Validate(); err == nil {
			t.Fatalf("expected %T %+v to be rejected", msg, msg)
		}
	}
	if err := (SyncAllMessage{Kind: core.SyncKindReturns}).Validate(); err != nil {
		t.Fatalf("expected returns kind to be accepted: %v", err)
	}
}
