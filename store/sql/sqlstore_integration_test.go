package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	marketmigrations "github.com/goliatone/go-marketsync/migrations"
	"github.com/goliatone/go-marketsync/queue"
	"github.com/goliatone/go-marketsync/ratelimit"
	"github.com/goliatone/go-marketsync/reconcile"
	sqlstore "github.com/goliatone/go-marketsync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-marketsync-tests"
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"orders", "sync_queue", "webhook_logs", "sync_cursors"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestTokenStore_PutOverwritesAndLists(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.TokenStore()

	missing, err := store.Get(ctx, 55)
	if err != nil || missing != nil {
		t.Fatalf("expected no token on file, got %+v err=%v", missing, err)
	}

	if err := store.Put(ctx, 55, core.TokenRecord{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    fixedNow.Add(4 * time.Hour),
	}); err != nil {
		t.Fatalf("put first token: %v", err)
	}
	if err := store.Put(ctx, 55, core.TokenRecord{
		AccessToken:     "access-2",
		RefreshToken:    "refresh-2",
		ExpiresAt:       fixedNow.Add(8 * time.Hour),
		LastRefreshedAt: fixedNow,
	}); err != nil {
		t.Fatalf("put refreshed token: %v", err)
	}
	if err := store.Put(ctx, 12, core.TokenRecord{
		AccessToken:  "access-12",
		RefreshToken: "refresh-12",
		ExpiresAt:    fixedNow.Add(time.Hour),
	}); err != nil {
		t.Fatalf("put second shop token: %v", err)
	}

	record, err := store.Get(ctx, 55)
	if err != nil || record == nil {
		t.Fatalf("get token: %+v err=%v", record, err)
	}
	if record.AccessToken != "access-2" || record.RefreshToken != "refresh-2" {
		t.Fatalf("expected refreshed token pair, got %+v", record)
	}
	if !record.ExpiresAt.Equal(fixedNow.Add(8*time.Hour)) || !record.LastRefreshedAt.Equal(fixedNow) {
		t.Fatalf("unexpected token timestamps %+v", record)
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(records) != 2 || records[0].ShopID != 12 || records[1].ShopID != 55 {
		t.Fatalf("expected one row per shop ordered by shop id, got %+v", records)
	}

	if err := store.Put(ctx, 56, core.TokenRecord{AccessToken: "only-access"}); err == nil {
		t.Fatalf("expected incomplete token to be rejected")
	}
}

func TestEntityStore_ReconcilerUpsertIsIdempotentAndKeepsLocalColumns(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	reconciler, err := reconcile.New(factory.EntityStore(), reconcile.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	order := core.ExternalOrder{
		ShopID:      55,
		OrderSN:     "A1",
		Status:      core.OrderStatusReadyToShip,
		Currency:    "MYR",
		TotalAmount: 60,
		UpdateTime:  fixedNow.Add(-time.Hour),
		Items: []core.ExternalOrderItem{
			{ItemID: 9001, ItemName: "Mug", Quantity: 1, OriginalPrice: 30},
			{ItemID: 9002, ModelID: 21, ItemName: "Shirt", ModelName: "L", Quantity: 1, OriginalPrice: 30},
		},
	}
	first, err := reconciler.UpsertOrder(ctx, order)
	if err != nil {
		t.Fatalf("first order upsert: %v", err)
	}
	if _, err := factory.DB().NewRaw(
		"UPDATE order_items SET note = ? WHERE order_sn = ? AND item_id = ?",
		"gift wrap", "A1", 9001,
	).Exec(ctx); err != nil {
		t.Fatalf("annotate order item: %v", err)
	}
	second, err := reconciler.UpsertOrder(ctx, order)
	if err != nil {
		t.Fatalf("second order upsert: %v", err)
	}
	if first.Action != core.UpsertActionCreated || second.Action != core.UpsertActionUpdated || first.ID != second.ID {
		t.Fatalf("unexpected upsert results %+v then %+v", first, second)
	}

	var orderCount, itemCount int
	if err := factory.DB().NewRaw("SELECT COUNT(*) FROM orders").Scan(ctx, &orderCount); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if err := factory.DB().NewRaw("SELECT COUNT(*) FROM order_items").Scan(ctx, &itemCount); err != nil {
		t.Fatalf("count order items: %v", err)
	}
	if orderCount != 1 || itemCount != 2 {
		t.Fatalf("expected 1 order and 2 items after replay, got %d and %d", orderCount, itemCount)
	}
	var note string
	if err := factory.DB().NewRaw(
		"SELECT note FROM order_items WHERE order_sn = ? AND item_id = ?",
		"A1", 9001,
	).Scan(ctx, &note); err != nil {
		t.Fatalf("read note: %v", err)
	}
	if note != "gift wrap" {
		t.Fatalf("expected local note to survive sync, got %q", note)
	}
}

func TestEntityStore_StockHistoryOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	reconciler, err := reconcile.New(factory.EntityStore(), reconcile.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	product := core.ExternalProduct{
		ShopID:    55,
		ItemID:    9002,
		Name:      "Shirt",
		Status:    "NORMAL",
		HasModels: true,
		Models: []core.ExternalModel{
			{ModelID: 21, Name: "L", SKU: "SH-L", Price: 30, Stock: 5},
		},
	}
	if _, err := reconciler.UpsertProduct(ctx, product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := factory.DB().NewRaw("UPDATE product_variations SET local_sku = ? WHERE model_id = ?", "WH-SHIRT-L", 21).Exec(ctx); err != nil {
		t.Fatalf("set local sku: %v", err)
	}
	if _, err := reconciler.UpsertProduct(ctx, product); err != nil {
		t.Fatalf("replay product: %v", err)
	}
	if got := countRows(t, factory, "inventory_logs"); got != 0 {
		t.Fatalf("expected no history for unchanged stock, got %d rows", got)
	}

	product.Models[0].Stock = 3
	if _, err := reconciler.UpsertProduct(ctx, product); err != nil {
		t.Fatalf("update product stock: %v", err)
	}
	if got := countRows(t, factory, "inventory_logs"); got != 1 {
		t.Fatalf("expected one history row for the stock change, got %d", got)
	}
	var before, after int
	var source, localSKU string
	if err := factory.DB().QueryRowContext(ctx,
		"SELECT before_value, after_value, source FROM inventory_logs WHERE model_id = ?", 21,
	).Scan(&before, &after, &source); err != nil {
		t.Fatalf("read history row: %v", err)
	}
	if before != 5 || after != 3 || source != reconcile.SourceSync {
		t.Fatalf("unexpected history row before=%d after=%d source=%q", before, after, source)
	}
	if err := factory.DB().QueryRowContext(ctx, "SELECT local_sku FROM product_variations WHERE model_id = ?", 21).Scan(&localSKU); err != nil {
		t.Fatalf("read local sku: %v", err)
	}
	if localSKU != "WH-SHIRT-L" {
		t.Fatalf("expected local sku to survive sync, got %q", localSKU)
	}
}

func TestEntityStore_ConflictAndRollback(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.EntityStore()

	insert := func(id string) error {
		return store.WithinTx(ctx, func(ctx context.Context, tx reconcile.Tx) error {
			return tx.InsertOrder(ctx, &reconcile.OrderRow{ID: id, ShopID: 55, OrderSN: "A1", Status: "UNPAID"})
		})
	}
	if err := insert("order-1"); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if err := insert("order-2"); !errors.Is(err, reconcile.ErrConflict) {
		t.Fatalf("expected natural key conflict, got %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx reconcile.Tx) error {
		if err := tx.InsertOrder(ctx, &reconcile.OrderRow{ID: "order-3", ShopID: 55, OrderSN: "B2"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	err = store.WithinTx(ctx, func(ctx context.Context, tx reconcile.Tx) error {
		row, err := tx.FindOrder(ctx, 55, "B2")
		if err != nil {
			return err
		}
		if row != nil {
			return fmt.Errorf("rolled back order is visible: %+v", row)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("rollback check: %v", err)
	}
}

func TestQueueStore_ClaimOrderAndRetrySchedule(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.QueueStore()

	enqueue := func(priority int, createdAt time.Time, scheduledAt time.Time) core.SyncQueueItem {
		t.Helper()
		item, err := store.Enqueue(ctx, core.SyncQueueItem{
			ShopID:      55,
			SyncType:    core.SyncTypeStockUpdate,
			Payload:     queue.StockPayload(9001, 0, 4),
			Status:      core.QueueStatusPending,
			Priority:    priority,
			MaxRetries:  3,
			ScheduledAt: scheduledAt,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		return item
	}
	oldLow := enqueue(0, fixedNow.Add(-2*time.Hour), fixedNow.Add(-2*time.Hour))
	newHigh := enqueue(5, fixedNow.Add(-time.Minute), fixedNow.Add(-time.Minute))
	olderHigh := enqueue(5, fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour))
	future := enqueue(9, fixedNow.Add(-time.Hour), fixedNow.Add(time.Hour))

	claimed, err := store.ClaimBatch(ctx, fixedNow, 10)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("expected 3 due items, got %d", len(claimed))
	}
	order := []string{claimed[0].ID, claimed[1].ID, claimed[2].ID}
	if order[0] != olderHigh.ID || order[1] != newHigh.ID || order[2] != oldLow.ID {
		t.Fatalf("expected priority desc then age asc, got %v", order)
	}
	for _, item := range claimed {
		if item.Status != core.QueueStatusProcessing {
			t.Fatalf("expected claimed item to be processing, got %s", item.Status)
		}
		if item.Payload["item_id"] == nil {
			t.Fatalf("expected payload to round-trip, got %+v", item.Payload)
		}
	}
	again, err := store.ClaimBatch(ctx, fixedNow, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected claimed items to stay claimed, got %d", len(again))
	}

	if err := store.MarkRetry(ctx, oldLow.ID, 1, fixedNow.Add(time.Minute), "upstream down"); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	if err := store.MarkFailed(ctx, newHigh.ID, 3, "gave up", fixedNow); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSuccess(ctx, olderHigh.ID, fixedNow); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	retried, err := store.Get(ctx, oldLow.ID)
	if err != nil {
		t.Fatalf("get retried: %v", err)
	}
	if retried.Status != core.QueueStatusRetry || retried.RetryCount != 1 || !retried.ScheduledAt.Equal(fixedNow.Add(time.Minute)) {
		t.Fatalf("unexpected retried item %+v", retried)
	}
	failed, err := store.Get(ctx, newHigh.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if failed.Status != core.QueueStatusFailed || failed.ErrorMessage != "gave up" || failed.ProcessedAt == nil {
		t.Fatalf("unexpected failed item %+v", failed)
	}

	later, err := store.ClaimBatch(ctx, fixedNow.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("later claim: %v", err)
	}
	if len(later) != 2 || later[0].ID != future.ID || later[1].ID != oldLow.ID {
		t.Fatalf("expected future item then retried item, got %+v", later)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, queue.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := store.MarkSuccess(ctx, "missing", fixedNow); !errors.Is(err, queue.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound on update, got %v", err)
	}
}

func TestQueueStore_WorkerRetriesThenExhausts(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	now := fixedNow
	worker := queue.NewWorker(factory.QueueStore())
	worker.Now = func() time.Time { return now }
	if err := worker.Register(core.SyncTypeStockUpdate, queue.HandlerFunc(func(context.Context, core.SyncQueueItem) error {
		return core.NewError(core.ErrorUpstreamUnavailable, "upstream down", nil)
	})); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	item, err := worker.Enqueue(ctx, queue.EnqueueRequest{
		ShopID:     55,
		SyncType:   core.SyncTypeStockUpdate,
		Payload:    queue.StockPayload(9001, 0, 4),
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	summary, err := worker.ProcessBatch(ctx)
	if err != nil || summary.Failed != 1 {
		t.Fatalf("first batch summary=%+v err=%v", summary, err)
	}
	stored, err := factory.QueueStore().Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Status != core.QueueStatusRetry || !stored.ScheduledAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected retry in one minute, got %+v", stored)
	}

	now = now.Add(time.Minute)
	if _, err := worker.ProcessBatch(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	stored, err = factory.QueueStore().Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stored.Status != core.QueueStatusFailed || stored.RetryCount != 2 {
		t.Fatalf("expected terminal failure after max retries, got %+v", stored)
	}
}

func TestWebhookLogStore_AppendCompleteAndDigest(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.WebhookLogStore()

	entry, err := store.Append(ctx, core.WebhookLogEntry{
		Code:       3,
		ShopID:     55,
		Payload:    `{"code":3}`,
		Signature:  "sig",
		Verified:   true,
		Digest:     "digest-1",
		ReceivedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == "" || entry.Status != core.WebhookStatusReceived {
		t.Fatalf("expected id and received status, got %+v", entry)
	}
	processed, err := store.ProcessedDigest(ctx, "digest-1")
	if err != nil || processed {
		t.Fatalf("expected digest not yet processed, got %v err=%v", processed, err)
	}
	if err := store.Complete(ctx, entry.ID, core.WebhookStatusSuccess, "", fixedNow.Add(time.Second)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Complete(ctx, entry.ID, core.WebhookStatusFailed, "again", fixedNow.Add(2*time.Second)); err == nil {
		t.Fatalf("expected second completion to be rejected")
	}
	processed, err = store.ProcessedDigest(ctx, "digest-1")
	if err != nil || !processed {
		t.Fatalf("expected digest processed, got %v err=%v", processed, err)
	}

	recent, err := store.Recent(ctx, 55, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != core.WebhookStatusSuccess || recent[0].CompletedAt == nil {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
}

func TestSyncCursorStore_RoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.SyncCursorStore()

	missing, err := store.Get(ctx, 55, core.SyncKindOrders)
	if err != nil || missing != nil {
		t.Fatalf("expected no cursor, got %+v err=%v", missing, err)
	}

	cursor := core.SyncCursor{
		ShopID:     55,
		Kind:       core.SyncKindOrders,
		Watermark:  fixedNow.Add(-24 * time.Hour),
		InFlight:   true,
		Dimension:  "READY_TO_SHIP",
		Cursor:     "p2",
		Page:       2,
		WindowFrom: fixedNow.Add(-24 * time.Hour),
		WindowTo:   fixedNow,

		FailedDimensions: []string{"UNPAID"},
	}
	if err := store.Put(ctx, cursor); err != nil {
		t.Fatalf("put cursor: %v", err)
	}
	stored, err := store.Get(ctx, 55, core.SyncKindOrders)
	if err != nil || stored == nil {
		t.Fatalf("get cursor: %+v err=%v", stored, err)
	}
	if !stored.InFlight || stored.Dimension != "READY_TO_SHIP" || stored.Cursor != "p2" || stored.Page != 2 {
		t.Fatalf("unexpected checkpoint %+v", stored)
	}
	if len(stored.FailedDimensions) != 1 || stored.FailedDimensions[0] != "UNPAID" {
		t.Fatalf("expected failed dimensions to persist, got %v", stored.FailedDimensions)
	}
	if !stored.WindowTo.Equal(fixedNow) || !stored.Watermark.Equal(fixedNow.Add(-24*time.Hour)) {
		t.Fatalf("unexpected cursor times %+v", stored)
	}

	stored.Watermark = fixedNow
	stored.ClearCheckpoint()
	if err := store.Put(ctx, *stored); err != nil {
		t.Fatalf("put cleared cursor: %v", err)
	}
	cleared, err := store.Get(ctx, 55, core.SyncKindOrders)
	if err != nil || cleared == nil {
		t.Fatalf("get cleared cursor: %+v err=%v", cleared, err)
	}
	if cleared.InFlight || cleared.Cursor != "" || !cleared.WindowFrom.IsZero() || len(cleared.FailedDimensions) != 0 || !cleared.Watermark.Equal(fixedNow) {
		t.Fatalf("expected cleared checkpoint with advanced watermark, got %+v", cleared)
	}

	other, err := store.Get(ctx, 55, core.SyncKindProducts)
	if err != nil || other != nil {
		t.Fatalf("expected cursors to be keyed by kind, got %+v err=%v", other, err)
	}
	if err := store.Put(ctx, core.SyncCursor{Kind: core.SyncKindOrders}); err == nil {
		t.Fatalf("expected cursor without shop to be rejected")
	}
}

func TestRateLimitStateStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.RateLimitStateStore()
	key := ratelimit.Key{Provider: "Shopee", ShopID: 55, Bucket: "Order"}

	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	retryAfter := 30 * time.Second
	throttledUntil := fixedNow.Add(retryAfter)
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		Limit:          1000,
		Remaining:      0,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &throttledUntil,
		LastStatus:     429,
		Attempts:       2,
		UpdatedAt:      fixedNow,
		Metadata:       map[string]any{"endpoint": "get_order_list"},
	}); err != nil {
		t.Fatalf("upsert state: %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            ratelimit.Key{Provider: "shopee", ShopID: 55, Bucket: "order"},
		Limit:          1000,
		Remaining:      0,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &throttledUntil,
		LastStatus:     429,
		Attempts:       3,
		UpdatedAt:      fixedNow.Add(time.Second),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Key.Provider != "shopee" || state.Key.Bucket != "order" {
		t.Fatalf("expected normalized key, got %+v", state.Key)
	}
	if state.Attempts != 3 || state.LastStatus != 429 {
		t.Fatalf("unexpected counters %+v", state)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("unexpected retry after %v", state.RetryAfter)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(throttledUntil) {
		t.Fatalf("unexpected throttled until %v", state.ThrottledUntil)
	}
	if got := countRows(t, factory, "rate_limit_states"); got != 1 {
		t.Fatalf("expected a single row per key, got %d", got)
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func countRows(t *testing.T, factory *sqlstore.RepositoryFactory, table string) int {
	t.Helper()
	var count int
	if err := factory.DB().NewRaw("SELECT COUNT(*) FROM " + table).Scan(context.Background(), &count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:marketsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = marketmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != marketmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, marketmigrations.WithValidationTargets(marketmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
