package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

const (
	defaultBatchSize  = 10
	defaultMaxRetries = 3
)

type Handler interface {
	Handle(ctx context.Context, item core.SyncQueueItem) error
}

type HandlerFunc func(ctx context.Context, item core.SyncQueueItem) error

func (f HandlerFunc) Handle(ctx context.Context, item core.SyncQueueItem) error {
	return f(ctx, item)
}

type EnqueueRequest struct {
	ShopID     int64
	SyncType   core.SyncType
	Payload    map[string]any
	Priority   int
	MaxRetries int
	// ScheduledAt defaults to now.
	ScheduledAt time.Time
}

type Worker struct {
	Store             Store
	Backoff           core.BackoffPolicy
	BatchSize         int
	DefaultMaxRetries int
	Observer          *core.Observer
	Now               func() time.Time

	mu       sync.RWMutex
	handlers map[core.SyncType]Handler
}

func NewWorker(store Store) *Worker {
	return &Worker{
		Store:             store,
		Backoff:           core.LinearBackoff{Unit: time.Minute},
		BatchSize:         defaultBatchSize,
		DefaultMaxRetries: defaultMaxRetries,
		Observer:          core.NewObserver(nil, nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		handlers: map[core.SyncType]Handler{},
	}
}

// ApplyConfig copies the queue section of cfg onto w.
func (w *Worker) ApplyConfig(cfg core.QueueConfig) *Worker {
	if cfg.BatchSize > 0 {
		w.BatchSize = cfg.BatchSize
	}
	if cfg.DefaultMaxRetries > 0 {
		w.DefaultMaxRetries = cfg.DefaultMaxRetries
	}
	if cfg.BackoffUnitSeconds > 0 {
		w.Backoff = core.LinearBackoff{Unit: cfg.BackoffUnit()}
	}
	return w
}

func (w *Worker) Register(syncType core.SyncType, handler Handler) error {
	if w == nil {
		return fmt.Errorf("queue: worker is nil")
	}
	if strings.TrimSpace(string(syncType)) == "" || handler == nil {
		return fmt.Errorf("queue: sync type and handler are required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = map[core.SyncType]Handler{}
	}
	if _, exists := w.handlers[syncType]; exists {
		return fmt.Errorf("queue: handler for %s already registered", syncType)
	}
	w.handlers[syncType] = handler
	return nil
}

func (w *Worker) handler(syncType core.SyncType) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	handler, ok := w.handlers[syncType]
	return handler, ok
}

func (w *Worker) Enqueue(ctx context.Context, req EnqueueRequest) (core.SyncQueueItem, error) {
	if w == nil || w.Store == nil {
		return core.SyncQueueItem{}, fmt.Errorf("queue: worker requires a store")
	}
	if req.ShopID <= 0 || strings.TrimSpace(string(req.SyncType)) == "" {
		return core.SyncQueueItem{}, core.NewError(core.ErrorBadInput, "queue: shop id and sync type are required", nil)
	}
	if _, ok := w.handler(req.SyncType); !ok {
		return core.SyncQueueItem{}, core.NewError(core.ErrorBadInput, fmt.Sprintf("queue: no handler for sync type %s", req.SyncType), nil)
	}
	now := w.now()
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.maxRetries()
	}
	scheduledAt := req.ScheduledAt.UTC()
	if req.ScheduledAt.IsZero() {
		scheduledAt = now
	}
	item, err := w.Store.Enqueue(ctx, core.SyncQueueItem{
		ShopID:      req.ShopID,
		SyncType:    req.SyncType,
		Payload:     req.Payload,
		Status:      core.QueueStatusPending,
		Priority:    req.Priority,
		MaxRetries:  maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return core.SyncQueueItem{}, core.WrapError(err, core.ErrorInternal, "queue: enqueue failed", map[string]any{
			"shop_id":   req.ShopID,
			"sync_type": string(req.SyncType),
		})
	}
	w.Observer.Info(ctx, "queue item enqueued", map[string]any{
		"id":        item.ID,
		"shop_id":   item.ShopID,
		"sync_type": string(item.SyncType),
		"priority":  item.Priority,
	})
	return item, nil
}

// ProcessBatch claims one batch and works it item by item. An item failure
// is recorded on the item and never aborts the batch.
func (w *Worker) ProcessBatch(ctx context.Context) (core.JobSummary, error) {
	summary := core.JobSummary{Job: "process_queue"}
	if w == nil || w.Store == nil {
		return summary, fmt.Errorf("queue: worker requires a store")
	}
	items, err := w.Store.ClaimBatch(ctx, w.now(), w.batchSize())
	if err != nil {
		return summary, core.WrapError(err, core.ErrorInternal, "queue: claim failed", nil)
	}
	summary.Total = len(items)
	for _, item := range items {
		if err := w.process(ctx, item); err != nil {
			summary.Failed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", item.ID, err))
			continue
		}
		summary.Processed++
	}
	return summary, nil
}

func (w *Worker) process(ctx context.Context, item core.SyncQueueItem) (err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"id":          item.ID,
		"shop_id":     item.ShopID,
		"sync_type":   string(item.SyncType),
		"retry_count": item.RetryCount,
	}
	defer func() {
		w.Observer.Observe(ctx, startedAt, "queue_item", err, fields)
	}()

	handler, ok := w.handler(item.SyncType)
	if !ok {
		err = core.NewError(core.ErrorBadInput, fmt.Sprintf("queue: no handler for sync type %s", item.SyncType), nil)
	} else {
		err = invoke(ctx, handler, item)
	}
	if err == nil {
		if markErr := w.Store.MarkSuccess(ctx, item.ID, w.now()); markErr != nil {
			return core.WrapError(markErr, core.ErrorInternal, "queue: marking success failed", nil)
		}
		return nil
	}
	return w.fail(ctx, item, err, fields)
}

// fail reschedules the item or, once max retries is reached, ends it.
func (w *Worker) fail(ctx context.Context, item core.SyncQueueItem, cause error, fields map[string]any) error {
	now := w.now()
	retryCount := item.RetryCount + 1
	maxRetries := item.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.maxRetries()
	}
	message := strings.TrimSpace(cause.Error())
	fields["retry_count"] = retryCount

	if retryCount >= maxRetries {
		if err := w.Store.MarkFailed(ctx, item.ID, retryCount, message, now); err != nil {
			return core.WrapError(err, core.ErrorInternal, "queue: marking failed failed", nil)
		}
		fields["terminal"] = true
		return core.WrapError(cause, core.ErrorQueueExhausted, fmt.Sprintf("queue: item %s exhausted %d retries", item.ID, maxRetries), map[string]any{
			"id":          item.ID,
			"retry_count": retryCount,
			"cause_code":  core.TextCode(cause),
		})
	}

	scheduledAt := now.Add(w.backoff().NextDelay(retryCount))
	if err := w.Store.MarkRetry(ctx, item.ID, retryCount, scheduledAt, message); err != nil {
		return core.WrapError(err, core.ErrorInternal, "queue: marking retry failed", nil)
	}
	fields["scheduled_at"] = scheduledAt
	return cause
}

func invoke(ctx context.Context, handler Handler, item core.SyncQueueItem) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewError(core.ErrorInternal, fmt.Sprintf("queue: handler panic: %v", recovered), map[string]any{
				"stack": string(debug.Stack()),
			})
		}
	}()
	return handler.Handle(ctx, item)
}

// Run processes batches every interval until ctx is done. A full batch is
// followed immediately by the next one.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			summary, err := w.ProcessBatch(ctx)
			if err != nil {
				w.Observer.Error(ctx, "queue batch failed", map[string]any{"error": err.Error()})
				break
			}
			if summary.Total < w.batchSize() || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) now() time.Time {
	if w != nil && w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *Worker) batchSize() int {
	if w != nil && w.BatchSize > 0 {
		return w.BatchSize
	}
	return defaultBatchSize
}

func (w *Worker) maxRetries() int {
	if w != nil && w.DefaultMaxRetries > 0 {
		return w.DefaultMaxRetries
	}
	return defaultMaxRetries
}

func (w *Worker) backoff() core.BackoffPolicy {
	if w != nil && w.Backoff != nil {
		return w.Backoff
	}
	return core.LinearBackoff{Unit: time.Minute}
}
