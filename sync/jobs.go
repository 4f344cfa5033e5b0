package sync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/fetch"
	"github.com/goliatone/go-marketsync/queue"
)

const defaultWindow = 15 * 24 * time.Hour

type Walker[T any] interface {
	Walk(ctx context.Context, query fetch.Query, fn func(ctx context.Context, page fetch.Page[T]) error) (fetch.Result[T], error)
}

type Reconciler interface {
	UpsertOrders(ctx context.Context, orders []core.ExternalOrder) core.JobSummary
	UpsertProducts(ctx context.Context, products []core.ExternalProduct) core.JobSummary
	UpsertReturns(ctx context.Context, returns []core.ExternalReturn) core.JobSummary
	UpsertOrder(ctx context.Context, order core.ExternalOrder) (core.UpsertResult, error)
}

type TokenService interface {
	Shops(ctx context.Context) ([]int64, error)
	RefreshExpiring(ctx context.Context, horizon time.Duration) (core.JobSummary, error)
}

type QueueProcessor interface {
	ProcessBatch(ctx context.Context) (core.JobSummary, error)
}

type OrderLoader interface {
	FetchOrder(ctx context.Context, shopID int64, orderSN string) (core.ExternalOrder, error)
}

// Jobs are the scheduled and manual entry points. Every entry point runs
// under a running flag keyed by job and shop; a trigger that arrives while
// the same key is running is skipped with JOB_ALREADY_RUNNING.
type Jobs struct {
	Orders     Walker[core.ExternalOrder]
	Products   Walker[core.ExternalProduct]
	Returns    Walker[core.ExternalReturn]
	Reconciler Reconciler
	Tokens     TokenService
	Queue      QueueProcessor
	Loader     OrderLoader
	Cursors    core.SyncCursorStore
	Guard      *core.JobGuard
	Observer   *core.Observer
	Now        func() time.Time
	// Window bounds how far back a windowed sync reaches, whatever the
	// stored watermark says.
	Window time.Duration
}

func NewJobs(reconciler Reconciler, tokens TokenService) *Jobs {
	return &Jobs{
		Reconciler: reconciler,
		Tokens:     tokens,
		Cursors:    NewMemoryCursorStore(),
		Guard:      core.NewJobGuard(),
		Observer:   core.NewObserver(nil, nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Window: defaultWindow,
	}
}

// SyncOrders pulls orders updated since the last complete sync, walking
// every order status.
func (j *Jobs) SyncOrders(ctx context.Context, shopID int64) (core.JobSummary, error) {
	if j == nil || j.Orders == nil || j.Reconciler == nil {
		return core.JobSummary{}, fmt.Errorf("sync: order sync is not configured")
	}
	return runWalk(ctx, j, walkSpec[core.ExternalOrder]{
		kind:       core.SyncKindOrders,
		shopID:     shopID,
		walker:     j.Orders,
		dimensions: orderDimensions(),
		windowed:   true,
		prepare: func(tagged fetch.Tagged[core.ExternalOrder]) core.ExternalOrder {
			order := tagged.Item
			if order.Status == "" {
				order.Status = core.OrderStatus(tagged.Dimension)
			}
			return order
		},
		upsert: j.Reconciler.UpsertOrders,
	})
}

// SyncProducts walks the whole catalog by item status.
func (j *Jobs) SyncProducts(ctx context.Context, shopID int64) (core.JobSummary, error) {
	if j == nil || j.Products == nil || j.Reconciler == nil {
		return core.JobSummary{}, fmt.Errorf("sync: product sync is not configured")
	}
	return runWalk(ctx, j, walkSpec[core.ExternalProduct]{
		kind:       core.SyncKindProducts,
		shopID:     shopID,
		walker:     j.Products,
		dimensions: productDimensions(),
		prepare: func(tagged fetch.Tagged[core.ExternalProduct]) core.ExternalProduct {
			product := tagged.Item
			if product.Status == "" {
				product.Status = core.ProductStatus(tagged.Dimension)
			}
			return product
		},
		upsert: j.Reconciler.UpsertProducts,
	})
}

func (j *Jobs) SyncReturns(ctx context.Context, shopID int64) (core.JobSummary, error) {
	if j == nil || j.Returns == nil || j.Reconciler == nil {
		return core.JobSummary{}, fmt.Errorf("sync: return sync is not configured")
	}
	return runWalk(ctx, j, walkSpec[core.ExternalReturn]{
		kind:     core.SyncKindReturns,
		shopID:   shopID,
		walker:   j.Returns,
		windowed: true,
		prepare: func(tagged fetch.Tagged[core.ExternalReturn]) core.ExternalReturn {
			return tagged.Item
		},
		upsert: j.Reconciler.UpsertReturns,
	})
}

// SyncAll runs one kind for every connected shop. A shop that fails or is
// already running is reported and never stops the others.
func (j *Jobs) SyncAll(ctx context.Context, kind core.SyncKind) (core.JobSummary, error) {
	summary := core.JobSummary{Job: "sync_all_" + string(kind)}
	if j == nil || j.Tokens == nil {
		return summary, fmt.Errorf("sync: token service is required")
	}
	run, err := j.runner(kind)
	if err != nil {
		return summary, err
	}
	shops, err := j.Tokens.Shops(ctx)
	if err != nil {
		return summary, core.WrapError(err, core.ErrorInternal, "sync: listing shops failed", nil)
	}
	for _, shopID := range shops {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		shopSummary, err := run(ctx, shopID)
		summary.Merge(shopSummary)
		switch {
		case core.HasTextCode(err, core.ErrorJobAlreadyRunning):
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("shop %d: skipped, already running", shopID))
		case err != nil:
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("shop %d: %v", shopID, err))
		}
	}
	return summary, nil
}

func (j *Jobs) runner(kind core.SyncKind) (func(context.Context, int64) (core.JobSummary, error), error) {
	switch kind {
	case core.SyncKindOrders:
		return j.SyncOrders, nil
	case core.SyncKindProducts:
		return j.SyncProducts, nil
	case core.SyncKindReturns:
		return j.SyncReturns, nil
	default:
		return nil, core.NewError(core.ErrorBadInput, fmt.Sprintf("sync: unknown sync kind %q", kind), nil)
	}
}

// RefreshTokens refreshes every token close to expiry.
func (j *Jobs) RefreshTokens(ctx context.Context) (summary core.JobSummary, err error) {
	summary = core.JobSummary{Job: "refresh_tokens"}
	if j == nil || j.Tokens == nil {
		return summary, fmt.Errorf("sync: token service is required")
	}
	release, ok := j.Guard.TryStart(summary.Job)
	if !ok {
		summary.Skipped = true
		return summary, core.ErrJobAlreadyRunning(summary.Job)
	}
	defer release()
	startedAt := time.Now()
	defer func() {
		j.observe(ctx, startedAt, summary, err)
	}()
	summary, err = j.Tokens.RefreshExpiring(ctx, 0)
	summary.Job = "refresh_tokens"
	return summary, err
}

// ProcessQueue claims and runs one batch of queue items.
func (j *Jobs) ProcessQueue(ctx context.Context) (summary core.JobSummary, err error) {
	summary = core.JobSummary{Job: "process_queue"}
	if j == nil || j.Queue == nil {
		return summary, fmt.Errorf("sync: queue processor is required")
	}
	release, ok := j.Guard.TryStart(summary.Job)
	if !ok {
		summary.Skipped = true
		return summary, core.ErrJobAlreadyRunning(summary.Job)
	}
	defer release()
	startedAt := time.Now()
	defer func() {
		j.observe(ctx, startedAt, summary, err)
	}()
	summary, err = j.Queue.ProcessBatch(ctx)
	summary.Job = "process_queue"
	return summary, err
}

// RefreshOrder re-reads a single order and reconciles it.
func (j *Jobs) RefreshOrder(ctx context.Context, shopID int64, orderSN string) (core.UpsertResult, error) {
	if j == nil || j.Loader == nil || j.Reconciler == nil {
		return core.UpsertResult{}, fmt.Errorf("sync: order refresh is not configured")
	}
	orderSN = strings.TrimSpace(orderSN)
	if shopID <= 0 || orderSN == "" {
		return core.UpsertResult{}, core.NewError(core.ErrorBadInput, "sync: shop id and order_sn are required", nil)
	}
	order, err := j.Loader.FetchOrder(ctx, shopID, orderSN)
	if err != nil {
		return core.UpsertResult{}, err
	}
	return j.Reconciler.UpsertOrder(ctx, order)
}

type walkSpec[T any] struct {
	kind       core.SyncKind
	shopID     int64
	walker     Walker[T]
	dimensions []string
	windowed   bool
	prepare    func(fetch.Tagged[T]) T
	upsert     func(ctx context.Context, items []T) core.JobSummary
}

// runWalk streams pages into the reconciler and keeps the cursor current so
// an interrupted walk resumes where it stopped. The watermark only moves when
// every dimension completed.
func runWalk[T any](ctx context.Context, j *Jobs, spec walkSpec[T]) (summary core.JobSummary, err error) {
	job := "sync_" + string(spec.kind)
	summary = core.JobSummary{Job: job, ShopID: spec.shopID}
	if spec.shopID <= 0 {
		return summary, core.NewError(core.ErrorBadInput, "sync: shop id is required", nil)
	}
	key := fmt.Sprintf("%s:%d", job, spec.shopID)
	release, ok := j.Guard.TryStart(key)
	if !ok {
		summary.Skipped = true
		j.Observer.Info(ctx, "sync skipped, previous run still active", map[string]any{
			"job":     job,
			"shop_id": spec.shopID,
		})
		return summary, core.ErrJobAlreadyRunning(key)
	}
	defer release()

	startedAt := time.Now()
	defer func() {
		j.observe(ctx, startedAt, summary, err)
	}()

	cursor, err := j.loadCursor(ctx, spec.shopID, spec.kind)
	if err != nil {
		return summary, err
	}
	query := fetch.Query{ShopID: spec.shopID, Dimensions: spec.dimensions}
	// dimensions that aborted before an interruption are not walked again by
	// the resumed run, so they still hold the watermark back
	var carried []string
	if cursor.InFlight {
		carried = append(carried, cursor.FailedDimensions...)
		query.Resume = &fetch.Checkpoint{
			Dimension: cursor.Dimension,
			Cursor:    cursor.Cursor,
			Page:      cursor.Page,
			Done:      cursor.DimensionDone,
		}
		query.TimeFrom, query.TimeTo = cursor.WindowFrom, cursor.WindowTo
		j.Observer.Info(ctx, "sync resuming interrupted walk", map[string]any{
			"job":       job,
			"shop_id":   spec.shopID,
			"dimension": cursor.Dimension,
			"page":      cursor.Page,
		})
	} else {
		query.TimeFrom, query.TimeTo = j.window(cursor.Watermark, spec.windowed)
	}

	result, err := spec.walker.Walk(ctx, query, func(ctx context.Context, page fetch.Page[T]) error {
		items := make([]T, 0, len(page.Items))
		for _, tagged := range page.Items {
			items = append(items, spec.prepare(tagged))
		}
		pageSummary := spec.upsert(ctx, items)
		summary.Processed += pageSummary.Processed
		summary.Failed += pageSummary.Failed
		summary.Total += pageSummary.Total
		summary.Warnings = append(summary.Warnings, pageSummary.Warnings...)

		cursor.InFlight = true
		cursor.Dimension = page.Next.Dimension
		cursor.Cursor = page.Next.Cursor
		cursor.Page = page.Next.Page
		cursor.DimensionDone = page.Next.Done
		cursor.WindowFrom, cursor.WindowTo = query.TimeFrom, query.TimeTo
		cursor.FailedDimensions = mergeDimensions(carried, page.Failed)
		cursor.UpdatedAt = j.now()
		j.saveCursor(ctx, cursor)
		return nil
	})
	if err != nil {
		return summary, err
	}

	if warning := result.Warning(); warning != nil {
		summary.Warnings = append(summary.Warnings, warning.Error())
		j.Observer.Warn(ctx, "sync completed with partial fetch", map[string]any{
			"job":               job,
			"shop_id":           spec.shopID,
			"error_code":        core.ErrorPartialFetch,
			"failed_dimensions": result.FailedDimensions(),
			"fetched":           result.Fetched(),
		})
	} else if len(carried) > 0 {
		warning := core.NewError(core.ErrorPartialFetch,
			fmt.Sprintf("sync: dimension(s) %s aborted before the walk was interrupted", strings.Join(carried, ", ")),
			map[string]any{"failed_dimensions": carried},
		)
		summary.Warnings = append(summary.Warnings, warning.Error())
		j.Observer.Warn(ctx, "sync resumed after partial fetch, watermark kept", map[string]any{
			"job":               job,
			"shop_id":           spec.shopID,
			"error_code":        core.ErrorPartialFetch,
			"failed_dimensions": carried,
		})
	} else if spec.windowed {
		cursor.Watermark = result.TimeTo
	}
	cursor.ClearCheckpoint()
	cursor.UpdatedAt = j.now()
	if err := j.Cursors.Put(ctx, cursor); err != nil {
		return summary, core.WrapError(err, core.ErrorInternal, "sync: saving sync cursor failed", map[string]any{
			"shop_id": spec.shopID,
			"kind":    string(spec.kind),
		})
	}
	return summary, nil
}

func mergeDimensions(groups ...[]string) []string {
	var out []string
	for _, group := range groups {
		for _, dimension := range group {
			if !slices.Contains(out, dimension) {
				out = append(out, dimension)
			}
		}
	}
	return out
}

func (j *Jobs) loadCursor(ctx context.Context, shopID int64, kind core.SyncKind) (core.SyncCursor, error) {
	if j.Cursors == nil {
		j.Cursors = NewMemoryCursorStore()
	}
	stored, err := j.Cursors.Get(ctx, shopID, kind)
	if err != nil {
		return core.SyncCursor{}, core.WrapError(err, core.ErrorInternal, "sync: loading sync cursor failed", map[string]any{
			"shop_id": shopID,
			"kind":    string(kind),
		})
	}
	if stored == nil {
		return core.SyncCursor{ShopID: shopID, Kind: kind}, nil
	}
	return *stored, nil
}

// saveCursor records walk progress. A failed write only costs a longer
// resume, so it is logged and the walk continues.
func (j *Jobs) saveCursor(ctx context.Context, cursor core.SyncCursor) {
	if err := j.Cursors.Put(ctx, cursor); err != nil {
		j.Observer.Warn(ctx, "sync checkpoint not saved", map[string]any{
			"shop_id":   cursor.ShopID,
			"kind":      string(cursor.Kind),
			"dimension": cursor.Dimension,
			"error":     err.Error(),
		})
	}
}

// window starts at the watermark, never reaching back further than Window.
func (j *Jobs) window(watermark time.Time, windowed bool) (time.Time, time.Time) {
	to := j.now()
	span := j.Window
	if span <= 0 {
		span = defaultWindow
	}
	from := to.Add(-span)
	if windowed && !watermark.IsZero() && watermark.After(from) && watermark.Before(to) {
		from = watermark
	}
	return from, to
}

func (j *Jobs) observe(ctx context.Context, startedAt time.Time, summary core.JobSummary, err error) {
	j.Observer.Observe(ctx, startedAt, summary.Job, err, map[string]any{
		"shop_id":   summary.ShopID,
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"total":     summary.Total,
	})
}

func (j *Jobs) now() time.Time {
	if j != nil && j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

func orderDimensions() []string {
	out := make([]string, 0, len(core.DefaultOrderStatuses))
	for _, status := range core.DefaultOrderStatuses {
		out = append(out, string(status))
	}
	return out
}

func productDimensions() []string {
	out := make([]string, 0, len(core.DefaultProductStatuses))
	for _, status := range core.DefaultProductStatuses {
		out = append(out, string(status))
	}
	return out
}

var (
	_ Walker[core.ExternalOrder] = (*fetch.Fetcher[core.ExternalOrder])(nil)
	_ QueueProcessor             = (*queue.Worker)(nil)
	_ TokenService               = (*core.TokenCoordinator)(nil)
)
