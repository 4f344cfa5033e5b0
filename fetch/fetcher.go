package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageCap           = 20
	DefaultPageSize          = 50
	DefaultDetailBatchSize   = 50
	DefaultDetailConcurrency = 3
	DefaultWindow            = 15 * 24 * time.Hour
)

type settings struct {
	kind        string
	pageCap     int
	pageSize    int
	batchSize   int
	concurrency int
	window      time.Duration
	observer    *core.Observer
	now         func() time.Time
}

type Option func(*settings)

// WithKind names the entity kind in logs and metrics.
func WithKind(kind string) Option {
	return func(s *settings) {
		s.kind = kind
	}
}

func WithPageCap(limit int) Option {
	return func(s *settings) {
		if limit > 0 {
			s.pageCap = limit
		}
	}
}

func WithPageSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithDetailBatchSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithDetailConcurrency(limit int) Option {
	return func(s *settings) {
		if limit > 0 {
			s.concurrency = limit
		}
	}
}

func WithWindow(window time.Duration) Option {
	return func(s *settings) {
		if window > 0 {
			s.window = window
		}
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(s *settings) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConfig applies the fetch section of the service config.
func WithConfig(cfg core.FetchConfig) Option {
	return func(s *settings) {
		WithPageCap(cfg.PageCap)(s)
		WithPageSize(cfg.PageSize)(s)
		WithDetailBatchSize(cfg.DetailBatchSize)(s)
		WithDetailConcurrency(cfg.DetailConcurrency)(s)
		WithWindow(cfg.DefaultWindow())(s)
	}
}

type Fetcher[T any] struct {
	source Source[T]
	tokens TokenSource
	settings
}

func New[T any](source Source[T], tokens TokenSource, opts ...Option) (*Fetcher[T], error) {
	if source == nil {
		return nil, fmt.Errorf("fetch: source is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("fetch: token source is required")
	}
	f := &Fetcher[T]{
		source: source,
		tokens: tokens,
		settings: settings{
			kind:        "entity",
			pageCap:     DefaultPageCap,
			pageSize:    DefaultPageSize,
			batchSize:   DefaultDetailBatchSize,
			concurrency: DefaultDetailConcurrency,
			window:      DefaultWindow,
			observer:    core.NewObserver(nil, nil),
			now:         func() time.Time { return time.Now().UTC() },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f.settings)
		}
	}
	return f, nil
}

// FetchAll walks every dimension and collects the tagged, de-duplicated
// entities. It only returns an error when the walk could not start; dimension
// failures are reported on the result.
func (f *Fetcher[T]) FetchAll(ctx context.Context, query Query) (Result[T], error) {
	var items []Tagged[T]
	result, err := f.Walk(ctx, query, func(_ context.Context, page Page[T]) error {
		items = append(items, page.Items...)
		return nil
	})
	result.Items = items
	return result, err
}

// Walk streams pages to fn as they are assembled. An error from fn stops the
// walk and is returned; upstream errors only abort their dimension.
func (f *Fetcher[T]) Walk(ctx context.Context, query Query, fn func(ctx context.Context, page Page[T]) error) (result Result[T], err error) {
	startedAt := time.Now()
	defer func() {
		fields := map[string]any{
			"shop_id": query.ShopID,
			"kind":    f.kind,
			"fetched": countFetched(result.Dimensions),
		}
		if failed := result.FailedDimensions(); len(failed) > 0 {
			fields["failed_dimensions"] = failed
		}
		f.observer.Observe(ctx, startedAt, "fetch", err, fields)
	}()

	if query.ShopID <= 0 {
		return result, core.NewError(core.ErrorBadInput, "fetch: shop id is required", nil)
	}
	if fn == nil {
		return result, fmt.Errorf("fetch: page callback is required")
	}
	result.TimeFrom, result.TimeTo = f.timeRange(query)

	// fail fast before touching any dimension when the shop has no usable token
	if _, err := f.tokens.EnsureValid(ctx, query.ShopID); err != nil {
		return result, err
	}

	dimensions := query.Dimensions
	if len(dimensions) == 0 {
		dimensions = []string{""}
	}
	start, resume := resumeIndex(dimensions, query.Resume)
	seen := map[string]struct{}{}
	var failed []string
	emit := func(ctx context.Context, page Page[T]) error {
		page.Failed = append([]string(nil), failed...)
		return fn(ctx, page)
	}

	for index := start; index < len(dimensions); index++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		checkpoint := Checkpoint{Dimension: dimensions[index]}
		if index == start && resume != nil {
			checkpoint = *resume
		}
		report, err := f.walkDimension(ctx, query, result.TimeFrom, result.TimeTo, checkpoint, seen, emit)
		result.Dimensions = append(result.Dimensions, report)
		if err != nil {
			return result, err
		}
		if report.Failed() {
			failed = append(failed, report.Dimension)
		}
	}
	return result, nil
}

func (f *Fetcher[T]) walkDimension(
	ctx context.Context,
	query Query,
	timeFrom time.Time,
	timeTo time.Time,
	checkpoint Checkpoint,
	seen map[string]struct{},
	fn func(ctx context.Context, page Page[T]) error,
) (DimensionReport, error) {
	report := DimensionReport{Dimension: checkpoint.Dimension}
	cursor := checkpoint.Cursor
	pageIndex := checkpoint.Page

	for {
		if report.Pages >= f.pageCap {
			report.Capped = true
			f.observer.Warn(ctx, "fetch page cap reached", map[string]any{
				"shop_id":   query.ShopID,
				"kind":      f.kind,
				"dimension": report.Dimension,
				"pages":     report.Pages,
			})
			return report, nil
		}

		token, err := f.tokens.EnsureValid(ctx, query.ShopID)
		if err != nil {
			return f.abort(ctx, query, report, err), nil
		}

		report.ListCalls++
		listed, err := f.source.List(ctx, token, PageRequest{
			ShopID:    query.ShopID,
			Dimension: report.Dimension,
			Cursor:    cursor,
			PageSize:  f.pageSize,
			TimeFrom:  timeFrom,
			TimeTo:    timeTo,
		})
		if err != nil {
			return f.abort(ctx, query, report, err), nil
		}

		entities := listed.Items
		if len(listed.IDs) > 0 {
			ids := uniqueIDs(listed.IDs)
			batches := chunk(ids, f.batchSize)
			report.DetailCalls += len(batches)
			entities, err = f.details(ctx, token, batches)
			if err != nil {
				return f.abort(ctx, query, report, err), nil
			}
		}

		page := Page[T]{Dimension: report.Dimension, Index: pageIndex}
		for _, entity := range entities {
			key := f.source.Key(entity)
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			page.Items = append(page.Items, Tagged[T]{Dimension: report.Dimension, Item: entity})
		}
		report.Pages++
		report.Fetched += len(page.Items)
		pageIndex++

		more := listed.More && listed.NextCursor != "" && listed.NextCursor != cursor
		page.Next = Checkpoint{
			Dimension: report.Dimension,
			Cursor:    listed.NextCursor,
			Page:      pageIndex,
			Done:      !more,
		}
		if err := fn(ctx, page); err != nil {
			return report, err
		}
		if !more {
			return report, nil
		}
		cursor = listed.NextCursor
	}
}

// details fans batches out with bounded concurrency and keeps batch order.
func (f *Fetcher[T]) details(ctx context.Context, token core.TokenRecord, batches [][]string) ([]T, error) {
	results := make([][]T, len(batches))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.concurrency)
	for index, batch := range batches {
		group.Go(func() error {
			items, err := f.source.Details(groupCtx, token, batch)
			if err != nil {
				return err
			}
			results[index] = items
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(batches)*f.batchSize)
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

func (f *Fetcher[T]) abort(ctx context.Context, query Query, report DimensionReport, err error) DimensionReport {
	report.Err = err
	f.observer.Warn(ctx, "fetch dimension aborted", map[string]any{
		"shop_id":    query.ShopID,
		"kind":       f.kind,
		"dimension":  report.Dimension,
		"pages":      report.Pages,
		"fetched":    report.Fetched,
		"error":      err.Error(),
		"error_code": core.TextCode(err),
	})
	return report
}

func (f *Fetcher[T]) timeRange(query Query) (time.Time, time.Time) {
	timeTo := query.TimeTo
	if timeTo.IsZero() {
		timeTo = f.now()
	}
	timeFrom := query.TimeFrom
	if timeFrom.IsZero() || !timeFrom.Before(timeTo) {
		timeFrom = timeTo.Add(-f.window)
	}
	return timeFrom, timeTo
}

func resumeIndex(dimensions []string, resume *Checkpoint) (int, *Checkpoint) {
	if resume == nil {
		return 0, nil
	}
	for index, dimension := range dimensions {
		if dimension != resume.Dimension {
			continue
		}
		if resume.Done {
			return index + 1, nil
		}
		return index, resume
	}
	return 0, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultDetailBatchSize
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

func countFetched(reports []DimensionReport) int {
	total := 0
	for _, report := range reports {
		total += report.Fetched
	}
	return total
}
