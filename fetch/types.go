package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

// TokenSource hands out a valid session token for a shop.
type TokenSource interface {
	EnsureValid(ctx context.Context, shopID int64) (core.TokenRecord, error)
}

type PageRequest struct {
	ShopID    int64
	Dimension string
	Cursor    string
	PageSize  int
	TimeFrom  time.Time
	TimeTo    time.Time
}

// ListPage is one list response. Sources whose list call already returns
// full entities set Items and leave IDs empty; no detail call is made then.
type ListPage[T any] struct {
	IDs        []string
	Items      []T
	More       bool
	NextCursor string
}

type Source[T any] interface {
	List(ctx context.Context, token core.TokenRecord, req PageRequest) (ListPage[T], error)
	Details(ctx context.Context, token core.TokenRecord, ids []string) ([]T, error)
	Key(item T) string
}

// Checkpoint marks where the next list call of a dimension begins.
type Checkpoint struct {
	Dimension string
	Cursor    string
	Page      int
	Done      bool
}

type Query struct {
	ShopID     int64
	Dimensions []string
	TimeFrom   time.Time
	TimeTo     time.Time
	Resume     *Checkpoint
}

type Tagged[T any] struct {
	Dimension string
	Item      T
}

type Page[T any] struct {
	Dimension string
	Index     int
	Items     []Tagged[T]
	Next      Checkpoint
	// Failed lists dimensions of this walk that aborted before the page.
	Failed []string
}

type DimensionReport struct {
	Dimension   string
	Pages       int
	ListCalls   int
	DetailCalls int
	Fetched     int
	Capped      bool
	Err         error
}

func (r DimensionReport) Failed() bool {
	return r.Err != nil
}

type Result[T any] struct {
	Items      []Tagged[T]
	Dimensions []DimensionReport
	TimeFrom   time.Time
	TimeTo     time.Time
}

func (r Result[T]) Fetched() int {
	return len(r.Items)
}

// Completed lists dimensions whose pagination ran to the end or to the cap.
func (r Result[T]) Completed() []string {
	out := make([]string, 0, len(r.Dimensions))
	for _, report := range r.Dimensions {
		if !report.Failed() {
			out = append(out, report.Dimension)
		}
	}
	return out
}

func (r Result[T]) FailedDimensions() []string {
	out := []string{}
	for _, report := range r.Dimensions {
		if report.Failed() {
			out = append(out, report.Dimension)
		}
	}
	return out
}

func (r Result[T]) Partial() bool {
	return len(r.FailedDimensions()) > 0
}

// Warning returns a PARTIAL_FETCH error describing failed dimensions, or nil
// when every dimension completed.
func (r Result[T]) Warning() error {
	failed := r.FailedDimensions()
	if len(failed) == 0 {
		return nil
	}
	causes := make([]string, 0, len(failed))
	for _, report := range r.Dimensions {
		if report.Failed() {
			causes = append(causes, fmt.Sprintf("%s: %v", displayDimension(report.Dimension), report.Err))
		}
	}
	return core.NewError(core.ErrorPartialFetch,
		fmt.Sprintf("fetch: %d dimension(s) aborted after %d item(s) fetched: %s", len(failed), r.Fetched(), strings.Join(causes, "; ")),
		map[string]any{
			"fetched":              r.Fetched(),
			"failed_dimensions":    failed,
			"completed_dimensions": r.Completed(),
		},
	)
}

func displayDimension(dimension string) string {
	if dimension == "" {
		return "(all)"
	}
	return dimension
}
