package shopee

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

type ReturnListRequest struct {
	PageNo   int
	PageSize int
	Status   string
	TimeFrom time.Time
	TimeTo   time.Time
}

type ReturnListPage struct {
	Returns []core.ExternalReturn
	More    bool
}

func (c *Client) ListReturns(ctx context.Context, session Session, req ReturnListRequest) (ReturnListPage, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	query := url.Values{}
	query.Set("page_no", strconv.Itoa(max(req.PageNo, 0)))
	query.Set("page_size", strconv.Itoa(pageSize))
	if req.Status != "" {
		query.Set("status", req.Status)
	}
	if !req.TimeFrom.IsZero() {
		query.Set("update_time_from", strconv.FormatInt(req.TimeFrom.Unix(), 10))
	}
	if !req.TimeTo.IsZero() {
		query.Set("update_time_to", strconv.FormatInt(req.TimeTo.Unix(), 10))
	}

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathReturnList,
		session: &session,
		query:   query,
		bucket:  bucketReturns,
	}, &out); err != nil {
		return ReturnListPage{}, err
	}
	var coerce core.Coercion
	page := ReturnListPage{More: coerce.Bool("more", out["more"])}
	for _, entry := range asList(out["return"]) {
		raw := asMap(entry)
		if raw == nil {
			continue
		}
		if ret := mapReturn(session.ShopID, raw); ret.ReturnSN != "" {
			page.Returns = append(page.Returns, ret)
		}
	}
	return page, nil
}
