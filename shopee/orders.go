package shopee

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

type OrderListRequest struct {
	Status core.OrderStatus
	// TimeRangeField is create_time or update_time.
	TimeRangeField string
	TimeFrom       time.Time
	TimeTo         time.Time
	PageSize       int
	Cursor         string
}

type OrderListPage struct {
	OrderSNs   []string
	More       bool
	NextCursor string
}

func (c *Client) ListOrders(ctx context.Context, session Session, req OrderListRequest) (OrderListPage, error) {
	field := strings.TrimSpace(req.TimeRangeField)
	if field == "" {
		field = "update_time"
	}
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	query := url.Values{}
	query.Set("time_range_field", field)
	query.Set("time_from", strconv.FormatInt(req.TimeFrom.Unix(), 10))
	query.Set("time_to", strconv.FormatInt(req.TimeTo.Unix(), 10))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("cursor", req.Cursor)
	if req.Status != "" {
		query.Set("order_status", string(req.Status))
	}

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathOrderList,
		session: &session,
		query:   query,
		bucket:  bucketOrder,
	}, &out); err != nil {
		return OrderListPage{}, err
	}

	var coerce core.Coercion
	page := OrderListPage{
		More:       coerce.Bool("more", out["more"]),
		NextCursor: coerce.String("next_cursor", out["next_cursor"]),
	}
	for _, entry := range asList(out["order_list"]) {
		if sn := coerce.String("order_list.order_sn", asMap(entry)["order_sn"]); sn != "" {
			page.OrderSNs = append(page.OrderSNs, sn)
		}
	}
	return page, nil
}

// GetOrderDetails fetches up to MaxDetailBatch orders in one call.
func (c *Client) GetOrderDetails(ctx context.Context, session Session, orderSNs []string) ([]core.ExternalOrder, error) {
	if len(orderSNs) == 0 {
		return nil, nil
	}
	if len(orderSNs) > MaxDetailBatch {
		return nil, core.NewError(core.ErrorBadInput, fmt.Sprintf("shopee: at most %d order_sn per detail call", MaxDetailBatch), nil)
	}
	query := url.Values{}
	query.Set("order_sn_list", strings.Join(orderSNs, ","))
	query.Set("response_optional_fields", orderOptionalFields)

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathOrderDetail,
		session: &session,
		query:   query,
		bucket:  bucketOrder,
	}, &out); err != nil {
		return nil, err
	}
	orders := make([]core.ExternalOrder, 0, len(orderSNs))
	for _, entry := range asList(out["order_list"]) {
		raw := asMap(entry)
		if raw == nil {
			continue
		}
		order := mapOrder(session.ShopID, raw)
		if order.OrderSN == "" {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetOrder fetches a single order, used when a push only names the order.
func (c *Client) GetOrder(ctx context.Context, session Session, orderSN string) (core.ExternalOrder, error) {
	orders, err := c.GetOrderDetails(ctx, session, []string{strings.TrimSpace(orderSN)})
	if err != nil {
		return core.ExternalOrder{}, err
	}
	if len(orders) == 0 {
		return core.ExternalOrder{}, core.NewError(core.ErrorNotFound, fmt.Sprintf("shopee: order %s not found", orderSN), map[string]any{
			"order_sn": orderSN,
		})
	}
	return orders[0], nil
}
