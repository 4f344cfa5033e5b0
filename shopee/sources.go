package shopee

import (
	"context"
	"strconv"
	"strings"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/fetch"
)

// OrderSource walks orders by status. The dimension is the order status.
type OrderSource struct {
	Client         *Client
	TimeRangeField string
}

func (s OrderSource) List(ctx context.Context, token core.TokenRecord, req fetch.PageRequest) (fetch.ListPage[core.ExternalOrder], error) {
	page, err := s.Client.ListOrders(ctx, SessionFrom(token), OrderListRequest{
		Status:         core.OrderStatus(req.Dimension),
		TimeRangeField: s.TimeRangeField,
		TimeFrom:       req.TimeFrom,
		TimeTo:         req.TimeTo,
		PageSize:       req.PageSize,
		Cursor:         req.Cursor,
	})
	if err != nil {
		return fetch.ListPage[core.ExternalOrder]{}, err
	}
	return fetch.ListPage[core.ExternalOrder]{
		IDs:        page.OrderSNs,
		More:       page.More,
		NextCursor: page.NextCursor,
	}, nil
}

func (s OrderSource) Details(ctx context.Context, token core.TokenRecord, ids []string) ([]core.ExternalOrder, error) {
	return s.Client.GetOrderDetails(ctx, SessionFrom(token), ids)
}

func (OrderSource) Key(order core.ExternalOrder) string {
	return order.OrderSN
}

// ProductSource walks items by status; the cursor is the list offset. Items
// with variations get their model list loaded during the detail phase.
type ProductSource struct {
	Client *Client
	// UseWindow limits the walk to items updated inside the query window.
	UseWindow bool
}

func (s ProductSource) List(ctx context.Context, token core.TokenRecord, req fetch.PageRequest) (fetch.ListPage[core.ExternalProduct], error) {
	offset, _ := strconv.Atoi(strings.TrimSpace(req.Cursor))
	listReq := ItemListRequest{Offset: offset, PageSize: req.PageSize}
	if req.Dimension != "" {
		listReq.Statuses = []core.ProductStatus{core.ProductStatus(req.Dimension)}
	}
	if s.UseWindow {
		listReq.UpdateFrom = req.TimeFrom
		listReq.UpdateTo = req.TimeTo
	}
	page, err := s.Client.ListItems(ctx, SessionFrom(token), listReq)
	if err != nil {
		return fetch.ListPage[core.ExternalProduct]{}, err
	}
	ids := make([]string, 0, len(page.ItemIDs))
	for _, id := range page.ItemIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	next := ""
	if page.More {
		next = strconv.Itoa(page.NextOffset)
	}
	return fetch.ListPage[core.ExternalProduct]{IDs: ids, More: page.More, NextCursor: next}, nil
}

func (s ProductSource) Details(ctx context.Context, token core.TokenRecord, ids []string) ([]core.ExternalProduct, error) {
	itemIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil || parsed <= 0 {
			continue
		}
		itemIDs = append(itemIDs, parsed)
	}
	session := SessionFrom(token)
	products, err := s.Client.GetItemBaseInfo(ctx, session, itemIDs)
	if err != nil {
		return nil, err
	}
	for index := range products {
		if !products[index].HasModels {
			continue
		}
		models, issues, err := s.Client.GetModelList(ctx, session, products[index].ItemID)
		if err != nil {
			return nil, err
		}
		products[index].Models = models
		products[index].Issues = append(products[index].Issues, issues...)
	}
	return products, nil
}

func (ProductSource) Key(product core.ExternalProduct) string {
	return strconv.FormatInt(product.ItemID, 10)
}

// ReturnSource is list-only; the cursor is the page number.
type ReturnSource struct {
	Client *Client
}

func (s ReturnSource) List(ctx context.Context, token core.TokenRecord, req fetch.PageRequest) (fetch.ListPage[core.ExternalReturn], error) {
	pageNo, _ := strconv.Atoi(strings.TrimSpace(req.Cursor))
	page, err := s.Client.ListReturns(ctx, SessionFrom(token), ReturnListRequest{
		PageNo:   pageNo,
		PageSize: req.PageSize,
		Status:   req.Dimension,
		TimeFrom: req.TimeFrom,
		TimeTo:   req.TimeTo,
	})
	if err != nil {
		return fetch.ListPage[core.ExternalReturn]{}, err
	}
	next := ""
	if page.More {
		next = strconv.Itoa(pageNo + 1)
	}
	return fetch.ListPage[core.ExternalReturn]{Items: page.Returns, More: page.More, NextCursor: next}, nil
}

func (ReturnSource) Details(context.Context, core.TokenRecord, []string) ([]core.ExternalReturn, error) {
	return nil, nil
}

func (ReturnSource) Key(ret core.ExternalReturn) string {
	return ret.ReturnSN
}

var (
	_ fetch.Source[core.ExternalOrder]   = OrderSource{}
	_ fetch.Source[core.ExternalProduct] = ProductSource{}
	_ fetch.Source[core.ExternalReturn]  = ReturnSource{}
)
