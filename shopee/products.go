package shopee

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

type ItemListRequest struct {
	Statuses   []core.ProductStatus
	Offset     int
	PageSize   int
	UpdateFrom time.Time
	UpdateTo   time.Time
}

type ItemListPage struct {
	ItemIDs    []int64
	More       bool
	NextOffset int
	Total      int
}

func (c *Client) ListItems(ctx context.Context, session Session, req ItemListRequest) (ItemListPage, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	query := url.Values{}
	query.Set("offset", strconv.Itoa(max(req.Offset, 0)))
	query.Set("page_size", strconv.Itoa(pageSize))
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = core.DefaultProductStatuses
	}
	for _, status := range statuses {
		query.Add("item_status", string(status))
	}
	if !req.UpdateFrom.IsZero() {
		query.Set("update_time_from", strconv.FormatInt(req.UpdateFrom.Unix(), 10))
	}
	if !req.UpdateTo.IsZero() {
		query.Set("update_time_to", strconv.FormatInt(req.UpdateTo.Unix(), 10))
	}

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathItemList,
		session: &session,
		query:   query,
		bucket:  bucketProduct,
	}, &out); err != nil {
		return ItemListPage{}, err
	}

	var coerce core.Coercion
	page := ItemListPage{
		More:       coerce.Bool("has_next_page", out["has_next_page"]),
		NextOffset: coerce.Int("next_offset", out["next_offset"]),
		Total:      coerce.Int("total_count", out["total_count"]),
	}
	for _, entry := range asList(out["item"]) {
		if id := coerce.Int64("item.item_id", asMap(entry)["item_id"]); id > 0 {
			page.ItemIDs = append(page.ItemIDs, id)
		}
	}
	return page, nil
}

// GetItemBaseInfo fetches up to MaxDetailBatch items. Models are not loaded;
// see GetModelList.
func (c *Client) GetItemBaseInfo(ctx context.Context, session Session, itemIDs []int64) ([]core.ExternalProduct, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	if len(itemIDs) > MaxDetailBatch {
		return nil, core.NewError(core.ErrorBadInput, fmt.Sprintf("shopee: at most %d item_id per detail call", MaxDetailBatch), nil)
	}
	query := url.Values{}
	query.Set("item_id_list", joinInt64(itemIDs))

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathItemBaseInfo,
		session: &session,
		query:   query,
		bucket:  bucketProduct,
	}, &out); err != nil {
		return nil, err
	}
	products := make([]core.ExternalProduct, 0, len(itemIDs))
	for _, entry := range asList(out["item_list"]) {
		raw := asMap(entry)
		if raw == nil {
			continue
		}
		product := mapProduct(session.ShopID, raw)
		if product.ItemID <= 0 {
			continue
		}
		products = append(products, product)
	}
	return products, nil
}

func (c *Client) GetModelList(ctx context.Context, session Session, itemID int64) ([]core.ExternalModel, []string, error) {
	query := url.Values{}
	query.Set("item_id", strconv.FormatInt(itemID, 10))

	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodGet,
		path:    PathModelList,
		session: &session,
		query:   query,
		bucket:  bucketProduct,
	}, &out); err != nil {
		return nil, nil, err
	}
	var issues []string
	var models []core.ExternalModel
	for _, entry := range asList(out["model"]) {
		raw := asMap(entry)
		if raw == nil {
			continue
		}
		model := mapModel(raw, &issues)
		if model.ModelID <= 0 {
			continue
		}
		models = append(models, model)
	}
	return models, issues, nil
}

type StockUpdate struct {
	ItemID  int64
	ModelID int64
	Stock   int
}

type PriceUpdate struct {
	ItemID  int64
	ModelID int64
	Price   float64
}

// UpdateStock pushes a seller stock value for an item or one of its models.
func (c *Client) UpdateStock(ctx context.Context, session Session, update StockUpdate) error {
	if update.ItemID <= 0 || update.Stock < 0 {
		return core.NewError(core.ErrorBadInput, "shopee: stock update needs an item id and a non-negative stock", nil)
	}
	entry := map[string]any{
		"seller_stock": []map[string]any{{"stock": update.Stock}},
	}
	if update.ModelID > 0 {
		entry["model_id"] = update.ModelID
	}
	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodPost,
		path:    PathUpdateStock,
		session: &session,
		bucket:  bucketProduct,
		body: map[string]any{
			"item_id":    update.ItemID,
			"stock_list": []map[string]any{entry},
		},
	}, &out); err != nil {
		return err
	}
	return failureListError(out, PathUpdateStock)
}

func (c *Client) UpdatePrice(ctx context.Context, session Session, update PriceUpdate) error {
	if update.ItemID <= 0 || update.Price <= 0 {
		return core.NewError(core.ErrorBadInput, "shopee: price update needs an item id and a positive price", nil)
	}
	entry := map[string]any{"original_price": update.Price}
	if update.ModelID > 0 {
		entry["model_id"] = update.ModelID
	}
	var out map[string]any
	if err := c.call(ctx, request{
		method:  http.MethodPost,
		path:    PathUpdatePrice,
		session: &session,
		bucket:  bucketProduct,
		body: map[string]any{
			"item_id":    update.ItemID,
			"price_list": []map[string]any{entry},
		},
	}, &out); err != nil {
		return err
	}
	return failureListError(out, PathUpdatePrice)
}

// failureListError reports per-model rejections the upstream returns inside
// an otherwise successful response.
func failureListError(out map[string]any, path string) error {
	failures := asList(out["failure_list"])
	if len(failures) == 0 {
		return nil
	}
	var coerce core.Coercion
	first := asMap(failures[0])
	reason := coerce.String("failure_list.failed_reason", first["failed_reason"])
	return core.NewError(core.ErrorUpstreamRejected, fmt.Sprintf("shopee: %s rejected %d entries: %s", path, len(failures), reason), map[string]any{
		"path":     path,
		"failures": len(failures),
	})
}
