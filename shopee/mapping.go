package shopee

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-marketsync/core"
)

// Upstream payloads are decoded into generic maps and read through
// core.Coercion: numbers may arrive as strings, fields may be missing.

func asMap(value any) map[string]any {
	typed, _ := value.(map[string]any)
	return typed
}

func asList(value any) []any {
	typed, _ := value.([]any)
	return typed
}

func firstMap(value any) map[string]any {
	list := asList(value)
	if len(list) == 0 {
		return nil
	}
	return asMap(list[0])
}

func mapOrder(shopID int64, raw map[string]any) core.ExternalOrder {
	var coerce core.Coercion
	order := core.ExternalOrder{
		ShopID:          shopID,
		OrderSN:         coerce.String("order_sn", raw["order_sn"]),
		Status:          core.OrderStatus(strings.ToUpper(coerce.String("order_status", raw["order_status"]))),
		BuyerUsername:   coerce.String("buyer_username", raw["buyer_username"]),
		Currency:        coerce.String("currency", raw["currency"]),
		TotalAmount:     coerce.Float64("total_amount", raw["total_amount"]),
		ShippingCarrier: coerce.String("shipping_carrier", raw["shipping_carrier"]),
		TrackingNumber:  coerce.String("tracking_number", raw["tracking_number"]),
		PaymentMethod:   coerce.String("payment_method", raw["payment_method"]),
		CreateTime:      coerce.Unix("create_time", raw["create_time"]),
		UpdateTime:      coerce.Unix("update_time", raw["update_time"]),
	}
	for _, entry := range asList(raw["item_list"]) {
		item := asMap(entry)
		if item == nil {
			continue
		}
		order.Items = append(order.Items, core.ExternalOrderItem{
			ItemID:          coerce.Int64("item_list.item_id", item["item_id"]),
			ModelID:         coerce.Int64("item_list.model_id", item["model_id"]),
			ItemName:        coerce.String("item_list.item_name", item["item_name"]),
			ModelName:       coerce.String("item_list.model_name", item["model_name"]),
			ItemSKU:         coerce.String("item_list.item_sku", item["item_sku"]),
			ModelSKU:        coerce.String("item_list.model_sku", item["model_sku"]),
			Quantity:        coerce.Int("item_list.model_quantity_purchased", item["model_quantity_purchased"]),
			OriginalPrice:   coerce.Float64("item_list.model_original_price", item["model_original_price"]),
			DiscountedPrice: coerce.Float64("item_list.model_discounted_price", item["model_discounted_price"]),
		})
	}
	order.Issues = coerce.Issues
	return order
}

func mapProduct(shopID int64, raw map[string]any) core.ExternalProduct {
	var coerce core.Coercion
	product := core.ExternalProduct{
		ShopID:     shopID,
		ItemID:     coerce.Int64("item_id", raw["item_id"]),
		Name:       coerce.String("item_name", raw["item_name"]),
		SKU:        coerce.String("item_sku", raw["item_sku"]),
		Status:     core.ProductStatus(strings.ToUpper(coerce.String("item_status", raw["item_status"]))),
		HasModels:  coerce.Bool("has_model", raw["has_model"]),
		UpdateTime: coerce.Unix("update_time", raw["update_time"]),
	}
	if price := firstMap(raw["price_info"]); price != nil {
		product.Price = coerce.Float64("price_info.current_price", price["current_price"])
	}
	if summary := asMap(asMap(raw["stock_info_v2"])["summary_info"]); summary != nil {
		product.Stock = coerce.Int("stock_info_v2.total_available_stock", summary["total_available_stock"])
		product.ReservedStock = coerce.Int("stock_info_v2.total_reserved_stock", summary["total_reserved_stock"])
	}
	product.Issues = coerce.Issues
	return product
}

func mapModel(raw map[string]any, issues *[]string) core.ExternalModel {
	var coerce core.Coercion
	model := core.ExternalModel{
		ModelID: coerce.Int64("model_id", raw["model_id"]),
		Name:    coerce.String("model_name", raw["model_name"]),
		SKU:     coerce.String("model_sku", raw["model_sku"]),
	}
	if price := firstMap(raw["price_info"]); price != nil {
		model.Price = coerce.Float64("price_info.current_price", price["current_price"])
	}
	if summary := asMap(asMap(raw["stock_info_v2"])["summary_info"]); summary != nil {
		model.Stock = coerce.Int("stock_info_v2.total_available_stock", summary["total_available_stock"])
	}
	if issues != nil {
		*issues = append(*issues, coerce.Issues...)
	}
	return model
}

func mapReturn(shopID int64, raw map[string]any) core.ExternalReturn {
	var coerce core.Coercion
	return core.ExternalReturn{
		ShopID:       shopID,
		ReturnSN:     coerce.String("return_sn", raw["return_sn"]),
		OrderSN:      coerce.String("order_sn", raw["order_sn"]),
		Status:       strings.ToUpper(coerce.String("status", raw["status"])),
		Reason:       coerce.String("reason", raw["reason"]),
		RefundAmount: coerce.Float64("refund_amount", raw["refund_amount"]),
		UpdateTime:   coerce.Unix("update_time", raw["update_time"]),
	}
}

func joinInt64(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
