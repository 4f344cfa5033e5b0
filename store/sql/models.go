package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type shopTokenRecord struct {
	bun.BaseModel `bun:"table:shop_tokens,alias:st"`

	ID              string     `bun:"id,pk"`
	ShopID          int64      `bun:"shop_id,notnull"`
	AccessToken     string     `bun:"access_token,notnull"`
	RefreshToken    string     `bun:"refresh_token,notnull"`
	ExpiresAt       time.Time  `bun:"expires_at,notnull"`
	LastRefreshedAt *time.Time `bun:"last_refreshed_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderRecord struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              string     `bun:"id,pk"`
	ShopID          int64      `bun:"shop_id,notnull"`
	OrderSN         string     `bun:"order_sn,notnull"`
	Status          string     `bun:"status,notnull"`
	BuyerUsername   string     `bun:"buyer_username,notnull"`
	Currency        string     `bun:"currency,notnull"`
	TotalAmount     float64    `bun:"total_amount,notnull"`
	ShippingCarrier string     `bun:"shipping_carrier,notnull"`
	TrackingNumber  string     `bun:"tracking_number,notnull"`
	PaymentMethod   string     `bun:"payment_method,notnull"`
	CreateTime      *time.Time `bun:"create_time,nullzero"`
	UpdateTime      *time.Time `bun:"update_time,nullzero"`
	SyncedAt        *time.Time `bun:"synced_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderItemRecord struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID              string    `bun:"id,pk"`
	OrderID         string    `bun:"order_id,notnull"`
	ShopID          int64     `bun:"shop_id,notnull"`
	OrderSN         string    `bun:"order_sn,notnull"`
	ItemID          int64     `bun:"item_id,notnull"`
	ModelID         int64     `bun:"model_id,notnull"`
	ItemName        string    `bun:"item_name,notnull"`
	ModelName       string    `bun:"model_name,notnull"`
	SKU             string    `bun:"sku,notnull"`
	Quantity        int       `bun:"quantity,notnull"`
	OriginalPrice   float64   `bun:"original_price,notnull"`
	DiscountedPrice float64   `bun:"discounted_price,notnull"`
	Note            string    `bun:"note,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID            string     `bun:"id,pk"`
	ShopID        int64      `bun:"shop_id,notnull"`
	ItemID        int64      `bun:"item_id,notnull"`
	Name          string     `bun:"name,notnull"`
	SKU           string     `bun:"sku,notnull"`
	Status        string     `bun:"status,notnull"`
	Price         float64    `bun:"price,notnull"`
	Stock         int        `bun:"stock,notnull"`
	ReservedStock int        `bun:"reserved_stock,notnull"`
	HasModels     bool       `bun:"has_models,notnull"`
	UpdateTime    *time.Time `bun:"update_time,nullzero"`
	SyncedAt      *time.Time `bun:"synced_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type variationRecord struct {
	bun.BaseModel `bun:"table:product_variations,alias:pv"`

	ID        string    `bun:"id,pk"`
	ProductID string    `bun:"product_id,notnull"`
	ShopID    int64     `bun:"shop_id,notnull"`
	ItemID    int64     `bun:"item_id,notnull"`
	ModelID   int64     `bun:"model_id,notnull"`
	Name      string    `bun:"name,notnull"`
	SKU       string    `bun:"sku,notnull"`
	LocalSKU  string    `bun:"local_sku,notnull"`
	Price     float64   `bun:"price,notnull"`
	Stock     int       `bun:"stock,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type inventoryLogRecord struct {
	bun.BaseModel `bun:"table:inventory_logs,alias:il"`

	ID        string    `bun:"id,pk"`
	ShopID    int64     `bun:"shop_id,notnull"`
	ItemID    int64     `bun:"item_id,notnull"`
	ModelID   int64     `bun:"model_id,notnull"`
	Field     string    `bun:"field,notnull"`
	Before    int       `bun:"before_value,notnull"`
	After     int       `bun:"after_value,notnull"`
	Source    string    `bun:"source,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type returnRecord struct {
	bun.BaseModel `bun:"table:order_returns,alias:orr"`

	ID           string     `bun:"id,pk"`
	ShopID       int64      `bun:"shop_id,notnull"`
	ReturnSN     string     `bun:"return_sn,notnull"`
	OrderSN      string     `bun:"order_sn,notnull"`
	Status       string     `bun:"status,notnull"`
	Reason       string     `bun:"reason,notnull"`
	RefundAmount float64    `bun:"refund_amount,notnull"`
	UpdateTime   *time.Time `bun:"update_time,nullzero"`
	SyncedAt     *time.Time `bun:"synced_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncQueueRecord struct {
	bun.BaseModel `bun:"table:sync_queue,alias:sq"`

	ID           string         `bun:"id,pk"`
	ShopID       int64          `bun:"shop_id,notnull"`
	SyncType     string         `bun:"sync_type,notnull"`
	Payload      map[string]any `bun:"payload,type:jsonb,notnull"`
	Status       string         `bun:"status,notnull"`
	Priority     int            `bun:"priority,notnull"`
	RetryCount   int            `bun:"retry_count,notnull"`
	MaxRetries   int            `bun:"max_retries,notnull"`
	ScheduledAt  time.Time      `bun:"scheduled_at,notnull"`
	ErrorMessage string         `bun:"error_message,notnull"`
	ProcessedAt  *time.Time     `bun:"processed_at,nullzero"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookLogRecord struct {
	bun.BaseModel `bun:"table:webhook_logs,alias:wl"`

	ID          string     `bun:"id,pk"`
	Code        int        `bun:"code,notnull"`
	ShopID      int64      `bun:"shop_id,notnull"`
	Payload     string     `bun:"payload,notnull"`
	Signature   string     `bun:"signature,notnull"`
	Verified    bool       `bun:"verified,notnull"`
	Status      string     `bun:"status,notnull"`
	Error       string     `bun:"error,notnull"`
	Digest      string     `bun:"digest,notnull"`
	ReceivedAt  time.Time  `bun:"received_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

type syncCursorRecord struct {
	bun.BaseModel `bun:"table:sync_cursors,alias:sc"`

	ID            string     `bun:"id,pk"`
	ShopID        int64      `bun:"shop_id,notnull"`
	Kind          string     `bun:"kind,notnull"`
	Watermark     *time.Time `bun:"watermark,nullzero"`
	InFlight      bool       `bun:"in_flight,notnull"`
	Dimension     string     `bun:"dimension,notnull"`
	Cursor        string     `bun:"page_cursor,notnull"`
	Page          int        `bun:"page,notnull"`
	DimensionDone bool       `bun:"dimension_done,notnull"`
	WindowFrom    *time.Time `bun:"window_from,nullzero"`
	WindowTo      *time.Time `bun:"window_to,nullzero"`
	Failed        []string   `bun:"failed_dimensions,type:jsonb,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:rate_limit_states,alias:rls"`

	ID             string         `bun:"id,pk"`
	Provider       string         `bun:"provider,notnull"`
	ShopID         int64          `bun:"shop_id,notnull"`
	Bucket         string         `bun:"bucket,notnull"`
	Limit          int            `bun:"limit_value,notnull"`
	Remaining      int            `bun:"remaining,notnull"`
	ResetAt        *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter     *int           `bun:"retry_after_seconds"`
	ThrottledUntil *time.Time     `bun:"throttled_until,nullzero"`
	LastStatus     int            `bun:"last_status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeValue(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
