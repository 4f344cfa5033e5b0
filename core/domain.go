package core

import (
	"fmt"
	"strings"
	"time"
)

const ProviderShopee = "shopee"

type Credential struct {
	PartnerID  int64
	PartnerKey string
	ShopID     int64
}

func (c Credential) Validate() error {
	if c.PartnerID <= 0 {
		return fmt.Errorf("core: partner id is required")
	}
	if strings.TrimSpace(c.PartnerKey) == "" {
		return fmt.Errorf("core: partner key is required")
	}
	return nil
}

type TokenRecord struct {
	ShopID          int64
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
	LastRefreshedAt time.Time
}

func (r TokenRecord) Validate() error {
	if r.ShopID <= 0 {
		return fmt.Errorf("core: shop id is required")
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return fmt.Errorf("core: access token is required")
	}
	if strings.TrimSpace(r.RefreshToken) == "" {
		return fmt.Errorf("core: refresh token is required")
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("core: token expiry is required")
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusUnpaid         OrderStatus = "UNPAID"
	OrderStatusReadyToShip    OrderStatus = "READY_TO_SHIP"
	OrderStatusProcessed      OrderStatus = "PROCESSED"
	OrderStatusShipped        OrderStatus = "SHIPPED"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusInCancel       OrderStatus = "IN_CANCEL"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusToReturn       OrderStatus = "TO_RETURN"
	OrderStatusInvoicePending OrderStatus = "INVOICE_PENDING"
)

// DefaultOrderStatuses is the enumeration walked by a full order sync.
var DefaultOrderStatuses = []OrderStatus{
	OrderStatusUnpaid,
	OrderStatusReadyToShip,
	OrderStatusProcessed,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusInCancel,
	OrderStatusCancelled,
}

func (s OrderStatus) IsCancellation() bool {
	return s == OrderStatusInCancel || s == OrderStatusCancelled
}

type ProductStatus string

const (
	ProductStatusNormal  ProductStatus = "NORMAL"
	ProductStatusBanned  ProductStatus = "BANNED"
	ProductStatusDeleted ProductStatus = "DELETED"
	ProductStatusUnlist  ProductStatus = "UNLIST"
)

var DefaultProductStatuses = []ProductStatus{
	ProductStatusNormal,
	ProductStatusBanned,
	ProductStatusUnlist,
}

type ExternalOrder struct {
	ShopID          int64
	OrderSN         string
	Status          OrderStatus
	BuyerUsername   string
	Currency        string
	TotalAmount     float64
	ShippingCarrier string
	TrackingNumber  string
	PaymentMethod   string
	CreateTime      time.Time
	UpdateTime      time.Time
	Items           []ExternalOrderItem
	// Issues lists fields that could not be coerced from the upstream payload.
	Issues []string
}

type ExternalOrderItem struct {
	ItemID          int64
	ModelID         int64
	ItemName        string
	ModelName       string
	ItemSKU         string
	ModelSKU        string
	Quantity        int
	OriginalPrice   float64
	DiscountedPrice float64
}

type ExternalProduct struct {
	ShopID        int64
	ItemID        int64
	Name          string
	SKU           string
	Status        ProductStatus
	Price         float64
	Stock         int
	ReservedStock int
	HasModels     bool
	UpdateTime    time.Time
	Models        []ExternalModel
	Issues        []string
}

type ExternalModel struct {
	ModelID int64
	Name    string
	SKU     string
	Price   float64
	Stock   int
}

type ExternalReturn struct {
	ShopID       int64
	ReturnSN     string
	OrderSN      string
	Status       string
	Reason       string
	RefundAmount float64
	UpdateTime   time.Time
}

type UpsertAction string

const (
	UpsertActionCreated UpsertAction = "created"
	UpsertActionUpdated UpsertAction = "updated"
)

type UpsertResult struct {
	ID     string
	Action UpsertAction
}

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSuccess    QueueStatus = "success"
	QueueStatusRetry      QueueStatus = "retry"
	QueueStatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) Terminal() bool {
	return s == QueueStatusSuccess || s == QueueStatusFailed
}

type SyncType string

const (
	SyncTypeStockUpdate SyncType = "stock_update"
	SyncTypePriceUpdate SyncType = "price_update"
)

type SyncQueueItem struct {
	ID           string
	ShopID       int64
	SyncType     SyncType
	Payload      map[string]any
	Status       QueueStatus
	Priority     int
	RetryCount   int
	MaxRetries   int
	ScheduledAt  time.Time
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "received"
	WebhookStatusSuccess    WebhookStatus = "success"
	WebhookStatusFailed     WebhookStatus = "failed"
	WebhookStatusUnverified WebhookStatus = "unverified"
	WebhookStatusDuplicate  WebhookStatus = "duplicate"
	WebhookStatusIgnored    WebhookStatus = "ignored"
)

type WebhookLogEntry struct {
	ID          string
	Code        int
	ShopID      int64
	Payload     string
	Signature   string
	Verified    bool
	Status      WebhookStatus
	Error       string
	Digest      string
	ReceivedAt  time.Time
	CompletedAt *time.Time
}

// JobSummary is the result of every batch entry point. Batch jobs report
// partial success through the counters instead of failing on the first error.
type JobSummary struct {
	Job       string
	ShopID    int64
	Processed int
	Failed    int
	Total     int
	Skipped   bool
	Warnings  []string
}

func (s *JobSummary) Merge(other JobSummary) {
	if s == nil {
		return
	}
	s.Processed += other.Processed
	s.Failed += other.Failed
	s.Total += other.Total
	s.Warnings = append(s.Warnings, other.Warnings...)
}

type SyncKind string

const (
	SyncKindOrders   SyncKind = "orders"
	SyncKindProducts SyncKind = "products"
	SyncKindReturns  SyncKind = "returns"
)

// SyncCursor is the sync position of one (shop, kind). Watermark is the end
// of the last window that completed without a failed dimension. While a walk
// is in flight Dimension/Cursor/Page point at the next list call, or past
// Dimension when DimensionDone is set, and WindowFrom/WindowTo pin the window
// it runs over.
type SyncCursor struct {
	ShopID        int64
	Kind          SyncKind
	Watermark     time.Time
	InFlight      bool
	Dimension     string
	Cursor        string
	Page          int
	DimensionDone bool
	WindowFrom    time.Time
	WindowTo      time.Time
	UpdatedAt     time.Time

	// FailedDimensions lists dimensions of the in-flight walk that aborted
	// before the checkpoint was taken.
	FailedDimensions []string
}

// ClearCheckpoint drops the in-flight walk position.
func (c *SyncCursor) ClearCheckpoint() {
	c.InFlight = false
	c.Dimension = ""
	c.Cursor = ""
	c.Page = 0
	c.DimensionDone = false
	c.WindowFrom = time.Time{}
	c.WindowTo = time.Time{}
	c.FailedDimensions = nil
}
