package reconcile

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by a Tx when an insert collides with a row that
// another writer created after the natural key lookup.
var ErrConflict = errors.New("reconcile: natural key conflict")

// Store runs fn inside one transaction. A non-nil error from fn rolls back
// every write made through tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work. Find methods return nil, nil when the row does not
// exist.
type Tx interface {
	FindOrder(ctx context.Context, shopID int64, orderSN string) (*OrderRow, error)
	InsertOrder(ctx context.Context, row *OrderRow) error
	UpdateOrder(ctx context.Context, row *OrderRow) error

	FindOrderItem(ctx context.Context, shopID int64, orderSN string, itemID int64, modelID int64) (*OrderItemRow, error)
	InsertOrderItem(ctx context.Context, row *OrderItemRow) error
	UpdateOrderItem(ctx context.Context, row *OrderItemRow) error

	FindProduct(ctx context.Context, shopID int64, itemID int64) (*ProductRow, error)
	InsertProduct(ctx context.Context, row *ProductRow) error
	UpdateProduct(ctx context.Context, row *ProductRow) error

	FindVariation(ctx context.Context, shopID int64, modelID int64) (*VariationRow, error)
	InsertVariation(ctx context.Context, row *VariationRow) error
	UpdateVariation(ctx context.Context, row *VariationRow) error

	AppendInventoryLog(ctx context.Context, row *InventoryLogRow) error

	FindReturn(ctx context.Context, shopID int64, returnSN string) (*ReturnRow, error)
	InsertReturn(ctx context.Context, row *ReturnRow) error
	UpdateReturn(ctx context.Context, row *ReturnRow) error
}

type OrderRow struct {
	ID              string
	ShopID          int64
	OrderSN         string
	Status          string
	BuyerUsername   string
	Currency        string
	TotalAmount     float64
	ShippingCarrier string
	TrackingNumber  string
	PaymentMethod   string
	CreateTime      time.Time
	UpdateTime      time.Time
	SyncedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItemRow is keyed by order_sn + item_id + model_id. Note is owned by
// the local system and never written by sync.
type OrderItemRow struct {
	ID              string
	OrderID         string
	ShopID          int64
	OrderSN         string
	ItemID          int64
	ModelID         int64
	ItemName        string
	ModelName       string
	SKU             string
	Quantity        int
	OriginalPrice   float64
	DiscountedPrice float64
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ProductRow struct {
	ID            string
	ShopID        int64
	ItemID        int64
	Name          string
	SKU           string
	Status        string
	Price         float64
	Stock         int
	ReservedStock int
	HasModels     bool
	UpdateTime    time.Time
	SyncedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VariationRow is keyed by the upstream model id. LocalSKU is owned by the
// local system and never written by sync.
type VariationRow struct {
	ID        string
	ProductID string
	ShopID    int64
	ItemID    int64
	ModelID   int64
	Name      string
	SKU       string
	LocalSKU  string
	Price     float64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	InventoryFieldStock    = "stock"
	InventoryFieldReserved = "reserved_stock"
)

// InventoryLogRow is append-only stock history.
type InventoryLogRow struct {
	ID        string
	ShopID    int64
	ItemID    int64
	ModelID   int64
	Field     string
	Before    int
	After     int
	Source    string
	CreatedAt time.Time
}

type ReturnRow struct {
	ID           string
	ShopID       int64
	ReturnSN     string
	OrderSN      string
	Status       string
	Reason       string
	RefundAmount float64
	UpdateTime   time.Time
	SyncedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
