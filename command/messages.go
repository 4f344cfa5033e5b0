package command

import (
	"strings"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
)

const (
	TypeSyncOrders            = "marketsync.command.sync.orders"
	TypeSyncProducts          = "marketsync.command.sync.products"
	TypeSyncReturns           = "marketsync.command.sync.returns"
	TypeSyncAll               = "marketsync.command.sync.all"
	TypeRefreshOrder          = "marketsync.command.sync.order"
	TypeRefreshTokens         = "marketsync.command.tokens.refresh"
	TypeProcessQueue          = "marketsync.command.queue.process"
	TypeEnqueueSync           = "marketsync.command.queue.enqueue"
	TypeCompleteAuthorization = "marketsync.command.auth.complete"
)

type SyncOrdersMessage struct {
	ShopID int64
}

func (SyncOrdersMessage) Type() string { return TypeSyncOrders }

func (m SyncOrdersMessage) Validate() error {
	return validateShopID(m.ShopID)
}

type SyncProductsMessage struct {
	ShopID int64
}

func (SyncProductsMessage) Type() string { return TypeSyncProducts }

func (m SyncProductsMessage) Validate() error {
	return validateShopID(m.ShopID)
}

type SyncReturnsMessage struct {
	ShopID int64
}

func (SyncReturnsMessage) Type() string { return TypeSyncReturns }

func (m SyncReturnsMessage) Validate() error {
	return validateShopID(m.ShopID)
}

// SyncAllMessage fans a sync kind out over every connected shop.
type SyncAllMessage struct {
	Kind core.SyncKind
}

func (SyncAllMessage) Type() string { return TypeSyncAll }

func (m SyncAllMessage) Validate() error {
	switch core.SyncKind(strings.TrimSpace(string(m.Kind))) {
	case core.SyncKindOrders, core.SyncKindProducts, core.SyncKindReturns:
		return nil
	case "":
		return commandValidationError("kind", "sync kind is required")
	default:
		return commandValidationError("kind", "unknown sync kind "+string(m.Kind))
	}
}

// RefreshOrderMessage re-pulls a single order by order_sn.
type RefreshOrderMessage struct {
	ShopID  int64
	OrderSN string
}

func (RefreshOrderMessage) Type() string { return TypeRefreshOrder }

func (m RefreshOrderMessage) Validate() error {
	if err := validateShopID(m.ShopID); err != nil {
		return err
	}
	if strings.TrimSpace(m.OrderSN) == "" {
		return commandValidationError("order_sn", "order_sn is required")
	}
	return nil
}

type RefreshTokensMessage struct{}

func (RefreshTokensMessage) Type() string { return TypeRefreshTokens }

type ProcessQueueMessage struct{}

func (ProcessQueueMessage) Type() string { return TypeProcessQueue }

type EnqueueSyncMessage struct {
	Request queue.EnqueueRequest
}

func (EnqueueSyncMessage) Type() string { return TypeEnqueueSync }

func (m EnqueueSyncMessage) Validate() error {
	if err := validateShopID(m.Request.ShopID); err != nil {
		return err
	}
	switch m.Request.SyncType {
	case core.SyncTypeStockUpdate, core.SyncTypePriceUpdate:
	case "":
		return commandValidationError("sync_type", "sync type is required")
	default:
		return commandValidationError("sync_type", "unknown sync type "+string(m.Request.SyncType))
	}
	if len(m.Request.Payload) == 0 {
		return commandValidationError("payload", "payload is required")
	}
	if m.Request.MaxRetries < 0 {
		return commandValidationError("max_retries", "max_retries must be >= 0")
	}
	return nil
}

// CompleteAuthorizationMessage carries the connect flow callback.
type CompleteAuthorizationMessage struct {
	Code   string
	ShopID int64
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return validateShopID(m.ShopID)
}

func validateShopID(shopID int64) error {
	if shopID <= 0 {
		return commandValidationError("shop_id", "shop id is required")
	}
	return nil
}
