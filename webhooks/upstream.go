package webhooks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/shopee"
)

type TokenSource interface {
	EnsureValid(ctx context.Context, shopID int64) (core.TokenRecord, error)
}

// ClientUpstream loads single entities through the marketplace client.
type ClientUpstream struct {
	Client *shopee.Client
	Tokens TokenSource
}

func (u ClientUpstream) FetchOrder(ctx context.Context, shopID int64, orderSN string) (core.ExternalOrder, error) {
	token, err := u.token(ctx, shopID)
	if err != nil {
		return core.ExternalOrder{}, err
	}
	return u.Client.GetOrder(ctx, shopee.SessionFrom(token), orderSN)
}

func (u ClientUpstream) FetchProduct(ctx context.Context, shopID int64, itemID int64) (core.ExternalProduct, error) {
	token, err := u.token(ctx, shopID)
	if err != nil {
		return core.ExternalProduct{}, err
	}
	products, err := shopee.ProductSource{Client: u.Client}.Details(ctx, token, []string{strconv.FormatInt(itemID, 10)})
	if err != nil {
		return core.ExternalProduct{}, err
	}
	if len(products) == 0 {
		return core.ExternalProduct{}, core.NewError(core.ErrorNotFound, fmt.Sprintf("webhooks: item %d not returned upstream", itemID), map[string]any{
			"shop_id": shopID,
		})
	}
	return products[0], nil
}

func (u ClientUpstream) token(ctx context.Context, shopID int64) (core.TokenRecord, error) {
	if u.Client == nil || u.Tokens == nil {
		return core.TokenRecord{}, fmt.Errorf("webhooks: upstream is not configured")
	}
	return u.Tokens.EnsureValid(ctx, shopID)
}

var _ Upstream = ClientUpstream{}
