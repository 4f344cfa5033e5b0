package shopee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-marketsync/core"
)

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpireIn     json.Number `json:"expire_in"`
}

func (r tokenResponse) grant() (core.TokenGrant, error) {
	var coerce core.Coercion
	seconds := coerce.Int64("expire_in", r.ExpireIn)
	grant := core.TokenGrant{
		AccessToken:  strings.TrimSpace(r.AccessToken),
		RefreshToken: strings.TrimSpace(r.RefreshToken),
		ExpiresIn:    time.Duration(seconds) * time.Second,
	}
	if grant.AccessToken == "" || grant.ExpiresIn <= 0 {
		return core.TokenGrant{}, core.NewError(core.ErrorUpstreamRejected, "shopee: token response is missing access_token or expire_in", nil)
	}
	return grant, nil
}

// AuthorizationURL builds the signed shop-auth redirect a seller follows to
// connect a shop.
func (c *Client) AuthorizationURL(redirectURL string) (string, error) {
	redirectURL = strings.TrimSpace(redirectURL)
	if redirectURL == "" {
		return "", core.NewError(core.ErrorBadInput, "shopee: redirect url is required", nil)
	}
	timestamp := c.now().Unix()
	query := url.Values{}
	query.Set("partner_id", strconv.FormatInt(c.signer.PartnerID, 10))
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))
	query.Set("sign", c.signer.SignShopAuth(PathAuthPartner, timestamp))
	query.Set("redirect", redirectURL)
	return c.baseURL + PathAuthPartner + "?" + query.Encode(), nil
}

// ExchangeCode trades the authorization callback code for the first token
// pair of a shop.
func (c *Client) ExchangeCode(ctx context.Context, code string, shopID int64) (core.TokenGrant, error) {
	code = strings.TrimSpace(code)
	if code == "" || shopID <= 0 {
		return core.TokenGrant{}, core.NewError(core.ErrorBadInput, "shopee: code and shop id are required", nil)
	}
	var out tokenResponse
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   PathTokenGet,
		bucket: bucketAuth,
		whole:  true,
		body: map[string]any{
			"code":       code,
			"shop_id":    shopID,
			"partner_id": c.signer.PartnerID,
		},
	}, &out)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return out.grant()
}

func (c *Client) RefreshToken(ctx context.Context, shopID int64, refreshToken string) (core.TokenGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || shopID <= 0 {
		return core.TokenGrant{}, core.NewError(core.ErrorBadInput, "shopee: refresh token and shop id are required", nil)
	}
	var out tokenResponse
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   PathAccessTokenGet,
		bucket: bucketAuth,
		whole:  true,
		body: map[string]any{
			"refresh_token": refreshToken,
			"shop_id":       shopID,
			"partner_id":    c.signer.PartnerID,
		},
	}, &out)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return out.grant()
}

var (
	_ core.TokenExchanger          = (*Client)(nil)
	_ core.AuthorizationURLBuilder = (*Client)(nil)
)
