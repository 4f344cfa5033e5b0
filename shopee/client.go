package shopee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/ratelimit"
)

const defaultTimeout = 30 * time.Second

// RateLimiter is consulted before and informed after every upstream call.
type RateLimiter interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.ResponseMeta) error
}

// Session carries the per-shop credentials of a session-scoped call.
type Session struct {
	ShopID      int64
	AccessToken string
}

func SessionFrom(record core.TokenRecord) Session {
	return Session{ShopID: record.ShopID, AccessToken: record.AccessToken}
}

type Client struct {
	http     *resty.Client
	signer   core.Signer
	baseURL  string
	limiter  RateLimiter
	observer *core.Observer
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client *resty.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

func WithRateLimiter(limiter RateLimiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(cfg core.UpstreamConfig, opts ...Option) (*Client, error) {
	cred := cfg.Credential()
	if err := cred.Validate(); err != nil {
		return nil, core.WrapError(err, core.ErrorBadInput, "shopee: partner credential is incomplete", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout()
	if timeout <= 0 || timeout > defaultTimeout {
		timeout = defaultTimeout
	}

	c := &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "marketsync/1.0"),
		signer:   core.NewSigner(cred),
		baseURL:  baseURL,
		observer: core.NewObserver(nil, nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) PartnerID() int64 {
	return c.signer.PartnerID
}

type request struct {
	method  string
	path    string
	session *Session
	query   url.Values
	body    any
	bucket  string
	// whole decodes the full body instead of the response field; the token
	// endpoints answer at the top level.
	whole bool
}

type envelope struct {
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response"`
}

func (c *Client) signedQuery(req request) url.Values {
	query := url.Values{}
	for key, values := range req.query {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	timestamp := c.now().Unix()
	query.Set("partner_id", strconv.FormatInt(c.signer.PartnerID, 10))
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))
	if req.session != nil {
		query.Set("access_token", req.session.AccessToken)
		query.Set("shop_id", strconv.FormatInt(req.session.ShopID, 10))
		query.Set("sign", c.signer.SignSession(req.path, timestamp, req.session.AccessToken, req.session.ShopID))
	} else {
		query.Set("sign", c.signer.SignShopAuth(req.path, timestamp))
	}
	return query
}

// call performs one signed request and decodes the payload into out.
func (c *Client) call(ctx context.Context, req request, out any) (err error) {
	startedAt := time.Now()
	var shopID int64
	if req.session != nil {
		shopID = req.session.ShopID
		if shopID <= 0 || strings.TrimSpace(req.session.AccessToken) == "" {
			return core.NewError(core.ErrorBadInput, "shopee: session shop id and access token are required", nil)
		}
	}
	defer func() {
		c.observer.Observe(ctx, startedAt, "upstream_call", err, map[string]any{
			"shop_id": shopID,
			"kind":    req.bucket,
			"path":    req.path,
		})
	}()

	key := ratelimit.Key{Provider: core.ProviderShopee, ShopID: shopID, Bucket: req.bucket}
	if c.limiter != nil {
		if err := c.limiter.BeforeCall(ctx, key); err != nil {
			return err
		}
	}

	r := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.signedQuery(req))
	if req.body != nil {
		r = r.SetBody(req.body)
	}
	resp, err := r.Execute(req.method, c.baseURL+req.path)
	if err != nil {
		return transportError(err, req.path)
	}

	raw := resp.Body()
	var env envelope
	decodeErr := decodeJSON(raw, &env)

	meta := ratelimit.ResponseMeta{
		StatusCode: resp.StatusCode(),
		Headers:    ratelimit.HeadersFromHTTP(resp.Header()),
		Throttled:  isThrottleCode(strings.ToLower(env.Error)),
		Metadata:   map[string]any{"path": req.path},
	}
	if c.limiter != nil {
		if limitErr := c.limiter.AfterCall(ctx, key, meta); limitErr != nil {
			c.observer.Warn(ctx, "rate limit state update failed", map[string]any{
				"shop_id": shopID,
				"error":   limitErr.Error(),
			})
		}
	}

	if strings.TrimSpace(env.Error) != "" {
		return classify(resp.StatusCode(), env.Error, env.Message, req.path, env.RequestID)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return classify(resp.StatusCode(), "", env.Message, req.path, env.RequestID)
	}
	if decodeErr != nil {
		return core.WrapError(decodeErr, core.ErrorUpstreamRejected, fmt.Sprintf("shopee: %s returned malformed json", req.path), map[string]any{
			"path": req.path,
		})
	}
	if out == nil {
		return nil
	}
	payload := []byte(env.Response)
	if req.whole {
		payload = raw
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := decodeJSON(payload, out); err != nil {
		return core.WrapError(err, core.ErrorUpstreamRejected, fmt.Sprintf("shopee: %s response could not be decoded", req.path), map[string]any{
			"path": req.path,
		})
	}
	return nil
}

func decodeJSON(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("shopee: empty body")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	return decoder.Decode(out)
}
