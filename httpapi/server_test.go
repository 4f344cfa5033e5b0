package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	marketsync "github.com/goliatone/go-marketsync"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/metrics"
	"github.com/goliatone/go-marketsync/shopee"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != shopee.PathTokenGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-55",
			"refresh_token": "refresh-55",
			"expire_in":     14400,
			"error":         "",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := marketsync.DefaultConfig()
	cfg.Upstream.BaseURL = newUpstream(t).URL
	cfg.Upstream.PartnerID = 2001887
	cfg.Upstream.PartnerKey = "partner-secret"
	cfg.Upstream.RedirectURL = "https://app.example/auth/shopee/callback"
	cfg.Upstream.TimeoutSeconds = 5

	service, err := marketsync.NewService(cfg, marketsync.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := marketsync.NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	server, err := New(facade, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func perform(t *testing.T, server *Server, method, path string, body []byte, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	decoded := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, decoded
}

func TestNew_RequiresFacade(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected facade to be required")
	}
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	server := newTestServer(t)
	path := core.DefaultConfig().Webhook.Path

	rec, ping := perform(t, server, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK || ping["status"] != "ok" {
		t.Fatalf("expected ping to answer 200 with liveness payload, got %d %+v", rec.Code, ping)
	}
	rec, ping = perform(t, server, http.MethodGet, path+"?challenge=verify-123", nil, nil)
	if rec.Code != http.StatusOK || ping["challenge"] != "verify-123" {
		t.Fatalf("expected challenge to be echoed, got %d %+v", rec.Code, ping)
	}

	body := []byte(`{"code":3,"shop_id":55,"timestamp":1772359200,"data":{"ordersn":"A1","status":"SHIPPED"}}`)
	rec, ack := perform(t, server, http.MethodPost, path, body, map[string]string{"Authorization": "not-a-signature"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected unverified push to answer 200, got %d", rec.Code)
	}
	if ack["status"] != string(core.WebhookStatusUnverified) || ack["log_id"] == "" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	rec, ack = perform(t, server, http.MethodPost, path, []byte("not json"), nil)
	if rec.Code != http.StatusOK || ack["status"] != string(core.WebhookStatusFailed) {
		t.Fatalf("expected malformed push to be acknowledged as failed, got %d %+v", rec.Code, ack)
	}

	rec, logs := perform(t, server, http.MethodGet, "/webhooks/logs?shop_id=55&limit=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list logs: %d", rec.Code)
	}
	rows, _ := logs["logs"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected one log entry for shop 55, got %+v", logs)
	}
}

func TestAuthorizationFlow_ConnectsShopWithoutExposingTokens(t *testing.T) {
	server := newTestServer(t)

	rec, body := perform(t, server, http.MethodGet, "/auth/shopee/url", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("auth url: %d %+v", rec.Code, body)
	}
	link, _ := body["auth_url"].(string)
	if !strings.Contains(link, shopee.PathAuthPartner) {
		t.Fatalf("unexpected auth url %q", link)
	}

	rec, body = perform(t, server, http.MethodGet, "/auth/shopee/callback?code=code-1&shop_id=55", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback: %d %+v", rec.Code, body)
	}
	if body["expires_at"] != fixedNow.Add(4*time.Hour).Format(time.RFC3339) {
		t.Fatalf("unexpected callback body %+v", body)
	}
	if strings.Contains(rec.Body.String(), "access-55") {
		t.Fatalf("callback must not expose tokens: %s", rec.Body.String())
	}

	rec, _ = perform(t, server, http.MethodGet, "/shops", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"shop_id":55`) {
		t.Fatalf("unexpected shops response %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "refresh-55") {
		t.Fatalf("shop listing must not expose tokens")
	}

	rec, body = perform(t, server, http.MethodGet, "/auth/shopee/callback?code=code-1&shop_id=abc", nil, nil)
	if rec.Code != http.StatusBadRequest || body["code"] != core.ErrorBadInput {
		t.Fatalf("expected bad shop id to be rejected, got %d %+v", rec.Code, body)
	}
}

func TestSync_MapsErrorsToStatus(t *testing.T) {
	server := newTestServer(t)

	rec, body := perform(t, server, http.MethodPost, "/sync/55/orders", nil, nil)
	if rec.Code != http.StatusNotFound || body["code"] != core.ErrorNoCredentials {
		t.Fatalf("expected NO_CREDENTIALS for an unconnected shop, got %d %+v", rec.Code, body)
	}

	rec, body = perform(t, server, http.MethodPost, "/sync/55/invoices", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown kind to be rejected, got %d %+v", rec.Code, body)
	}

	rec, body = perform(t, server, http.MethodPost, "/sync/all/products", nil, nil)
	if rec.Code != http.StatusOK || body["processed"] != float64(0) {
		t.Fatalf("expected empty fan-out to succeed, got %d %+v", rec.Code, body)
	}

	rec, _ = perform(t, server, http.MethodPost, "/sync/55/products/A1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected per-item refresh to be orders only, got %d", rec.Code)
	}
}

func TestQueue_EnqueueInspectAndProcess(t *testing.T) {
	server := newTestServer(t)

	payload := []byte(`{"shop_id":55,"sync_type":"stock_update","payload":{"item_id":9001,"model_id":0,"stock":7}}`)
	rec, item := perform(t, server, http.MethodPost, "/queue", payload, map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %+v", rec.Code, item)
	}
	id, _ := item["id"].(string)
	if id == "" || item["status"] != string(core.QueueStatusPending) {
		t.Fatalf("unexpected enqueued item %+v", item)
	}

	rec, got := perform(t, server, http.MethodGet, "/queue/"+id, nil, nil)
	if rec.Code != http.StatusOK || got["sync_type"] != string(core.SyncTypeStockUpdate) {
		t.Fatalf("get item: %d %+v", rec.Code, got)
	}

	rec, _ = perform(t, server, http.MethodGet, "/queue/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing item to answer 404, got %d", rec.Code)
	}

	rec, _ = perform(t, server, http.MethodPost, "/queue", []byte(`{"sync_type":"stock_update"}`), map[string]string{"Content-Type": "application/json"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing shop id to be rejected, got %d", rec.Code)
	}

	rec, summary := perform(t, server, http.MethodPost, "/queue/process", nil, nil)
	if rec.Code >= http.StatusInternalServerError {
		t.Fatalf("process queue: %d %+v", rec.Code, summary)
	}
	if summary["job"] == "" {
		t.Fatalf("expected a job summary, got %+v", summary)
	}
}

func TestCursorAndMetricsRoutes(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder(nil)
	recorder.IncCounter(context.Background(), "marketsync.webhook.total", 1, map[string]string{"status": "success"})
	server := newTestServer(t, WithMetricsHandler(recorder.Handler()))

	rec, body := perform(t, server, http.MethodGet, "/sync/55/cursor/orders", nil, nil)
	if rec.Code != http.StatusOK || body["watermark"] != "" || body["kind"] != "orders" {
		t.Fatalf("unexpected cursor %d %+v", rec.Code, body)
	}

	rec, _ = perform(t, server, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "marketsync_webhook_total") {
		t.Fatalf("expected prometheus exposition, got %d %s", rec.Code, rec.Body.String())
	}
}
