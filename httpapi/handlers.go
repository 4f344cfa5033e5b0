package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	marketsync "github.com/goliatone/go-marketsync"
	"github.com/goliatone/go-marketsync/adapters/gocommand"
	marketcommand "github.com/goliatone/go-marketsync/command"
	"github.com/goliatone/go-marketsync/core"
	marketquery "github.com/goliatone/go-marketsync/query"
	"github.com/goliatone/go-marketsync/queue"
)

type handlers struct {
	facade   *marketsync.Facade
	observer *core.Observer
}

// webhookPing answers the reachability check the marketplace performs when a
// callback URL is registered. A challenge query param is echoed back.
func (h *handlers) webhookPing(c *gin.Context) {
	if challenge := c.Query("challenge"); challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// webhook always answers 200. The outcome of a push lives on its log entry.
func (h *handlers) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.observer.Warn(c.Request.Context(), "webhook body unreadable", map[string]any{"error": err.Error()})
		c.JSON(http.StatusOK, gin.H{"status": string(core.WebhookStatusFailed)})
		return
	}
	ack := h.facade.Service().Receiver.Receive(c.Request.Context(), body, c.GetHeader("Authorization"))
	c.JSON(http.StatusOK, gin.H{
		"log_id": ack.LogID,
		"code":   ack.Code,
		"status": string(ack.Status),
	})
}

func (h *handlers) authorizationURL(c *gin.Context) {
	link, err := h.facade.Service().AuthorizationURL(c.Query("redirect"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": link})
}

func (h *handlers) authorizationCallback(c *gin.Context) {
	shopID, err := parseShopID(c.Query("shop_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	record, _, err := gocommand.ExecuteWithResult[marketcommand.CompleteAuthorizationMessage, core.TokenRecord](
		c.Request.Context(),
		h.facade.Commands().CompleteAuthorization,
		marketcommand.CompleteAuthorizationMessage{Code: c.Query("code"), ShopID: shopID},
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shop_id":    record.ShopID,
		"expires_at": record.ExpiresAt.UTC().Format(time.RFC3339),
		"connected":  true,
	})
}

// syncKind runs one sync kind for a shop. A shop id of "all" or 0 fans the
// kind out over every connected shop.
func (h *handlers) syncKind(c *gin.Context) {
	kind := core.SyncKind(strings.ToLower(strings.TrimSpace(c.Param("kind"))))
	raw := strings.TrimSpace(c.Param("shop_id"))
	ctx := c.Request.Context()
	commands := h.facade.Commands()

	if raw == "all" || raw == "0" {
		summary, _, err := gocommand.ExecuteWithResult[marketcommand.SyncAllMessage, core.JobSummary](
			ctx, commands.SyncAll, marketcommand.SyncAllMessage{Kind: kind},
		)
		h.respondSummary(c, summary, err)
		return
	}

	shopID, err := parseShopID(raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	var summary core.JobSummary
	switch kind {
	case core.SyncKindOrders:
		summary, _, err = gocommand.ExecuteWithResult[marketcommand.SyncOrdersMessage, core.JobSummary](
			ctx, commands.SyncOrders, marketcommand.SyncOrdersMessage{ShopID: shopID},
		)
	case core.SyncKindProducts:
		summary, _, err = gocommand.ExecuteWithResult[marketcommand.SyncProductsMessage, core.JobSummary](
			ctx, commands.SyncProducts, marketcommand.SyncProductsMessage{ShopID: shopID},
		)
	case core.SyncKindReturns:
		summary, _, err = gocommand.ExecuteWithResult[marketcommand.SyncReturnsMessage, core.JobSummary](
			ctx, commands.SyncReturns, marketcommand.SyncReturnsMessage{ShopID: shopID},
		)
	default:
		h.fail(c, core.NewError(core.ErrorBadInput, "httpapi: unknown sync kind "+string(kind), nil))
		return
	}
	h.respondSummary(c, summary, err)
}

func (h *handlers) refreshOrder(c *gin.Context) {
	if core.SyncKind(strings.ToLower(c.Param("kind"))) != core.SyncKindOrders {
		h.fail(c, core.NewError(core.ErrorNotFound, "httpapi: only orders can be refreshed individually", nil))
		return
	}
	shopID, err := parseShopID(c.Param("shop_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	result, _, err := gocommand.ExecuteWithResult[marketcommand.RefreshOrderMessage, core.UpsertResult](
		c.Request.Context(),
		h.facade.Commands().RefreshOrder,
		marketcommand.RefreshOrderMessage{ShopID: shopID, OrderSN: c.Param("order_sn")},
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "action": string(result.Action)})
}

func (h *handlers) refreshTokens(c *gin.Context) {
	summary, _, err := gocommand.ExecuteWithResult[marketcommand.RefreshTokensMessage, core.JobSummary](
		c.Request.Context(), h.facade.Commands().RefreshTokens, marketcommand.RefreshTokensMessage{},
	)
	h.respondSummary(c, summary, err)
}

func (h *handlers) processQueue(c *gin.Context) {
	summary, _, err := gocommand.ExecuteWithResult[marketcommand.ProcessQueueMessage, core.JobSummary](
		c.Request.Context(), h.facade.Commands().ProcessQueue, marketcommand.ProcessQueueMessage{},
	)
	h.respondSummary(c, summary, err)
}

type enqueueRequest struct {
	ShopID     int64          `json:"shop_id" binding:"required"`
	SyncType   string         `json:"sync_type" binding:"required"`
	Payload    map[string]any `json:"payload"`
	Priority   int            `json:"priority"`
	MaxRetries int            `json:"max_retries"`
}

func (h *handlers) enqueue(c *gin.Context) {
	var request enqueueRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, core.WrapError(err, core.ErrorBadInput, "httpapi: invalid enqueue request", nil))
		return
	}
	item, _, err := gocommand.ExecuteWithResult[marketcommand.EnqueueSyncMessage, core.SyncQueueItem](
		c.Request.Context(),
		h.facade.Commands().EnqueueSync,
		marketcommand.EnqueueSyncMessage{Request: queue.EnqueueRequest{
			ShopID:     request.ShopID,
			SyncType:   core.SyncType(request.SyncType),
			Payload:    request.Payload,
			Priority:   request.Priority,
			MaxRetries: request.MaxRetries,
		}},
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, queueItemView(item))
}

func (h *handlers) queueItem(c *gin.Context) {
	item, err := h.facade.Queries().GetQueueItem.Query(c.Request.Context(), marketquery.GetQueueItemMessage{ID: c.Param("id")})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, queueItemView(item))
}

func (h *handlers) syncCursor(c *gin.Context) {
	shopID, err := parseShopID(c.Param("shop_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	cursor, err := h.facade.Queries().LoadSyncCursor.Query(c.Request.Context(), marketquery.LoadSyncCursorMessage{
		ShopID: shopID,
		Kind:   core.SyncKind(c.Param("kind")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shop_id":   cursor.ShopID,
		"kind":      string(cursor.Kind),
		"watermark": formatTime(cursor.Watermark),
		"in_flight": cursor.InFlight,
		"dimension": cursor.Dimension,
		"page":      cursor.Page,
	})
}

func (h *handlers) listShops(c *gin.Context) {
	shops, err := h.facade.Queries().ListShops.Query(c.Request.Context(), marketquery.ListShopsMessage{})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shops": shops})
}

func (h *handlers) webhookLogs(c *gin.Context) {
	msg := marketquery.ListWebhookLogsMessage{}
	if raw := strings.TrimSpace(c.Query("shop_id")); raw != "" {
		shopID, err := parseShopID(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		msg.ShopID = shopID
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(c, core.NewError(core.ErrorBadInput, "httpapi: limit must be a positive integer", nil))
			return
		}
		msg.Limit = limit
	}
	entries, err := h.facade.Queries().ListWebhookLogs.Query(c.Request.Context(), msg)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		row := gin.H{
			"id":          entry.ID,
			"code":        entry.Code,
			"shop_id":     entry.ShopID,
			"verified":    entry.Verified,
			"status":      string(entry.Status),
			"error":       entry.Error,
			"received_at": formatTime(entry.ReceivedAt),
		}
		if entry.CompletedAt != nil {
			row["completed_at"] = formatTime(*entry.CompletedAt)
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// respondSummary reports the counters even when the job failed. A skipped
// run answers 409.
func (h *handlers) respondSummary(c *gin.Context, summary core.JobSummary, err error) {
	body := gin.H{
		"job":       summary.Job,
		"shop_id":   summary.ShopID,
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"total":     summary.Total,
		"skipped":   summary.Skipped,
		"warnings":  summary.Warnings,
	}
	if err != nil {
		mapped := core.MapError(err)
		body["error"] = mapped.Message
		body["code"] = mapped.TextCode
		c.JSON(statusFor(mapped.Code), body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) fail(c *gin.Context, err error) {
	mapped := core.MapError(err)
	status := statusFor(mapped.Code)
	if status >= http.StatusInternalServerError {
		h.observer.Error(c.Request.Context(), "http handler failed", map[string]any{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
	}
	c.JSON(status, gin.H{"error": mapped.Message, "code": mapped.TextCode})
}

func statusFor(code int) int {
	if code < http.StatusBadRequest || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}

func parseShopID(raw string) (int64, error) {
	shopID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || shopID <= 0 {
		return 0, core.NewError(core.ErrorBadInput, "httpapi: shop_id must be a positive integer", map[string]any{"shop_id": raw})
	}
	return shopID, nil
}

func queueItemView(item core.SyncQueueItem) gin.H {
	view := gin.H{
		"id":            item.ID,
		"shop_id":       item.ShopID,
		"sync_type":     string(item.SyncType),
		"status":        string(item.Status),
		"priority":      item.Priority,
		"retry_count":   item.RetryCount,
		"max_retries":   item.MaxRetries,
		"scheduled_at":  formatTime(item.ScheduledAt),
		"error_message": item.ErrorMessage,
	}
	if item.ProcessedAt != nil {
		view["processed_at"] = formatTime(*item.ProcessedAt)
	}
	return view
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
