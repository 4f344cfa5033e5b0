package gojob

import (
	"fmt"
	"strconv"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-marketsync/core"
)

const (
	JobIDSyncOrders    = "marketsync.sync.orders"
	JobIDSyncProducts  = "marketsync.sync.products"
	JobIDSyncReturns   = "marketsync.sync.returns"
	JobIDRefreshTokens = "marketsync.tokens.refresh"
	JobIDProcessQueue  = "marketsync.queue.process"

	ParamShopID = "shop_id"

	// DedupDrop discards a message while another with the same idempotency
	// key is still pending.
	DedupDrop = job.DeduplicationPolicy("drop")
)

// SyncJobID maps a sync kind to its job id.
func SyncJobID(kind core.SyncKind) (string, error) {
	switch kind {
	case core.SyncKindOrders:
		return JobIDSyncOrders, nil
	case core.SyncKindProducts:
		return JobIDSyncProducts, nil
	case core.SyncKindReturns:
		return JobIDSyncReturns, nil
	default:
		return "", fmt.Errorf("gojob: unsupported sync kind %q", kind)
	}
}

// NewSyncMessage builds a sync execution message. A zero shopID targets every
// connected shop.
func NewSyncMessage(kind core.SyncKind, shopID int64) (*job.ExecutionMessage, error) {
	jobID, err := SyncJobID(kind)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	if shopID > 0 {
		params[ParamShopID] = shopID
	}
	return newMessage(jobID, params, idempotencyKey(jobID, shopID)), nil
}

func NewRefreshTokensMessage() *job.ExecutionMessage {
	return newMessage(JobIDRefreshTokens, nil, JobIDRefreshTokens)
}

func NewProcessQueueMessage() *job.ExecutionMessage {
	return newMessage(JobIDProcessQueue, nil, JobIDProcessQueue)
}

// ShopIDFromMessage reads the optional shop id parameter. Values decoded from
// JSON arrive as float64 or string.
func ShopIDFromMessage(msg *job.ExecutionMessage) (int64, error) {
	if msg == nil || msg.Parameters == nil {
		return 0, nil
	}
	raw, ok := msg.Parameters[ParamShopID]
	if !ok || raw == nil {
		return 0, nil
	}
	switch typed := raw.(type) {
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case float64:
		return int64(typed), nil
	case string:
		value, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("gojob: invalid shop id %q", typed)
		}
		return value, nil
	default:
		return 0, fmt.Errorf("gojob: invalid shop id type %T", raw)
	}
}

func newMessage(jobID string, params map[string]any, key string) *job.ExecutionMessage {
	if params == nil {
		params = map[string]any{}
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     params,
		IdempotencyKey: key,
		DedupPolicy:    DedupDrop,
	}
}

func idempotencyKey(jobID string, shopID int64) string {
	if shopID <= 0 {
		return jobID
	}
	return jobID + ":" + strconv.FormatInt(shopID, 10)
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
