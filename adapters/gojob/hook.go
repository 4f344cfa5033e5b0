package gojob

import (
	"context"

	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-marketsync/core"
)

// ObserverHook reports worker events through a core.Observer.
type ObserverHook struct {
	Observer *core.Observer
}

func NewObserverHook(observer *core.Observer) *ObserverHook {
	return &ObserverHook{Observer: observer}
}

func (h *ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Debug(ctx, "job started", eventFields(event))
}

func (h *ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Observe(ctx, event.StartedAt, "job_run", nil, eventFields(event))
}

func (h *ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Observe(ctx, event.StartedAt, "job_run", event.Err, eventFields(event))
}

func (h *ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	fields := eventFields(event)
	fields["delay_ms"] = event.Delay.Milliseconds()
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	h.Observer.Warn(ctx, "job scheduled for retry", fields)
	h.Observer.Count(ctx, "job_run.retry", 1, map[string]string{"job": stringField(fields, "job")})
}

func eventFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{"attempt": event.Attempt}
	if message != nil {
		fields["job"] = message.JobID
		if shopID, err := ShopIDFromMessage(message); err == nil && shopID > 0 {
			fields["shop_id"] = shopID
		}
	}
	return fields
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

var _ worker.Hook = (*ObserverHook)(nil)
