package reconcile

import (
	"context"
	"fmt"

	"github.com/goliatone/go-marketsync/core"
)

// UpsertAll applies upsert to every entity in its own transaction. A failed
// entity is counted and never aborts the batch.
func UpsertAll[T any](ctx context.Context, job string, entities []T, key func(T) string, upsert func(context.Context, T) (core.UpsertResult, error)) core.JobSummary {
	summary := core.JobSummary{Job: job, Total: len(entities)}
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			summary.Failed += summary.Total - summary.Processed - summary.Failed
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("cancelled: %v", err))
			break
		}
		if _, err := upsert(ctx, entity); err != nil {
			summary.Failed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", key(entity), err))
			continue
		}
		summary.Processed++
	}
	return summary
}

func (r *Reconciler) UpsertOrders(ctx context.Context, orders []core.ExternalOrder) core.JobSummary {
	return UpsertAll(ctx, "upsert_orders", orders, func(o core.ExternalOrder) string { return o.OrderSN }, r.UpsertOrder)
}

func (r *Reconciler) UpsertProducts(ctx context.Context, products []core.ExternalProduct) core.JobSummary {
	return UpsertAll(ctx, "upsert_products", products, func(p core.ExternalProduct) string { return fmt.Sprint(p.ItemID) }, r.UpsertProduct)
}

func (r *Reconciler) UpsertReturns(ctx context.Context, returns []core.ExternalReturn) core.JobSummary {
	return UpsertAll(ctx, "upsert_returns", returns, func(ret core.ExternalReturn) string { return ret.ReturnSN }, r.UpsertReturn)
}
