package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/queue"
)

// JobRunner is the set of job entry points the commands trigger.
type JobRunner interface {
	SyncOrders(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncProducts(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncReturns(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncAll(ctx context.Context, kind core.SyncKind) (core.JobSummary, error)
	RefreshOrder(ctx context.Context, shopID int64, orderSN string) (core.UpsertResult, error)
	RefreshTokens(ctx context.Context) (core.JobSummary, error)
	ProcessQueue(ctx context.Context) (core.JobSummary, error)
}

type Authorizer interface {
	CompleteAuthorization(ctx context.Context, code string, shopID int64) (core.TokenRecord, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (core.SyncQueueItem, error)
}

type SyncOrdersCommand struct {
	jobs JobRunner
}

func NewSyncOrdersCommand(jobs JobRunner) *SyncOrdersCommand {
	return &SyncOrdersCommand{jobs: jobs}
}

func (c *SyncOrdersCommand) Execute(ctx context.Context, msg SyncOrdersMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: order sync runner is required")
	}
	return runJob(ctx, func(ctx context.Context) (core.JobSummary, error) {
		return c.jobs.SyncOrders(ctx, msg.ShopID)
	})
}

type SyncProductsCommand struct {
	jobs JobRunner
}

func NewSyncProductsCommand(jobs JobRunner) *SyncProductsCommand {
	return &SyncProductsCommand{jobs: jobs}
}

func (c *SyncProductsCommand) Execute(ctx context.Context, msg SyncProductsMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: product sync runner is required")
	}
	return runJob(ctx, func(ctx context.Context) (core.JobSummary, error) {
		return c.jobs.SyncProducts(ctx, msg.ShopID)
	})
}

type SyncReturnsCommand struct {
	jobs JobRunner
}

func NewSyncReturnsCommand(jobs JobRunner) *SyncReturnsCommand {
	return &SyncReturnsCommand{jobs: jobs}
}

func (c *SyncReturnsCommand) Execute(ctx context.Context, msg SyncReturnsMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: return sync runner is required")
	}
	return runJob(ctx, func(ctx context.Context) (core.JobSummary, error) {
		return c.jobs.SyncReturns(ctx, msg.ShopID)
	})
}

type SyncAllCommand struct {
	jobs JobRunner
}

func NewSyncAllCommand(jobs JobRunner) *SyncAllCommand {
	return &SyncAllCommand{jobs: jobs}
}

func (c *SyncAllCommand) Execute(ctx context.Context, msg SyncAllMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: sync runner is required")
	}
	kind := core.SyncKind(strings.TrimSpace(string(msg.Kind)))
	return runJob(ctx, func(ctx context.Context) (core.JobSummary, error) {
		return c.jobs.SyncAll(ctx, kind)
	})
}

type RefreshOrderCommand struct {
	jobs JobRunner
}

func NewRefreshOrderCommand(jobs JobRunner) *RefreshOrderCommand {
	return &RefreshOrderCommand{jobs: jobs}
}

func (c *RefreshOrderCommand) Execute(ctx context.Context, msg RefreshOrderMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: order refresh runner is required")
	}
	out, err := c.jobs.RefreshOrder(ctx, msg.ShopID, strings.TrimSpace(msg.OrderSN))
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshTokensCommand struct {
	jobs JobRunner
}

func NewRefreshTokensCommand(jobs JobRunner) *RefreshTokensCommand {
	return &RefreshTokensCommand{jobs: jobs}
}

func (c *RefreshTokensCommand) Execute(ctx context.Context, _ RefreshTokensMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: token refresh runner is required")
	}
	return runJob(ctx, c.jobs.RefreshTokens)
}

type ProcessQueueCommand struct {
	jobs JobRunner
}

func NewProcessQueueCommand(jobs JobRunner) *ProcessQueueCommand {
	return &ProcessQueueCommand{jobs: jobs}
}

func (c *ProcessQueueCommand) Execute(ctx context.Context, _ ProcessQueueMessage) error {
	if c == nil || c.jobs == nil {
		return commandDependencyError("command: queue runner is required")
	}
	return runJob(ctx, c.jobs.ProcessQueue)
}

type EnqueueSyncCommand struct {
	queue Enqueuer
}

func NewEnqueueSyncCommand(queue Enqueuer) *EnqueueSyncCommand {
	return &EnqueueSyncCommand{queue: queue}
}

func (c *EnqueueSyncCommand) Execute(ctx context.Context, msg EnqueueSyncMessage) error {
	if c == nil || c.queue == nil {
		return commandDependencyError("command: queue is required")
	}
	out, err := c.queue.Enqueue(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	authorizer Authorizer
}

func NewCompleteAuthorizationCommand(authorizer Authorizer) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{authorizer: authorizer}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.authorizer == nil {
		return commandDependencyError("command: authorizer is required")
	}
	out, err := c.authorizer.CompleteAuthorization(ctx, strings.TrimSpace(msg.Code), msg.ShopID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// runJob stores the summary even when the job failed or was skipped so the
// caller can still report the counters.
func runJob(ctx context.Context, run func(ctx context.Context) (core.JobSummary, error)) error {
	summary, err := run(ctx)
	storeResult(ctx, summary)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
