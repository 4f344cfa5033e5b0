package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-marketsync/core"
)

// JobRunner is the subset of sync jobs a Consumer executes.
type JobRunner interface {
	SyncOrders(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncProducts(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncReturns(ctx context.Context, shopID int64) (core.JobSummary, error)
	SyncAll(ctx context.Context, kind core.SyncKind) (core.JobSummary, error)
	RefreshTokens(ctx context.Context) (core.JobSummary, error)
	ProcessQueue(ctx context.Context) (core.JobSummary, error)
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Minute,
		MaxDelay:        10 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Delay grows linearly with the attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.BaseDelay
}

type attemptCounter interface {
	Attempt() int
}

// Consumer drains a dequeuer and runs each message against a JobRunner.
// Skipped runs ack, retryable failures requeue with a bounded delay and the
// rest are dead lettered.
type Consumer struct {
	dequeuer queue.Dequeuer
	runner   JobRunner
	policy   RetryPolicy
	hooks    []worker.Hook
	now      func() time.Time
}

type ConsumerOption func(*Consumer)

func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = policy
	}
}

func WithHooks(hooks ...worker.Hook) ConsumerOption {
	return func(c *Consumer) {
		for _, hook := range hooks {
			if hook != nil {
				c.hooks = append(c.hooks, hook)
			}
		}
	}
}

func WithClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}

func NewConsumer(dequeuer queue.Dequeuer, runner JobRunner, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer: dequeuer,
		runner:   runner,
		policy:   DefaultRetryPolicy(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// ProcessNext blocks for one delivery and handles it.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.runner == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return c.handle(ctx, delivery)
}

func (c *Consumer) handle(ctx context.Context, delivery queue.Delivery) error {
	msg := delivery.Message()
	attempt := 1
	if counter, ok := delivery.(attemptCounter); ok {
		attempt = counter.Attempt()
	}
	startedAt := c.now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	c.emit(func(h worker.Hook) { h.OnStart(ctx, event) })

	_, runErr := c.Execute(ctx, msg)
	event.Duration = c.now().Sub(startedAt)
	if runErr == nil || core.HasTextCode(runErr, core.ErrorJobAlreadyRunning) {
		c.emit(func(h worker.Hook) { h.OnSuccess(ctx, event) })
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	opts := queue.NackOptions{Reason: runErr.Error()}
	if core.IsRetryable(runErr) {
		opts.Requeue = true
		opts.Delay = c.policy.Delay(attempt)
	} else {
		opts.DeadLetter = true
	}
	opts = c.policy.NormalizeAttempt(opts, attempt)
	if opts.Requeue {
		event.Delay = opts.Delay
		c.emit(func(h worker.Hook) { h.OnRetry(ctx, event) })
	} else {
		c.emit(func(h worker.Hook) { h.OnFailure(ctx, event) })
	}
	return delivery.Nack(ctx, opts)
}

// Execute dispatches a message to the matching job.
func (c *Consumer) Execute(ctx context.Context, msg *job.ExecutionMessage) (core.JobSummary, error) {
	if msg == nil {
		return core.JobSummary{}, errors.New("gojob: execution message is required")
	}
	shopID, err := ShopIDFromMessage(msg)
	if err != nil {
		return core.JobSummary{}, core.WrapError(err, core.ErrorBadInput, "gojob: invalid message parameters", map[string]any{
			"job": msg.JobID,
		})
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDSyncOrders:
		return c.sync(ctx, core.SyncKindOrders, shopID)
	case JobIDSyncProducts:
		return c.sync(ctx, core.SyncKindProducts, shopID)
	case JobIDSyncReturns:
		return c.sync(ctx, core.SyncKindReturns, shopID)
	case JobIDRefreshTokens:
		return c.runner.RefreshTokens(ctx)
	case JobIDProcessQueue:
		return c.runner.ProcessQueue(ctx)
	default:
		return core.JobSummary{}, core.NewError(core.ErrorBadInput, "gojob: unknown job id", map[string]any{
			"job": msg.JobID,
		})
	}
}

func (c *Consumer) sync(ctx context.Context, kind core.SyncKind, shopID int64) (core.JobSummary, error) {
	if shopID <= 0 {
		return c.runner.SyncAll(ctx, kind)
	}
	switch kind {
	case core.SyncKindOrders:
		return c.runner.SyncOrders(ctx, shopID)
	case core.SyncKindProducts:
		return c.runner.SyncProducts(ctx, shopID)
	default:
		return c.runner.SyncReturns(ctx, shopID)
	}
}

func (c *Consumer) emit(fn func(worker.Hook)) {
	for _, hook := range c.hooks {
		fn(hook)
	}
}
