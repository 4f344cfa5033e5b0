package adapters_test

import (
	"context"
	"sync"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketsync/adapters/gocommand"
	"github.com/goliatone/go-marketsync/adapters/gojob"
	"github.com/goliatone/go-marketsync/adapters/gologger"
	marketcommand "github.com/goliatone/go-marketsync/command"
	"github.com/goliatone/go-marketsync/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("marketsync", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	local := gojob.NewLocalQueue(4)
	msg, err := gojob.NewSyncMessage(core.SyncKindOrders, 55)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if err := local.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runner := &compatRunner{}
	consumer := gojob.NewConsumer(local, runner, gojob.WithHooks(gojob.NewObserverHook(core.NewObserver(logger, nil))))
	if err := consumer.ProcessNext(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if runner.orders != 1 {
		t.Fatalf("expected order sync to run once, got %d", runner.orders)
	}
	if logger.infos == 0 {
		t.Fatalf("expected job outcome to be logged through the glog bridge")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs := &gocommand.Subscriptions{}
	defer subs.Unsubscribe()
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := gocommand.RegisterAndSubscribe(commandAdapter, subs, marketcommand.NewSyncProductsCommand(runner)); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(marketcommand.TypeSyncProducts); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_CommandDispatchReachesJobs(t *testing.T) {
	runner := &compatRunner{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs := &gocommand.Subscriptions{}
	defer subs.Unsubscribe()

	if err := gocommand.RegisterAndSubscribe(adapter, subs, marketcommand.NewSyncOrdersCommand(runner)); err != nil {
		t.Fatalf("register orders: %v", err)
	}
	if err := gocommand.RegisterAndSubscribe(adapter, subs, marketcommand.NewRefreshTokensCommand(runner)); err != nil {
		t.Fatalf("register tokens: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ctx := context.Background()
	if err := gocommand.Dispatch(ctx, marketcommand.SyncOrdersMessage{ShopID: 55}); err != nil {
		t.Fatalf("dispatch orders: %v", err)
	}
	if err := gocommand.Dispatch(ctx, marketcommand.RefreshTokensMessage{}); err != nil {
		t.Fatalf("dispatch tokens: %v", err)
	}
	if runner.orders != 1 || runner.tokens != 1 {
		t.Fatalf("expected dispatched jobs to run, got orders=%d tokens=%d", runner.orders, runner.tokens)
	}

	summary, ok, err := gocommand.ExecuteWithResult[marketcommand.SyncOrdersMessage, core.JobSummary](
		ctx,
		marketcommand.NewSyncOrdersCommand(runner),
		marketcommand.SyncOrdersMessage{ShopID: 55},
	)
	if err != nil || !ok {
		t.Fatalf("execute with result: ok=%v err=%v", ok, err)
	}
	if summary.ShopID != 55 || summary.Processed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

type compatRunner struct {
	mu       sync.Mutex
	orders   int
	products int
	tokens   int
}

func (r *compatRunner) SyncOrders(_ context.Context, shopID int64) (core.JobSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders++
	return core.JobSummary{Job: "sync_orders", ShopID: shopID, Processed: 2, Total: 2}, nil
}

func (r *compatRunner) SyncProducts(_ context.Context, shopID int64) (core.JobSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products++
	return core.JobSummary{Job: "sync_products", ShopID: shopID}, nil
}

func (r *compatRunner) SyncReturns(_ context.Context, shopID int64) (core.JobSummary, error) {
	return core.JobSummary{Job: "sync_returns", ShopID: shopID}, nil
}

func (r *compatRunner) SyncAll(_ context.Context, kind core.SyncKind) (core.JobSummary, error) {
	return core.JobSummary{Job: "sync_" + string(kind)}, nil
}

func (r *compatRunner) RefreshOrder(_ context.Context, _ int64, _ string) (core.UpsertResult, error) {
	return core.UpsertResult{}, nil
}

func (r *compatRunner) RefreshTokens(context.Context) (core.JobSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens++
	return core.JobSummary{Job: "refresh_tokens"}, nil
}

func (r *compatRunner) ProcessQueue(context.Context) (core.JobSummary, error) {
	return core.JobSummary{Job: "process_queue"}, nil
}

type compatProvider struct {
	logger *compatLogger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	return p.logger
}

type compatLogger struct {
	mu    sync.Mutex
	infos int
}

func (l *compatLogger) Trace(string, ...any) {}
func (l *compatLogger) Debug(string, ...any) {}
func (l *compatLogger) Warn(string, ...any)  {}
func (l *compatLogger) Error(string, ...any) {}
func (l *compatLogger) Fatal(string, ...any) {}

func (l *compatLogger) Info(string, ...any) {
	l.mu.Lock()
	l.infos++
	l.mu.Unlock()
}

func (l *compatLogger) WithContext(context.Context) glog.Logger {
	return l
}
