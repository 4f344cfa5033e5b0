package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	marketsync "github.com/goliatone/go-marketsync"
	"github.com/goliatone/go-marketsync/adapters/gocommand"
	"github.com/goliatone/go-marketsync/adapters/gojob"
	"github.com/goliatone/go-marketsync/adapters/gologger"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/httpapi"
	"github.com/goliatone/go-marketsync/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 20 * time.Second

func main() {
	_ = godotenv.Load()

	logs := gologger.NewConsoleProvider(os.Stderr, os.Getenv("MARKETSYNC_LOG_LEVEL"), os.Getenv("MARKETSYNC_LOG_FORMAT"))
	logger := logs.GetLogger("marketsync.main")

	if err := run(logs); err != nil {
		logger.Error("marketsync stopped", "error", err)
		os.Exit(1)
	}
}

func run(logs *gologger.ConsoleProvider) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := core.LoadConfig(ctx, core.NewCfgxConfigProvider(core.NewEnvConfigLoader()), core.GoOptionsResolver{}, core.Config{})
	if err != nil {
		return err
	}
	if os.Getenv("MARKETSYNC_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	db, err := openDatabase(ctx, cfg.Database, cfg.Security)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []marketsync.Option{
		marketsync.WithStores(db.stores),
		marketsync.WithLoggerProvider(logs),
		marketsync.WithMetrics(recorder),
	}
	if db.locker != nil {
		opts = append(opts, marketsync.WithShopLocker(db.locker))
	}
	service, err := marketsync.NewService(cfg, opts...)
	if err != nil {
		return err
	}
	facade, err := marketsync.NewFacade(service)
	if err != nil {
		return err
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", jobqueuecommand.NewRegistry()); err != nil {
		return err
	}
	subs := &gocommand.Subscriptions{}
	defer subs.Unsubscribe()
	if err := facade.Register(adapter, subs); err != nil {
		return err
	}
	if err := adapter.Initialize(); err != nil {
		return err
	}

	jobObserver := core.ResolveObserver("marketsync.jobs", logs, recorder)
	local := gojob.NewLocalQueue(0)
	defer local.Close()
	consumer := gojob.NewConsumer(local, service.Jobs, gojob.WithHooks(gojob.NewObserverHook(jobObserver)))
	scheduler := gojob.NewScheduler(local, jobObserver)
	if err := scheduler.Register(cfg.Schedule); err != nil {
		return err
	}

	server, err := httpapi.New(facade,
		httpapi.WithMetricsHandler(recorder.Handler()),
		httpapi.WithObserver(core.ResolveObserver("marketsync.http", logs, recorder)),
	)
	if err != nil {
		return err
	}

	errs := make(chan error, 3)
	go func() {
		errs <- consumer.Run(ctx)
	}()
	if cfg.Schedule.Queue == "" {
		go func() {
			errs <- service.Worker.Run(ctx, cfg.Queue.PollInterval())
		}()
	}
	go func() {
		errs <- server.Start(cfg.HTTP.Addr)
	}()
	scheduler.Start()
	service.Observer.Info(ctx, "marketsync started", map[string]any{
		"addr":      cfg.HTTP.Addr,
		"driver":    cfg.Database.Driver,
		"schedules": scheduler.Entries(),
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	service.Observer.Info(shutdownCtx, "marketsync stopped", nil)
	return runErr
}
