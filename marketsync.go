package marketsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goliatone/go-marketsync/core"
	"github.com/goliatone/go-marketsync/fetch"
	"github.com/goliatone/go-marketsync/query"
	"github.com/goliatone/go-marketsync/queue"
	"github.com/goliatone/go-marketsync/ratelimit"
	"github.com/goliatone/go-marketsync/reconcile"
	"github.com/goliatone/go-marketsync/shopee"
	syncjobs "github.com/goliatone/go-marketsync/sync"
	"github.com/goliatone/go-marketsync/webhooks"
)

type Config = core.Config

type TokenRecord = core.TokenRecord
type JobSummary = core.JobSummary
type SyncKind = core.SyncKind

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// WebhookLogStore is the webhook log plus the listing used by the log query.
type WebhookLogStore interface {
	webhooks.LogStore
	query.WebhookLogReader
}

// Stores groups every persistence port the service writes through.
type Stores struct {
	Tokens     core.TokenStore
	Entities   reconcile.Store
	Queue      queue.Store
	WebhookLog WebhookLogStore
	Cursors    core.SyncCursorStore
	RateLimit  ratelimit.StateStore
}

// MemoryStores keeps every store in process memory.
func MemoryStores() Stores {
	return Stores{
		Tokens:     core.NewMemoryTokenStore(),
		Entities:   reconcile.NewMemoryStore(),
		Queue:      queue.NewMemoryStore(),
		WebhookLog: webhooks.NewMemoryLog(),
		Cursors:    syncjobs.NewMemoryCursorStore(),
		RateLimit:  ratelimit.NewMemoryStateStore(),
	}
}

func (s Stores) validate() error {
	missing := []string{}
	if s.Tokens == nil {
		missing = append(missing, "tokens")
	}
	if s.Entities == nil {
		missing = append(missing, "entities")
	}
	if s.Queue == nil {
		missing = append(missing, "queue")
	}
	if s.WebhookLog == nil {
		missing = append(missing, "webhook_log")
	}
	if s.Cursors == nil {
		missing = append(missing, "cursors")
	}
	if s.RateLimit == nil {
		missing = append(missing, "rate_limit")
	}
	if len(missing) > 0 {
		return fmt.Errorf("marketsync: missing stores: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Option func(*options)

type options struct {
	stores         *Stores
	loggerProvider core.LoggerProvider
	logger         core.Logger
	metrics        core.MetricsRecorder
	httpClient     *resty.Client
	locker         core.ShopLocker
	now            func() time.Time
}

func WithStores(stores Stores) Option {
	return func(o *options) {
		o.stores = &stores
	}
}

// WithLoggerProvider takes precedence over WithLogger. Each component gets a
// logger named "marketsync.<component>".
func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func WithHTTPClient(client *resty.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithShopLocker(locker core.ShopLocker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Service is the assembled sync core: the marketplace client, token
// coordinator, reconciler, fetchers, outbound queue, push receiver and the
// job entry points built on them.
type Service struct {
	Config     Config
	Stores     Stores
	Client     *shopee.Client
	Tokens     *core.TokenCoordinator
	Reconciler *reconcile.Reconciler
	Worker     *queue.Worker
	Receiver   *webhooks.Receiver
	Jobs       *syncjobs.Jobs
	Observer   *core.Observer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	stores := MemoryStores()
	if o.stores != nil {
		stores = *o.stores
	}
	if err := stores.validate(); err != nil {
		return nil, err
	}
	now := o.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	observe := func(component string) *core.Observer {
		if o.loggerProvider != nil {
			return core.ResolveObserver("marketsync."+component, o.loggerProvider, o.metrics)
		}
		return core.NewObserver(o.logger, o.metrics)
	}

	clientOpts := []shopee.Option{
		shopee.WithRateLimiter(ratelimit.NewAdaptivePolicy(stores.RateLimit)),
		shopee.WithObserver(observe("shopee")),
		shopee.WithClock(now),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, shopee.WithHTTPClient(o.httpClient))
	}
	client, err := shopee.NewClient(cfg.Upstream, clientOpts...)
	if err != nil {
		return nil, err
	}

	coordinatorOpts := []core.CoordinatorOption{
		core.WithCoordinatorObserver(observe("tokens")),
		core.WithCoordinatorClock(now),
		core.WithTokenConfig(cfg.Tokens),
	}
	if o.locker != nil {
		coordinatorOpts = append(coordinatorOpts, core.WithCoordinatorLocker(o.locker))
	}
	tokens, err := core.NewTokenCoordinator(stores.Tokens, client, coordinatorOpts...)
	if err != nil {
		return nil, err
	}

	reconciler, err := reconcile.New(stores.Entities,
		reconcile.WithObserver(observe("reconcile")),
		reconcile.WithClock(now),
	)
	if err != nil {
		return nil, err
	}

	fetchObserver := observe("fetch")
	orders, err := fetch.New[core.ExternalOrder](
		shopee.OrderSource{Client: client, TimeRangeField: "update_time"},
		tokens,
		fetch.WithKind(string(core.SyncKindOrders)),
		fetch.WithConfig(cfg.Fetch),
		fetch.WithObserver(fetchObserver),
		fetch.WithClock(now),
	)
	if err != nil {
		return nil, err
	}
	products, err := fetch.New[core.ExternalProduct](
		shopee.ProductSource{Client: client, UseWindow: true},
		tokens,
		fetch.WithKind(string(core.SyncKindProducts)),
		fetch.WithConfig(cfg.Fetch),
		fetch.WithObserver(fetchObserver),
		fetch.WithClock(now),
	)
	if err != nil {
		return nil, err
	}
	returns, err := fetch.New[core.ExternalReturn](
		shopee.ReturnSource{Client: client},
		tokens,
		fetch.WithKind(string(core.SyncKindReturns)),
		fetch.WithConfig(cfg.Fetch),
		fetch.WithObserver(fetchObserver),
		fetch.WithClock(now),
	)
	if err != nil {
		return nil, err
	}

	worker := queue.NewWorker(stores.Queue).ApplyConfig(cfg.Queue)
	worker.Observer = observe("queue")
	worker.Now = now
	if err := queue.RegisterPushHandlers(worker, tokens, client); err != nil {
		return nil, err
	}

	upstream := webhooks.ClientUpstream{Client: client, Tokens: tokens}
	receiver := webhooks.NewReceiver(shopee.PushVerifier{
		PartnerKey:  cfg.Upstream.PartnerKey,
		CallbackURL: cfg.Upstream.WebhookCallbackURL,
	}, stores.WebhookLog)
	receiver.Observer = observe("webhooks")
	receiver.Now = now
	if timeout := cfg.Webhook.HandlerTimeout(); timeout > 0 {
		receiver.Timeout = timeout
	}
	if err := webhooks.RegisterDefaultHandlers(receiver, webhooks.Handlers{
		Reconciler: reconciler,
		Upstream:   upstream,
	}); err != nil {
		return nil, err
	}

	jobs := syncjobs.NewJobs(reconciler, tokens)
	jobs.Orders = orders
	jobs.Products = products
	jobs.Returns = returns
	jobs.Queue = worker
	jobs.Loader = upstream
	jobs.Cursors = stores.Cursors
	jobs.Observer = observe("sync")
	jobs.Now = now
	if window := cfg.Fetch.DefaultWindow(); window > 0 && window < jobs.Window {
		jobs.Window = window
	}

	return &Service{
		Config:     cfg,
		Stores:     stores,
		Client:     client,
		Tokens:     tokens,
		Reconciler: reconciler,
		Worker:     worker,
		Receiver:   receiver,
		Jobs:       jobs,
		Observer:   observe("service"),
	}, nil
}

// AuthorizationURL builds the shop consent link for the configured redirect.
func (s *Service) AuthorizationURL(redirectURL string) (string, error) {
	if s == nil || s.Tokens == nil {
		return "", fmt.Errorf("marketsync: service is not configured")
	}
	if strings.TrimSpace(redirectURL) == "" {
		redirectURL = s.Config.Upstream.RedirectURL
	}
	return s.Tokens.AuthorizationURL(redirectURL)
}
