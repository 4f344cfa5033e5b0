package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// LoadConfig layers defaults < provider values < runtime overrides.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

type layerBuilder struct {
	layer       map[string]any
	includeZero bool
}

func (b layerBuilder) set(section string, key string, value any, zero bool) {
	if zero && !b.includeZero {
		return
	}
	target := b.layer
	if section != "" {
		nested, ok := b.layer[section].(map[string]any)
		if !ok {
			nested = map[string]any{}
			b.layer[section] = nested
		}
		target = nested
	}
	target[key] = value
}

func (b layerBuilder) str(section string, key string, value string) {
	b.set(section, key, value, strings.TrimSpace(value) == "")
}

func (b layerBuilder) num(section string, key string, value int64) {
	b.set(section, key, value, value == 0)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	b := layerBuilder{layer: map[string]any{}, includeZero: includeZero}

	b.str("", "service_name", cfg.ServiceName)

	b.str("upstream", "base_url", cfg.Upstream.BaseURL)
	b.num("upstream", "partner_id", cfg.Upstream.PartnerID)
	b.str("upstream", "partner_key", cfg.Upstream.PartnerKey)
	b.str("upstream", "redirect_url", cfg.Upstream.RedirectURL)
	b.str("upstream", "webhook_callback_url", cfg.Upstream.WebhookCallbackURL)
	b.num("upstream", "timeout_seconds", int64(cfg.Upstream.TimeoutSeconds))

	b.num("tokens", "safety_margin_seconds", int64(cfg.Tokens.SafetyMarginSeconds))
	b.num("tokens", "refresh_timeout_seconds", int64(cfg.Tokens.RefreshTimeoutSeconds))
	b.num("tokens", "lock_ttl_seconds", int64(cfg.Tokens.LockTTLSeconds))
	b.num("tokens", "refresh_horizon_seconds", int64(cfg.Tokens.RefreshHorizonSeconds))

	b.num("fetch", "page_cap", int64(cfg.Fetch.PageCap))
	b.num("fetch", "page_size", int64(cfg.Fetch.PageSize))
	b.num("fetch", "detail_batch_size", int64(cfg.Fetch.DetailBatchSize))
	b.num("fetch", "detail_concurrency", int64(cfg.Fetch.DetailConcurrency))
	b.num("fetch", "default_window_days", int64(cfg.Fetch.DefaultWindowDays))

	b.num("queue", "batch_size", int64(cfg.Queue.BatchSize))
	b.num("queue", "backoff_unit_seconds", int64(cfg.Queue.BackoffUnitSeconds))
	b.num("queue", "default_max_retries", int64(cfg.Queue.DefaultMaxRetries))
	b.num("queue", "poll_interval_seconds", int64(cfg.Queue.PollIntervalSeconds))

	b.str("webhook", "path", cfg.Webhook.Path)
	b.num("webhook", "handler_timeout_seconds", int64(cfg.Webhook.HandlerTimeoutSeconds))

	b.str("security", "token_key", cfg.Security.TokenKey)
	b.str("security", "token_key_id", cfg.Security.TokenKeyID)

	b.str("http", "addr", cfg.HTTP.Addr)

	b.str("database", "driver", cfg.Database.Driver)
	b.str("database", "dsn", cfg.Database.DSN)
	b.set("database", "debug", cfg.Database.Debug, !cfg.Database.Debug)

	b.str("schedule", "orders", cfg.Schedule.Orders)
	b.str("schedule", "products", cfg.Schedule.Products)
	b.str("schedule", "returns", cfg.Schedule.Returns)
	b.str("schedule", "tokens", cfg.Schedule.Tokens)
	b.str("schedule", "queue", cfg.Schedule.Queue)

	return b.layer
}
