package core

import (
	"fmt"
	"strings"
	"time"
)

type UpstreamConfig struct {
	BaseURL            string `koanf:"base_url" mapstructure:"base_url"`
	PartnerID          int64  `koanf:"partner_id" mapstructure:"partner_id"`
	PartnerKey         string `koanf:"partner_key" mapstructure:"partner_key"`
	RedirectURL        string `koanf:"redirect_url" mapstructure:"redirect_url"`
	WebhookCallbackURL string `koanf:"webhook_callback_url" mapstructure:"webhook_callback_url"`
	TimeoutSeconds     int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type TokenConfig struct {
	SafetyMarginSeconds   int `koanf:"safety_margin_seconds" mapstructure:"safety_margin_seconds"`
	RefreshTimeoutSeconds int `koanf:"refresh_timeout_seconds" mapstructure:"refresh_timeout_seconds"`
	LockTTLSeconds        int `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
	RefreshHorizonSeconds int `koanf:"refresh_horizon_seconds" mapstructure:"refresh_horizon_seconds"`
}

type FetchConfig struct {
	PageCap           int `koanf:"page_cap" mapstructure:"page_cap"`
	PageSize          int `koanf:"page_size" mapstructure:"page_size"`
	DetailBatchSize   int `koanf:"detail_batch_size" mapstructure:"detail_batch_size"`
	DetailConcurrency int `koanf:"detail_concurrency" mapstructure:"detail_concurrency"`
	DefaultWindowDays int `koanf:"default_window_days" mapstructure:"default_window_days"`
}

type QueueConfig struct {
	BatchSize           int `koanf:"batch_size" mapstructure:"batch_size"`
	BackoffUnitSeconds  int `koanf:"backoff_unit_seconds" mapstructure:"backoff_unit_seconds"`
	DefaultMaxRetries   int `koanf:"default_max_retries" mapstructure:"default_max_retries"`
	PollIntervalSeconds int `koanf:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
}

type WebhookConfig struct {
	Path                  string `koanf:"path" mapstructure:"path"`
	HandlerTimeoutSeconds int    `koanf:"handler_timeout_seconds" mapstructure:"handler_timeout_seconds"`
}

// SecurityConfig enables token encryption at rest when TokenKey is set.
type SecurityConfig struct {
	TokenKey   string `koanf:"token_key" mapstructure:"token_key"`
	TokenKeyID string `koanf:"token_key_id" mapstructure:"token_key_id"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type ScheduleConfig struct {
	Orders   string `koanf:"orders" mapstructure:"orders"`
	Products string `koanf:"products" mapstructure:"products"`
	Returns  string `koanf:"returns" mapstructure:"returns"`
	Tokens   string `koanf:"tokens" mapstructure:"tokens"`
	Queue    string `koanf:"queue" mapstructure:"queue"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Upstream    UpstreamConfig `koanf:"upstream" mapstructure:"upstream"`
	Tokens      TokenConfig    `koanf:"tokens" mapstructure:"tokens"`
	Fetch       FetchConfig    `koanf:"fetch" mapstructure:"fetch"`
	Queue       QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Security    SecurityConfig `koanf:"security" mapstructure:"security"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	Schedule    ScheduleConfig `koanf:"schedule" mapstructure:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "marketsync",
		Upstream: UpstreamConfig{
			BaseURL:        "https://partner.shopeemobile.com",
			TimeoutSeconds: 30,
		},
		Tokens: TokenConfig{
			SafetyMarginSeconds:   30 * 60,
			RefreshTimeoutSeconds: 30,
			LockTTLSeconds:        30,
			RefreshHorizonSeconds: 24 * 60 * 60,
		},
		Fetch: FetchConfig{
			PageCap:           20,
			PageSize:          50,
			DetailBatchSize:   50,
			DetailConcurrency: 3,
			DefaultWindowDays: 15,
		},
		Queue: QueueConfig{
			BatchSize:           10,
			BackoffUnitSeconds:  60,
			DefaultMaxRetries:   3,
			PollIntervalSeconds: 30,
		},
		Webhook: WebhookConfig{
			Path:                  "/webhook/shopee",
			HandlerTimeoutSeconds: 10,
		},
		Security: SecurityConfig{
			TokenKeyID: "app-key",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:marketsync.db?cache=shared&_foreign_keys=on",
		},
		Schedule: ScheduleConfig{
			Orders:   "0 */30 * * * *",
			Products: "0 0 * * * *",
			Returns:  "0 15 * * * *",
			Tokens:   "0 0 3 * * *",
			Queue:    "*/30 * * * * *",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("core: upstream.base_url is required")
	}
	if c.Upstream.TimeoutSeconds <= 0 || c.Upstream.TimeoutSeconds > 30 {
		return fmt.Errorf("core: upstream.timeout_seconds must be between 1 and 30")
	}
	if c.Tokens.SafetyMarginSeconds < 0 {
		return fmt.Errorf("core: tokens.safety_margin_seconds is invalid")
	}
	if c.Tokens.RefreshTimeoutSeconds <= 0 || c.Tokens.RefreshTimeoutSeconds > 30 {
		return fmt.Errorf("core: tokens.refresh_timeout_seconds must be between 1 and 30")
	}
	if c.Tokens.LockTTLSeconds <= 0 {
		return fmt.Errorf("core: tokens.lock_ttl_seconds is required")
	}
	if c.Fetch.PageCap <= 0 {
		return fmt.Errorf("core: fetch.page_cap is required")
	}
	if c.Fetch.DetailBatchSize <= 0 || c.Fetch.DetailBatchSize > 50 {
		return fmt.Errorf("core: fetch.detail_batch_size must be between 1 and 50")
	}
	if c.Fetch.DetailConcurrency <= 0 {
		return fmt.Errorf("core: fetch.detail_concurrency is required")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("core: queue.batch_size is required")
	}
	if c.Queue.DefaultMaxRetries <= 0 {
		return fmt.Errorf("core: queue.default_max_retries is required")
	}
	return nil
}

func (c TokenConfig) SafetyMargin() time.Duration {
	return time.Duration(c.SafetyMarginSeconds) * time.Second
}

func (c TokenConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

func (c TokenConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c TokenConfig) RefreshHorizon() time.Duration {
	return time.Duration(c.RefreshHorizonSeconds) * time.Second
}

func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c UpstreamConfig) Credential() Credential {
	return Credential{PartnerID: c.PartnerID, PartnerKey: c.PartnerKey}
}

func (c FetchConfig) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowDays) * 24 * time.Hour
}

func (c QueueConfig) BackoffUnit() time.Duration {
	return time.Duration(c.BackoffUnitSeconds) * time.Second
}

func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c WebhookConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}
