package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	marketsync "github.com/goliatone/go-marketsync"
	"github.com/goliatone/go-marketsync/core"
	marketmigrations "github.com/goliatone/go-marketsync/migrations"
	"github.com/goliatone/go-marketsync/security"
	sqlstore "github.com/goliatone/go-marketsync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const tokenCacheTTL = time.Minute

type persistenceConfig struct {
	core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-marketsync"
}

type database struct {
	client *persistence.Client
	stores marketsync.Stores
	locker core.ShopLocker
}

func (d *database) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// openDatabase connects, applies the embedded migrations for the configured
// dialect and builds the cached SQL stores. Tokens are sealed at rest when a
// token key is configured. Postgres also gets cross-process advisory locks
// for token refreshes.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig, sec core.SecurityConfig) (*database, error) {
	migrationName, driver, err := marketmigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	var dialect schema.Dialect = sqlitedialect.New()
	if migrationName == marketmigrations.DialectPostgres {
		dialect = pgdialect.New()
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("marketsync: open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("marketsync: persistence client: %w", err)
	}
	db := &database{client: client}

	_, err = marketmigrations.Register(ctx, func(_ context.Context, name string, _ string, fsys fs.FS) error {
		if name != migrationName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, marketmigrations.WithValidationTargets(migrationName))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("marketsync: migrate: %w", err)
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = tokenCacheTTL
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("marketsync: cache service: %w", err)
	}
	var tokenBase core.TokenStore = factory.TokenStore()
	if strings.TrimSpace(sec.TokenKey) != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(sec.TokenKey, security.WithKeyID(sec.TokenKeyID))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if tokenBase, err = security.NewSealedTokenStore(tokenBase, secrets); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	tokens, err := sqlstore.NewCachedTokenStore(tokenBase, cacheService)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rateLimit, err := sqlstore.NewCachedRateLimitStateStore(factory.RateLimitStateStore(), cacheService)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	db.stores = marketsync.Stores{
		Tokens:     tokens,
		Entities:   factory.EntityStore(),
		Queue:      factory.QueueStore(),
		WebhookLog: factory.WebhookLogStore(),
		Cursors:    factory.SyncCursorStore(),
		RateLimit:  rateLimit,
	}

	if driver == "postgres" {
		locker, err := sqlstore.NewAdvisoryShopLocker(factory.DB())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		db.locker = locker
	}
	return db, nil
}
