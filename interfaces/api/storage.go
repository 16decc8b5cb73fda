package api

import (
	"context"
	"fmt"

	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/badger"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/cached"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/memory"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/redis"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/sqlite"
)

type closeFunc = func(context.Context) error

func noClose(context.Context) error { return nil }

// openStores opens the rule and asset stores of the configured driver.
func openStores(ctx context.Context, cfg domainconfig.StorageConfig) (rule.Store, rule.AssetStore, closeFunc, error) {
	switch cfg.Driver {
	case "", domainconfig.StorageMemory:
		return memory.NewRuleStore(), memory.NewAssetStore(), noClose, nil

	case domainconfig.StorageSQLite:
		path := cfg.SQLite.Path
		if path == "" {
			path = "ruleup.db"
		}
		db, err := sqlite.Open(sqlite.DefaultConfig(), sqlite.WithPath(path))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return sqlite.NewRuleStore(db), sqlite.NewAssetStore(db), func(context.Context) error { return db.Close() }, nil

	case domainconfig.StoragePostgres:
		pc := postgres.DefaultConfig()
		if cfg.Postgres.DSN != "" {
			pc.DSN = cfg.Postgres.DSN
		}
		if cfg.Postgres.MaxConns > 0 {
			pc.MaxConns = cfg.Postgres.MaxConns
		}
		pool, err := postgres.Connect(ctx, pc)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closer := func(context.Context) error {
			pool.Close()
			return nil
		}
		return postgres.NewRuleStore(pool, pc.Schema), postgres.NewAssetStore(pool, pc.Schema), closer, nil

	case domainconfig.StorageMongoDB:
		mc := mongodb.DefaultConfig()
		if cfg.MongoDB.URI != "" {
			mc.URI = cfg.MongoDB.URI
		}
		if cfg.MongoDB.Database != "" {
			mc.Database = cfg.MongoDB.Database
		}
		client, err := mongodb.NewClient(ctx, mc)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		return mongodb.NewRuleStore(client), mongodb.NewAssetStore(client), client.Close, nil

	case domainconfig.StorageDynamoDB:
		opts := []dynamodb.ConfigOption{}
		if cfg.DynamoDB.Region != "" {
			opts = append(opts, dynamodb.WithRegion(cfg.DynamoDB.Region))
		}
		if cfg.DynamoDB.Endpoint != "" {
			opts = append(opts, dynamodb.WithEndpoint(cfg.DynamoDB.Endpoint))
		}
		if cfg.DynamoDB.RulesTable != "" || cfg.DynamoDB.AssetsTable != "" {
			def := dynamodb.DefaultConfig()
			rules, assets := cfg.DynamoDB.RulesTable, cfg.DynamoDB.AssetsTable
			if rules == "" {
				rules = def.RulesTableName
			}
			if assets == "" {
				assets = def.AssetsTableName
			}
			opts = append(opts, dynamodb.WithTableNames(rules, assets))
		}
		client, err := dynamodb.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		return dynamodb.NewRuleStore(client), dynamodb.NewAssetStore(client), noClose, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: storage driver %q", domainconfig.ErrValidationFailed, cfg.Driver)
	}
}

// wrapCache puts the configured cache in front of the asset store. The
// returned closer is nil when nothing needs closing.
func wrapCache(assets rule.AssetStore, cfg domainconfig.CacheConfig) (rule.AssetStore, closeFunc, error) {
	ttl := cfg.TTL.Duration()

	switch cfg.Driver {
	case "", domainconfig.CacheNone:
		return assets, nil, nil

	case domainconfig.CacheMemory:
		return cached.NewAssetStore(assets, memory.NewCache(), ttl), nil, nil

	case domainconfig.CacheRedis:
		opts := []redis.ConfigOption{}
		if cfg.Redis.Addr != "" {
			opts = append(opts, redis.WithAddress(cfg.Redis.Addr))
		}
		if cfg.Redis.Password != "" {
			opts = append(opts, redis.WithPassword(cfg.Redis.Password))
		}
		if cfg.Redis.DB != 0 {
			opts = append(opts, redis.WithDB(cfg.Redis.DB))
		}
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redis.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		c, err := redis.NewCache(redis.DefaultConfig(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return cached.NewAssetStore(assets, c, ttl), func(context.Context) error { return c.Close() }, nil

	case domainconfig.CacheBadger:
		opt := badger.WithInMemory()
		if cfg.Badger.Dir != "" {
			opt = badger.WithDir(cfg.Badger.Dir)
		}
		c, err := badger.NewCache(badger.DefaultConfig(), opt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger: %w", err)
		}
		return cached.NewAssetStore(assets, c, ttl), func(context.Context) error { return c.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: cache driver %q", domainconfig.ErrValidationFailed, cfg.Driver)
	}
}
