// Package mongodb provides MongoDB-backed rule and asset stores.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Config configures the MongoDB client.
type Config struct {
	URI      string
	Database string

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	MaxPoolSize    uint64
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "ruleup",
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   30 * time.Second,
		MaxPoolSize:    50,
	}
}

// Client wraps a connected mongo.Client and its database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	config Config
}

// NewClient connects to MongoDB and ensures the store indexes exist.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if cfg.Database == "" {
		cfg.Database = DefaultConfig().Database
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}

	c := &Client{client: mc, db: mc.Database(cfg.Database), config: cfg}
	if err := c.ensureIndexes(ctx); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

// Collection returns a collection of the configured database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	_, err := c.Collection(rulesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "rule_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "prebuilt", Value: 1}}},
	})
	if err != nil {
		return wrapError(err)
	}
	_, err = c.Collection(assetsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "rule_id", Value: 1}, {Key: "version", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	return wrapError(err)
}

const (
	rulesCollection  = "rules"
	assetsCollection = "rule_assets"
)

// wrapError wraps MongoDB errors with domain errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(rule.ErrOperationTimeout, err)
	}
	return errors.Join(rule.ErrConnectionFailed, err)
}
