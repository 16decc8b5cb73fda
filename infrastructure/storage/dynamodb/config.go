// Package dynamodb provides DynamoDB-backed rule and asset stores.
package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Config contains DynamoDB connection configuration.
type Config struct {
	// Region is the AWS region.
	Region string

	// Endpoint is the DynamoDB endpoint (useful for local development).
	Endpoint string

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration

	RulesTableName  string
	AssetsTableName string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Region:          "us-east-1",
		QueryTimeout:    30 * time.Second,
		RulesTableName:  "ruleup_rules",
		AssetsTableName: "ruleup_rule_assets",
	}
}

// ConfigOption configures the DynamoDB connection.
type ConfigOption func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) ConfigOption {
	return func(c *Config) {
		c.Region = region
	}
}

// WithEndpoint sets the DynamoDB endpoint (for local development).
func WithEndpoint(endpoint string) ConfigOption {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithQueryTimeout sets the default query timeout.
func WithQueryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}

// WithTableNames sets the rule and asset table names.
func WithTableNames(rules, assets string) ConfigOption {
	return func(c *Config) {
		if rules != "" {
			c.RulesTableName = rules
		}
		if assets != "" {
			c.AssetsTableName = assets
		}
	}
}

// API is the subset of the DynamoDB client the stores use.
type API interface {
	dynamodb.ScanAPIClient
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Client wraps a DynamoDB client with configuration.
type Client struct {
	client *dynamodb.Client
	config Config
}

// NewClient creates a new DynamoDB client.
func NewClient(ctx context.Context, opts ...ConfigOption) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{
		client: dynamodb.NewFromConfig(awsCfg, ddbOpts...),
		config: cfg,
	}, nil
}

// DynamoDB returns the underlying DynamoDB client.
func (c *Client) DynamoDB() *dynamodb.Client {
	return c.client
}

// CreateTables creates the rule and asset tables if they don't exist.
func (c *Client) CreateTables(ctx context.Context) error {
	rules := &dynamodb.CreateTableInput{
		TableName: aws.String(c.config.RulesTableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("rule_id"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("rule_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName:  aws.String(idIndex),
				KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	assets := &dynamodb.CreateTableInput{
		TableName: aws.String(c.config.AssetsTableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("rule_id"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("version"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("rule_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("version"), AttributeType: types.ScalarAttributeTypeN},
		},
		BillingMode: types.BillingModePayPerRequest,
	}

	for _, in := range []*dynamodb.CreateTableInput{rules, assets} {
		if err := c.createTable(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) createTable(ctx context.Context, in *dynamodb.CreateTableInput) error {
	_, err := c.client.CreateTable(ctx, in)
	if err != nil {
		var resourceInUse *types.ResourceInUseException
		if errors.As(err, &resourceInUse) {
			return nil
		}
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: in.TableName}, 2*time.Minute)
}

const idIndex = "id-index"

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(rule.ErrOperationTimeout, err)
	}
	return errors.Join(rule.ErrConnectionFailed, err)
}
