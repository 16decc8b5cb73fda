package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// maxBatchWrite is the BatchWriteItem request limit.
const maxBatchWrite = 25

type assetItem struct {
	RuleID  string `dynamodbav:"rule_id"`
	Version int    `dynamodbav:"version"`
	Data    string `dynamodbav:"data"`
}

// AssetStore is a DynamoDB-backed implementation of rule.AssetStore keyed by
// (rule_id, version).
type AssetStore struct {
	client       API
	tableName    string
	queryTimeout time.Duration
}

// NewAssetStore creates a new DynamoDB asset store.
func NewAssetStore(client *Client) *AssetStore {
	return NewAssetStoreWithAPI(client.DynamoDB(), client.config)
}

// NewAssetStoreWithAPI creates an asset store on any DynamoDB API implementation.
func NewAssetStoreWithAPI(api API, cfg Config) *AssetStore {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &AssetStore{client: api, tableName: cfg.AssetsTableName, queryTimeout: cfg.QueryTimeout}
}

// Save writes assets in batches of 25.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	requests := make([]types.WriteRequest, 0, len(assets))
	for _, a := range assets {
		if a.RuleID == "" || a.Version <= 0 {
			return rule.ErrInvalidAsset
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", a.Key(), err)
		}
		av, err := attributevalue.MarshalMap(assetItem{RuleID: a.RuleID, Version: a.Version, Data: string(data)})
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	return s.batchWrite(ctx, requests)
}

func (s *AssetStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	for len(requests) > 0 {
		n := min(len(requests), maxBatchWrite)
		chunk := requests[:n]
		requests = requests[n:]

		for len(chunk) > 0 {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.tableName: chunk},
			})
			if err != nil {
				return wrapError(err)
			}
			chunk = out.UnprocessedItems[s.tableName]
		}
	}
	return nil
}

// Get retrieves an asset version.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"rule_id": &types.AttributeValueMemberS{Value: ruleID},
			"version": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
		},
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if out.Item == nil {
		return nil, rule.ErrAssetNotFound
	}
	return fromAssetItem(out.Item)
}

// Latest returns the highest version of each requested rule_id. With no
// rule_ids the whole table is scanned.
func (s *AssetStore) Latest(ctx context.Context, ruleIDs ...string) ([]*rule.Asset, error) {
	if len(ruleIDs) == 0 {
		return s.latestFromScan(ctx)
	}

	var out []*rule.Asset
	seen := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		items, err := s.query(ctx, id, false, 1, false)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			continue
		}
		a, err := fromAssetItem(items[0])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (s *AssetStore) latestFromScan(ctx context.Context) ([]*rule.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	latest := make(map[string]*rule.Asset)
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: aws.String(s.tableName)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		for _, item := range page.Items {
			a, err := fromAssetItem(item)
			if err != nil {
				return nil, err
			}
			if cur, ok := latest[a.RuleID]; !ok || a.Version > cur.Version {
				latest[a.RuleID] = a
			}
		}
	}

	out := make([]*rule.Asset, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

// Versions returns the known versions of a rule_id in ascending order.
func (s *AssetStore) Versions(ctx context.Context, ruleID string) ([]int, error) {
	items, err := s.query(ctx, ruleID, true, 0, true)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(items))
	for _, item := range items {
		var v assetItem
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			return nil, err
		}
		versions = append(versions, v.Version)
	}
	return versions, nil
}

// Count returns the number of distinct rule_ids.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	latest, err := s.latestFromScan(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(latest)), nil
}

// Delete removes every version of a rule_id.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	items, err := s.query(ctx, ruleID, true, 0, true)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return rule.ErrAssetNotFound
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{"rule_id": item["rule_id"], "version": item["version"]},
		}})
	}
	return s.batchWrite(ctx, requests)
}

func (s *AssetStore) query(ctx context.Context, ruleID string, ascending bool, limit int32, keysOnly bool) ([]map[string]types.AttributeValue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("rule_id").Equal(expression.Value(ruleID)))
	if keysOnly {
		builder = builder.WithProjection(expression.NamesList(expression.Name("rule_id"), expression.Name("version")))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(ascending),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, wrapError(err)
		}
		return out.Items, nil
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

func fromAssetItem(av map[string]types.AttributeValue) (*rule.Asset, error) {
	var item assetItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}
	var a rule.Asset
	if err := json.Unmarshal([]byte(item.Data), &a); err != nil {
		return nil, fmt.Errorf("decode asset %s@%d: %w", item.RuleID, item.Version, err)
	}
	return &a, nil
}

var _ rule.AssetStore = (*AssetStore)(nil)
