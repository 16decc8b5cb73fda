package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// ruleItem represents an installed rule in DynamoDB. The table is keyed by
// rule_id, which makes the uniqueness check part of the conditional put.
type ruleItem struct {
	RuleID    string `dynamodbav:"rule_id"`
	ID        string `dynamodbav:"id"`
	Revision  int    `dynamodbav:"revision"`
	Prebuilt  bool   `dynamodbav:"prebuilt"`
	Data      string `dynamodbav:"data"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// RuleStore is a DynamoDB-backed implementation of rule.Store.
type RuleStore struct {
	client       API
	tableName    string
	queryTimeout time.Duration
}

// NewRuleStore creates a new DynamoDB rule store.
func NewRuleStore(client *Client) *RuleStore {
	return NewRuleStoreWithAPI(client.DynamoDB(), client.config)
}

// NewRuleStoreWithAPI creates a rule store on any DynamoDB API implementation.
func NewRuleStoreWithAPI(api API, cfg Config) *RuleStore {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &RuleStore{client: api, tableName: cfg.RulesTableName, queryTimeout: cfg.QueryTimeout}
}

// Create persists a newly installed rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	av, err := toRuleItem(r)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(rule_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return rule.ErrRuleExists
		}
		return wrapError(err)
	}
	return nil
}

// Get retrieves a rule by storage ID through the id index.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	if id == "" {
		return nil, rule.ErrInvalidRuleID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("id").Equal(expression.Value(id))).
		Build()
	if err != nil {
		return nil, err
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(idIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if len(out.Items) == 0 {
		return nil, rule.ErrRuleNotFound
	}
	return fromRuleItem(out.Items[0])
}

// GetByRuleID retrieves a rule by signature id.
func (s *RuleStore) GetByRuleID(ctx context.Context, ruleID string) (*rule.Rule, error) {
	if ruleID == "" {
		return nil, rule.ErrInvalidRuleID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            ruleKey(ruleID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	if out.Item == nil {
		return nil, rule.ErrRuleNotFound
	}
	return fromRuleItem(out.Item)
}

// Update replaces a rule when the stored revision equals expectedRevision.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule, expectedRevision int) error {
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}

	av, err := toRuleItem(r)
	if err != nil {
		return err
	}

	cond := expression.AttributeExists(expression.Name("rule_id")).
		And(expression.Name("id").Equal(expression.Value(r.ID))).
		And(expression.Name("revision").Equal(expression.Value(expectedRevision)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err == nil {
		return nil
	}

	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return wrapError(err)
	}
	current, err := s.GetByRuleID(ctx, r.RuleID)
	if err != nil {
		return err
	}
	if current.ID != r.ID {
		return rule.ErrRuleNotFound
	}
	return rule.ErrRevisionConflict
}

// Delete removes a rule by storage ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       ruleKey(r.RuleID),
	})
	return wrapError(err)
}

// List returns rules matching the filter, ordered by rule_id. DynamoDB scans
// are unordered, so sorting and paging happen after the scan.
func (s *RuleStore) List(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	items, err := s.scan(ctx, filter, false)
	if err != nil {
		return nil, err
	}

	rules := make([]*rule.Rule, 0, len(items))
	for _, item := range items {
		r, err := fromRuleItem(item)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RuleID < rules[j].RuleID })

	return page(rules, filter.Offset, filter.Limit), nil
}

// Count returns the number of rules matching the filter.
func (s *RuleStore) Count(ctx context.Context, filter rule.ListFilter) (int64, error) {
	items, err := s.scan(ctx, filter, true)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (s *RuleStore) scan(ctx context.Context, filter rule.ListFilter, keysOnly bool) ([]map[string]types.AttributeValue, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}

	builder := expression.NewBuilder()
	hasExpr := false
	if cond, ok := buildFilter(filter); ok {
		builder = builder.WithFilter(cond)
		hasExpr = true
	}
	if keysOnly {
		builder = builder.WithProjection(expression.NamesList(expression.Name("rule_id")))
		hasExpr = true
	}
	if hasExpr {
		expr, err := builder.Build()
		if err != nil {
			return nil, err
		}
		input.FilterExpression = expr.Filter()
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

// buildFilter converts a list filter into a scan condition. It reports false
// when the filter matches everything.
func buildFilter(filter rule.ListFilter) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	set := false
	and := func(c expression.ConditionBuilder) {
		if set {
			cond = cond.And(c)
		} else {
			cond = c
			set = true
		}
	}

	if filter.PrebuiltOnly {
		and(expression.Name("prebuilt").Equal(expression.Value(true)))
	}
	if len(filter.RuleIDs) > 0 {
		values := make([]expression.OperandBuilder, len(filter.RuleIDs)-1)
		for i, id := range filter.RuleIDs[1:] {
			values[i] = expression.Value(id)
		}
		and(expression.Name("rule_id").In(expression.Value(filter.RuleIDs[0]), values...))
	}
	return cond, set
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func ruleKey(ruleID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"rule_id": &types.AttributeValueMemberS{Value: ruleID},
	}
}

func toRuleItem(r *rule.Rule) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal rule: %w", err)
	}
	return attributevalue.MarshalMap(ruleItem{
		RuleID:    r.RuleID,
		ID:        r.ID,
		Revision:  r.Revision,
		Prebuilt:  r.IsPrebuilt(),
		Data:      string(data),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339Nano),
	})
}

func fromRuleItem(av map[string]types.AttributeValue) (*rule.Rule, error) {
	var item ruleItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, err
	}
	var r rule.Rule
	if err := json.Unmarshal([]byte(item.Data), &r); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", item.RuleID, err)
	}
	return &r, nil
}

var _ rule.Store = (*RuleStore)(nil)
