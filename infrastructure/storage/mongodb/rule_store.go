package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// ruleDocument stores the rule as JSON next to the indexed columns so
// params keep their JSON number semantics.
type ruleDocument struct {
	ID        string    `bson:"_id"`
	RuleID    string    `bson:"rule_id"`
	Revision  int       `bson:"revision"`
	Prebuilt  bool      `bson:"prebuilt"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// RuleStore is a MongoDB-backed implementation of rule.Store.
type RuleStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewRuleStore creates a rule store on client.
func NewRuleStore(client *Client) *RuleStore {
	return &RuleStore{
		collection:   client.Collection(rulesCollection),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Create persists a newly installed rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}
	doc, err := toRuleDocument(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return rule.ErrRuleExists
		}
		return wrapError(err)
	}
	return nil
}

// Get retrieves a rule by storage ID.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	if id == "" {
		return nil, rule.ErrInvalidRuleID
	}
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByRuleID retrieves a rule by signature id.
func (s *RuleStore) GetByRuleID(ctx context.Context, ruleID string) (*rule.Rule, error) {
	if ruleID == "" {
		return nil, rule.ErrInvalidRuleID
	}
	return s.findOne(ctx, bson.M{"rule_id": ruleID})
}

func (s *RuleStore) findOne(ctx context.Context, filter bson.M) (*rule.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc ruleDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rule.ErrRuleNotFound
		}
		return nil, wrapError(err)
	}
	return doc.rule()
}

// Update replaces a rule when the stored revision equals expectedRevision.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule, expectedRevision int) error {
	if r.ID == "" {
		return rule.ErrInvalidRuleID
	}
	doc, err := toRuleDocument(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": r.ID, "revision": expectedRevision}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return rule.ErrRuleExists
		}
		return wrapError(err)
	}
	if result.MatchedCount == 1 {
		return nil
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": r.ID})
	if err != nil {
		return wrapError(err)
	}
	if n == 0 {
		return rule.ErrRuleNotFound
	}
	return rule.ErrRevisionConflict
}

// Delete removes a rule by storage ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return rule.ErrInvalidRuleID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrapError(err)
	}
	if result.DeletedCount == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// List returns rules matching the filter, ordered by rule_id.
func (s *RuleStore) List(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, buildFilter(filter), buildFindOptions(filter))
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var rules []*rule.Rule
	for cursor.Next(ctx) {
		var doc ruleDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		r, err := doc.rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapError(err)
	}
	return rules, nil
}

// Count returns the number of rules matching the filter.
func (s *RuleStore) Count(ctx context.Context, filter rule.ListFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, wrapError(err)
	}
	return n, nil
}

// buildFilter constructs a MongoDB filter from the domain filter.
func buildFilter(filter rule.ListFilter) bson.M {
	f := bson.M{}
	if filter.PrebuiltOnly {
		f["prebuilt"] = true
	}
	if len(filter.RuleIDs) > 0 {
		f["rule_id"] = bson.M{"$in": filter.RuleIDs}
	}
	return f
}

func buildFindOptions(filter rule.ListFilter) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "rule_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return opts
}

func toRuleDocument(r *rule.Rule) (*ruleDocument, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal rule: %w", err)
	}
	return &ruleDocument{
		ID:        r.ID,
		RuleID:    r.RuleID,
		Revision:  r.Revision,
		Prebuilt:  r.IsPrebuilt(),
		Data:      string(data),
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (d *ruleDocument) rule() (*rule.Rule, error) {
	var r rule.Rule
	if err := json.Unmarshal([]byte(d.Data), &r); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", d.ID, err)
	}
	return &r, nil
}

var _ rule.Store = (*RuleStore)(nil)
