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

type assetDocument struct {
	ID      string `bson:"_id"`
	RuleID  string `bson:"rule_id"`
	Version int    `bson:"version"`
	Data    string `bson:"data"`
}

// AssetStore is a MongoDB-backed implementation of rule.AssetStore.
type AssetStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewAssetStore creates an asset store on client.
func NewAssetStore(client *Client) *AssetStore {
	return &AssetStore{
		collection:   client.Collection(assetsCollection),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save upserts assets with a single bulk write.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	models := make([]mongo.WriteModel, 0, len(assets))
	for _, a := range assets {
		if a.RuleID == "" || a.Version <= 0 {
			return rule.ErrInvalidAsset
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", a.Key(), err)
		}
		doc := assetDocument{ID: a.Key().String(), RuleID: a.RuleID, Version: a.Version, Data: string(data)}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return wrapError(err)
}

// Get retrieves an asset version.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc assetDocument
	err := s.collection.FindOne(ctx, bson.M{"rule_id": ruleID, "version": version}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, rule.ErrAssetNotFound
		}
		return nil, wrapError(err)
	}
	return doc.asset()
}

// Latest returns the highest version of each requested rule_id.
func (s *AssetStore) Latest(ctx context.Context, ruleIDs ...string) ([]*rule.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	match := bson.M{}
	if len(ruleIDs) > 0 {
		match["rule_id"] = bson.M{"$in": ruleIDs}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "rule_id", Value: 1}, {Key: "version", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$rule_id"},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "rule_id", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []*rule.Asset
	for cursor.Next(ctx) {
		var doc assetDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		a, err := doc.asset()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, wrapError(cursor.Err())
}

// Versions returns the known versions of a rule_id in ascending order.
func (s *AssetStore) Versions(ctx context.Context, ruleID string) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "version", Value: 1}}).
		SetProjection(bson.M{"version": 1})
	cursor, err := s.collection.Find(ctx, bson.M{"rule_id": ruleID}, opts)
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	versions := []int{}
	for cursor.Next(ctx) {
		var doc struct {
			Version int `bson:"version"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		versions = append(versions, doc.Version)
	}
	return versions, wrapError(cursor.Err())
}

// Count returns the number of distinct rule_ids.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	ids, err := s.collection.Distinct(ctx, "rule_id", bson.M{})
	if err != nil {
		return 0, wrapError(err)
	}
	return int64(len(ids)), nil
}

// Delete removes every version of a rule_id.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteMany(ctx, bson.M{"rule_id": ruleID})
	if err != nil {
		return wrapError(err)
	}
	if result.DeletedCount == 0 {
		return rule.ErrAssetNotFound
	}
	return nil
}

func (d *assetDocument) asset() (*rule.Asset, error) {
	var a rule.Asset
	if err := json.Unmarshal([]byte(d.Data), &a); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", d.ID, err)
	}
	return &a, nil
}

var _ rule.AssetStore = (*AssetStore)(nil)
