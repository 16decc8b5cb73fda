package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// AssetStore is a PostgreSQL-backed implementation of rule.AssetStore.
type AssetStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewAssetStore creates an asset store on pool.
func NewAssetStore(pool *pgxpool.Pool, schema string) *AssetStore {
	return &AssetStore{pool: pool, schema: schemaOrDefault(schema)}
}

func (s *AssetStore) tableName() string {
	return s.schema + ".rule_assets"
}

// Save upserts assets in a single batch.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (rule_id, version, data) VALUES ($1, $2, $3)
		ON CONFLICT (rule_id, version) DO UPDATE SET data = EXCLUDED.data
	`, s.tableName())

	batch := &pgx.Batch{}
	for _, a := range assets {
		if a.RuleID == "" || a.Version <= 0 {
			return rule.ErrInvalidAsset
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal asset %s: %w", a.Key(), err)
		}
		batch.Queue(query, a.RuleID, a.Version, data)
	}
	if batch.Len() == 0 {
		return nil
	}
	return wrapError(s.pool.SendBatch(ctx, batch).Close())
}

// Get retrieves an asset version.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE rule_id = $1 AND version = $2", s.tableName())

	var data []byte
	if err := s.pool.QueryRow(ctx, query, ruleID, version).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rule.ErrAssetNotFound
		}
		return nil, wrapError(err)
	}
	return decodeAsset(data)
}

// Latest returns the highest version of each requested rule_id.
func (s *AssetStore) Latest(ctx context.Context, ruleIDs ...string) ([]*rule.Asset, error) {
	query := fmt.Sprintf("SELECT DISTINCT ON (rule_id) data FROM %s", s.tableName())
	var args []any
	if len(ruleIDs) > 0 {
		query += " WHERE rule_id = ANY($1)"
		args = append(args, ruleIDs)
	}
	query += " ORDER BY rule_id, version DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var out []*rule.Asset
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		a, err := decodeAsset(data)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, wrapError(rows.Err())
}

// Versions returns the known versions of a rule_id in ascending order.
func (s *AssetStore) Versions(ctx context.Context, ruleID string) ([]int, error) {
	query := fmt.Sprintf("SELECT version FROM %s WHERE rule_id = $1 ORDER BY version", s.tableName())
	rows, err := s.pool.Query(ctx, query, ruleID)
	if err != nil {
		return nil, wrapError(err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, wrapError(err)
	}
	if versions == nil {
		versions = []int{}
	}
	return versions, nil
}

// Count returns the number of distinct rule_ids.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT rule_id) FROM %s", s.tableName())).Scan(&n)
	return n, wrapError(err)
}

// Delete removes every version of a rule_id.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE rule_id = $1", s.tableName()), ruleID)
	if err != nil {
		return wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return rule.ErrAssetNotFound
	}
	return nil
}

func decodeAsset(data []byte) (*rule.Asset, error) {
	var a rule.Asset
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	return &a, nil
}

var _ rule.AssetStore = (*AssetStore)(nil)
