package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// AssetStore is a SQLite-backed implementation of rule.AssetStore.
type AssetStore struct {
	db *sql.DB
}

// NewAssetStore creates an asset store on an open database.
func NewAssetStore(db *sql.DB) *AssetStore {
	return &AssetStore{db: db}
}

// Save stores assets in one transaction, overwriting existing versions.
func (s *AssetStore) Save(ctx context.Context, assets ...*rule.Asset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rule_assets (rule_id, version, data) VALUES (?, ?, ?)
		 ON CONFLICT(rule_id, version) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range assets {
		if a.RuleID == "" || a.Version <= 0 {
			return rule.ErrInvalidAsset
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a.RuleID, a.Version, data); err != nil {
			return fmt.Errorf("save asset %s: %w", a.Key(), err)
		}
	}
	return tx.Commit()
}

// Get retrieves an asset version.
func (s *AssetStore) Get(ctx context.Context, ruleID string, version int) (*rule.Asset, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM rule_assets WHERE rule_id = ? AND version = ?", ruleID, version,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rule.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAsset(data)
}

// Latest returns the highest version of each requested rule_id.
func (s *AssetStore) Latest(ctx context.Context, ruleIDs ...string) ([]*rule.Asset, error) {
	query := `SELECT a.data FROM rule_assets a
		JOIN (SELECT rule_id, MAX(version) AS version FROM rule_assets GROUP BY rule_id) m
		  ON a.rule_id = m.rule_id AND a.version = m.version`
	args := make([]any, 0, len(ruleIDs))
	if len(ruleIDs) > 0 {
		query += " WHERE a.rule_id IN (" + placeholders(len(ruleIDs)) + ")"
		for _, id := range ruleIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY a.rule_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
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
	return out, rows.Err()
}

// Versions returns the known versions of a rule_id in ascending order.
func (s *AssetStore) Versions(ctx context.Context, ruleID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM rule_assets WHERE rule_id = ? ORDER BY version", ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of distinct rule_ids.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT rule_id) FROM rule_assets").Scan(&n)
	return n, err
}

// Delete removes every version of a rule_id.
func (s *AssetStore) Delete(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rule_assets WHERE rule_id = ?", ruleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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
