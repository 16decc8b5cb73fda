package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// RuleStore is a PostgreSQL-backed implementation of rule.Store.
type RuleStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewRuleStore creates a rule store on pool.
func NewRuleStore(pool *pgxpool.Pool, schema string) *RuleStore {
	return &RuleStore{pool: pool, schema: schemaOrDefault(schema)}
}

func (s *RuleStore) tableName() string {
	return s.schema + ".rules"
}

// Create persists a newly installed rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, rule_id, revision, prebuilt, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query, r.ID, r.RuleID, r.Revision, r.IsPrebuilt(), data, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
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
	return s.queryOne(ctx, "id", id)
}

// GetByRuleID retrieves a rule by signature id.
func (s *RuleStore) GetByRuleID(ctx context.Context, ruleID string) (*rule.Rule, error) {
	if ruleID == "" {
		return nil, rule.ErrInvalidRuleID
	}
	return s.queryOne(ctx, "rule_id", ruleID)
}

func (s *RuleStore) queryOne(ctx context.Context, column, value string) (*rule.Rule, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = $1", s.tableName(), column)

	var data []byte
	if err := s.pool.QueryRow(ctx, query, value).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rule.ErrRuleNotFound
		}
		return nil, wrapError(err)
	}
	return decodeRule(data)
}

// Update replaces a rule when the stored revision equals expectedRevision.
func (s *RuleStore) Update(ctx context.Context, r *rule.Rule, expectedRevision int) error {
	if r.ID == "" {
		return rule.ErrInvalidRuleID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET rule_id = $1, revision = $2, prebuilt = $3, data = $4, updated_at = $5
		WHERE id = $6 AND revision = $7
	`, s.tableName())

	tag, err := s.pool.Exec(ctx, query, r.RuleID, r.Revision, r.IsPrebuilt(), data, r.UpdatedAt, r.ID, expectedRevision)
	if err != nil {
		if isUniqueViolation(err) {
			return rule.ErrRuleExists
		}
		return wrapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var revision int
	err = s.pool.QueryRow(ctx, fmt.Sprintf("SELECT revision FROM %s WHERE id = $1", s.tableName()), r.ID).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return rule.ErrRuleNotFound
	}
	if err != nil {
		return wrapError(err)
	}
	return rule.ErrRevisionConflict
}

// Delete removes a rule by storage ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName()), id)
	if err != nil {
		return wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// List returns rules matching the filter, ordered by rule_id.
func (s *RuleStore) List(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var out []*rule.Rule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		r, err := decodeRule(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, wrapError(rows.Err())
}

// Count returns the number of rules matching the filter.
func (s *RuleStore) Count(ctx context.Context, filter rule.ListFilter) (int64, error) {
	where, args := buildWhereClause(filter)
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.tableName(), where), args...).Scan(&n)
	return n, wrapError(err)
}

func (s *RuleStore) buildListQuery(filter rule.ListFilter) (string, []any) {
	where, args := buildWhereClause(filter)
	query := fmt.Sprintf("SELECT data FROM %s%s ORDER BY rule_id", s.tableName(), where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func buildWhereClause(filter rule.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.PrebuiltOnly {
		conds = append(conds, "prebuilt")
	}
	if len(filter.RuleIDs) > 0 {
		args = append(args, filter.RuleIDs)
		conds = append(conds, fmt.Sprintf("rule_id = ANY($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func decodeRule(data []byte) (*rule.Rule, error) {
	var r rule.Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}
	return &r, nil
}

var _ rule.Store = (*RuleStore)(nil)
