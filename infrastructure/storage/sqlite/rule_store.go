package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// RuleStore is a SQLite-backed implementation of rule.Store. The rule is
// stored as a JSON document next to the columns used for lookups.
type RuleStore struct {
	db *sql.DB
}

// NewRuleStore creates a rule store on an open database.
func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

// Create persists a newly installed rule.
func (s *RuleStore) Create(ctx context.Context, r *rule.Rule) error {
	if r.ID == "" || r.RuleID == "" {
		return rule.ErrInvalidRuleID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules (id, rule_id, revision, prebuilt, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RuleID, r.Revision, r.IsPrebuilt(), data, r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rule.ErrRuleExists
		}
		return fmt.Errorf("insert rule %s: %w", r.RuleID, err)
	}
	return nil
}

// Get retrieves a rule by storage ID.
func (s *RuleStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	if id == "" {
		return nil, rule.ErrInvalidRuleID
	}
	return s.queryOne(ctx, "SELECT data FROM rules WHERE id = ?", id)
}

// GetByRuleID retrieves a rule by signature id.
func (s *RuleStore) GetByRuleID(ctx context.Context, ruleID string) (*rule.Rule, error) {
	if ruleID == "" {
		return nil, rule.ErrInvalidRuleID
	}
	return s.queryOne(ctx, "SELECT data FROM rules WHERE rule_id = ?", ruleID)
}

func (s *RuleStore) queryOne(ctx context.Context, query string, arg any) (*rule.Rule, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rule.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
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
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET rule_id = ?, revision = ?, prebuilt = ?, data = ?, updated_at = ?
		 WHERE id = ? AND revision = ?`,
		r.RuleID, r.Revision, r.IsPrebuilt(), data, r.UpdatedAt.UnixMilli(), r.ID, expectedRevision,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rule.ErrRuleExists
		}
		return fmt.Errorf("update rule %s: %w", r.RuleID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var revision int
	err = s.db.QueryRowContext(ctx, "SELECT revision FROM rules WHERE id = ?", r.ID).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return rule.ErrRuleNotFound
	}
	if err != nil {
		return err
	}
	return rule.ErrRevisionConflict
}

// Delete removes a rule by storage ID.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rule.ErrRuleNotFound
	}
	return nil
}

// List returns rules matching the filter, ordered by rule_id.
func (s *RuleStore) List(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	where, args := whereClause(filter)
	query := "SELECT data FROM rules" + where + " ORDER BY rule_id"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
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
	return out, rows.Err()
}

// Count returns the number of rules matching the filter.
func (s *RuleStore) Count(ctx context.Context, filter rule.ListFilter) (int64, error) {
	where, args := whereClause(filter)
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rules"+where, args...).Scan(&n)
	return n, err
}

func whereClause(filter rule.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.PrebuiltOnly {
		conds = append(conds, "prebuilt = 1")
	}
	if len(filter.RuleIDs) > 0 {
		conds = append(conds, "rule_id IN ("+placeholders(len(filter.RuleIDs))+")")
		for _, id := range filter.RuleIDs {
			args = append(args, id)
		}
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
