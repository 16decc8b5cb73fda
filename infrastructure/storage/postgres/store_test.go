package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/infrastructure/storage/storetest"
)

func TestRuleStore_buildListQuery(t *testing.T) {
	t.Parallel()

	s := NewRuleStore(nil, "")

	tests := []struct {
		name     string
		filter   rule.ListFilter
		want     string
		wantArgs int
	}{
		{"all", rule.ListFilter{}, "SELECT data FROM public.rules ORDER BY rule_id", 0},
		{"prebuilt", rule.ListFilter{PrebuiltOnly: true}, "SELECT data FROM public.rules WHERE prebuilt ORDER BY rule_id", 0},
		{
			name:     "rule ids and page",
			filter:   rule.ListFilter{RuleIDs: []string{"a"}, PrebuiltOnly: true, Limit: 10, Offset: 20},
			want:     "SELECT data FROM public.rules WHERE prebuilt AND rule_id = ANY($1) ORDER BY rule_id LIMIT $2 OFFSET $3",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		got, args := s.buildListQuery(tt.filter)
		if got != tt.want {
			t.Errorf("%s: query = %q, want %q", tt.name, got, tt.want)
		}
		if len(args) != tt.wantArgs {
			t.Errorf("%s: len(args) = %d, want %d", tt.name, len(args), tt.wantArgs)
		}
	}
}

func TestRuleStore_Validation(t *testing.T) {
	t.Parallel()

	s := NewRuleStore(nil, "rules")
	ctx := context.Background()
	if err := s.Create(ctx, &rule.Rule{}); !errors.Is(err, rule.ErrInvalidRuleID) {
		t.Errorf("Create() error = %v, want ErrInvalidRuleID", err)
	}
	if _, err := s.Get(ctx, ""); !errors.Is(err, rule.ErrInvalidRuleID) {
		t.Errorf("Get() error = %v, want ErrInvalidRuleID", err)
	}
	if s.tableName() != "rules.rules" {
		t.Errorf("tableName() = %s", s.tableName())
	}
}

// TestStores_Integration runs the store contract when POSTGRES_DSN is set.
func TestStores_Integration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.DSN = dsn
	pool, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()

	reset := func(t *testing.T) {
		t.Helper()
		if _, err := pool.Exec(ctx, "TRUNCATE public.rules, public.rule_assets"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}

	storetest.RuleStore(t, func(t *testing.T) rule.Store {
		reset(t)
		return NewRuleStore(pool, "")
	})
	storetest.AssetStore(t, func(t *testing.T) rule.AssetStore {
		reset(t)
		return NewAssetStore(pool, "")
	})
}
