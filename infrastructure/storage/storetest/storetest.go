// Package storetest holds behavioral tests shared by every rule.Store and
// rule.AssetStore backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Asset builds a valid query asset.
func Asset(t *testing.T, ruleID string, version int, name string) *rule.Asset {
	t.Helper()
	a, err := rule.NewAsset(rule.MustParams(map[string]any{
		"rule_id":  ruleID,
		"version":  version,
		"type":     "query",
		"language": "kuery",
		"query":    "host.name: *",
		"name":     name,
		"tags":     []string{"Domain: Endpoint"},
	}))
	if err != nil {
		t.Fatalf("NewAsset() error = %v", err)
	}
	return a
}

// RuleStore runs the rule.Store contract against stores built by newStore.
func RuleStore(t *testing.T, newStore func(t *testing.T) rule.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		r := rule.FromAsset("id-1", Asset(t, "rule-1", 1, "One"), now)
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := s.Get(ctx, "id-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.RuleID != "rule-1" || got.Name() != "One" || got.Version() != 1 {
			t.Errorf("Get() = %+v", got)
		}
		if !got.IsPrebuilt() || got.Source.IsCustomized {
			t.Errorf("Source = %+v, want external not customized", got.Source)
		}
		if !got.CreatedAt.Equal(now) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
		}

		byRuleID, err := s.GetByRuleID(ctx, "rule-1")
		if err != nil {
			t.Fatalf("GetByRuleID() error = %v", err)
		}
		if byRuleID.ID != "id-1" {
			t.Errorf("GetByRuleID().ID = %s, want id-1", byRuleID.ID)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		a := Asset(t, "rule-1", 1, "One")
		if err := s.Create(ctx, rule.FromAsset("id-1", a, now)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		err := s.Create(ctx, rule.FromAsset("id-2", a, now))
		if !errors.Is(err, rule.ErrRuleExists) {
			t.Errorf("Create() duplicate rule_id error = %v, want ErrRuleExists", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, rule.ErrRuleNotFound) {
			t.Errorf("Get() error = %v, want ErrRuleNotFound", err)
		}
		if _, err := s.GetByRuleID(ctx, "missing"); !errors.Is(err, rule.ErrRuleNotFound) {
			t.Errorf("GetByRuleID() error = %v, want ErrRuleNotFound", err)
		}
	})

	t.Run("update checks revision", func(t *testing.T) {
		s := newStore(t)
		r := rule.FromAsset("id-1", Asset(t, "rule-1", 1, "One"), now)
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		r.Params = r.Params.With("name", "Renamed")
		r.Revision = 1
		if err := s.Update(ctx, r, 0); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := s.Update(ctx, r, 0); !errors.Is(err, rule.ErrRevisionConflict) {
			t.Errorf("Update() stale error = %v, want ErrRevisionConflict", err)
		}

		got, err := s.GetByRuleID(ctx, "rule-1")
		if err != nil {
			t.Fatalf("GetByRuleID() error = %v", err)
		}
		if got.Name() != "Renamed" || got.Revision != 1 {
			t.Errorf("after Update() = %s rev %d", got.Name(), got.Revision)
		}

		missing := rule.FromAsset("id-x", Asset(t, "rule-x", 1, "X"), now)
		if err := s.Update(ctx, missing, 0); !errors.Is(err, rule.ErrRuleNotFound) {
			t.Errorf("Update() missing error = %v, want ErrRuleNotFound", err)
		}
	})

	t.Run("list and count", func(t *testing.T) {
		s := newStore(t)
		for i, rid := range []string{"rule-c", "rule-a", "rule-b"} {
			r := rule.FromAsset("id-"+rid, Asset(t, rid, 1, rid), now)
			if i == 2 {
				r.Source = rule.InternalSource()
				r.Immutable = false
			}
			if err := s.Create(ctx, r); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		all, err := s.List(ctx, rule.ListFilter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 3 || all[0].RuleID != "rule-a" || all[2].RuleID != "rule-c" {
			t.Errorf("List() order = %v", ruleIDs(all))
		}

		prebuilt, err := s.List(ctx, rule.ListFilter{PrebuiltOnly: true})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(prebuilt) != 2 {
			t.Errorf("List(PrebuiltOnly) = %v, want 2 rules", ruleIDs(prebuilt))
		}

		some, err := s.List(ctx, rule.ListFilter{RuleIDs: []string{"rule-b", "rule-z"}})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(some) != 1 || some[0].RuleID != "rule-b" {
			t.Errorf("List(RuleIDs) = %v", ruleIDs(some))
		}

		page, err := s.List(ctx, rule.ListFilter{Offset: 1, Limit: 1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(page) != 1 || page[0].RuleID != "rule-b" {
			t.Errorf("List(page) = %v", ruleIDs(page))
		}

		n, err := s.Count(ctx, rule.ListFilter{PrebuiltOnly: true})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Count() = %d, want 2", n)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		if err := s.Create(ctx, rule.FromAsset("id-1", Asset(t, "rule-1", 1, "One"), now)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := s.Delete(ctx, "id-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.GetByRuleID(ctx, "rule-1"); !errors.Is(err, rule.ErrRuleNotFound) {
			t.Errorf("GetByRuleID() after Delete() error = %v", err)
		}
		if err := s.Delete(ctx, "id-1"); !errors.Is(err, rule.ErrRuleNotFound) {
			t.Errorf("Delete() twice error = %v, want ErrRuleNotFound", err)
		}
	})
}

// AssetStore runs the rule.AssetStore contract against stores built by
// newStore.
func AssetStore(t *testing.T, newStore func(t *testing.T) rule.AssetStore) {
	t.Helper()
	ctx := context.Background()

	seed := func(t *testing.T, s rule.AssetStore) {
		t.Helper()
		err := s.Save(ctx,
			Asset(t, "rule-b", 1, "B1"),
			Asset(t, "rule-a", 1, "A1"),
			Asset(t, "rule-a", 3, "A3"),
			Asset(t, "rule-a", 2, "A2"),
		)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	t.Run("get", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		a, err := s.Get(ctx, "rule-a", 2)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if a.Name() != "A2" || a.Version != 2 || a.Type() != rule.TypeQuery {
			t.Errorf("Get() = %+v", a)
		}
		if _, err := s.Get(ctx, "rule-a", 9); !errors.Is(err, rule.ErrAssetNotFound) {
			t.Errorf("Get() missing error = %v, want ErrAssetNotFound", err)
		}
	})

	t.Run("latest", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		all, err := s.Latest(ctx)
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if len(all) != 2 || all[0].RuleID != "rule-a" || all[0].Version != 3 || all[1].RuleID != "rule-b" {
			t.Errorf("Latest() = %v", assetKeys(all))
		}

		some, err := s.Latest(ctx, "rule-b", "rule-z")
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if len(some) != 1 || some[0].RuleID != "rule-b" {
			t.Errorf("Latest(rule-b, rule-z) = %v", assetKeys(some))
		}
	})

	t.Run("versions and count", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		versions, err := s.Versions(ctx, "rule-a")
		if err != nil {
			t.Fatalf("Versions() error = %v", err)
		}
		if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
			t.Errorf("Versions() = %v, want [1 2 3]", versions)
		}

		n, err := s.Count(ctx)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Count() = %d, want 2", n)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		if err := s.Save(ctx, Asset(t, "rule-b", 1, "B1 fixed")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		a, err := s.Get(ctx, "rule-b", 1)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if a.Name() != "B1 fixed" {
			t.Errorf("Name() = %q, want B1 fixed", a.Name())
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		if err := s.Delete(ctx, "rule-a"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		versions, err := s.Versions(ctx, "rule-a")
		if err != nil {
			t.Fatalf("Versions() error = %v", err)
		}
		if len(versions) != 0 {
			t.Errorf("Versions() after Delete() = %v", versions)
		}
	})
}

func ruleIDs(rules []*rule.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.RuleID
	}
	return out
}

func assetKeys(assets []*rule.Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Key().String()
	}
	return out
}
