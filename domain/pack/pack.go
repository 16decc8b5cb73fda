// Package pack describes prebuilt rule packages: versioned bundles of rule
// assets fetched from a package source.
package pack

import (
	"context"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Pack is a fetched prebuilt rule package.
type Pack struct {
	// Name identifies the package, e.g. "security_detection_engine".
	Name string `json:"name"`

	// Version is the package version, if the source reports one.
	Version string `json:"version,omitempty"`

	// Assets holds every rule asset version shipped in the package.
	Assets []*rule.Asset `json:"-"`
}

// New builds a pack, rejecting duplicate (rule_id, version) pairs and
// ordering assets by rule_id then version.
func New(name, version string, assets []*rule.Asset) (*Pack, error) {
	seen := make(map[rule.VersionSpecifier]struct{}, len(assets))
	for _, a := range assets {
		if a == nil {
			return nil, fmt.Errorf("%w: nil asset", ErrInvalidPack)
		}
		if _, dup := seen[a.Key()]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrInvalidPack, a.Key())
		}
		seen[a.Key()] = struct{}{}
	}

	sorted := append([]*rule.Asset(nil), assets...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].RuleID != sorted[j].RuleID {
			return sorted[i].RuleID < sorted[j].RuleID
		}
		return sorted[i].Version < sorted[j].Version
	})
	return &Pack{Name: name, Version: version, Assets: sorted}, nil
}

// RuleIDs returns the distinct rule_ids in the pack in ascending order.
func (p *Pack) RuleIDs() []string {
	var ids []string
	for i, a := range p.Assets {
		if i == 0 || p.Assets[i-1].RuleID != a.RuleID {
			ids = append(ids, a.RuleID)
		}
	}
	return ids
}

// Source fetches prebuilt rule packages.
type Source interface {
	// Name describes the source for logs, e.g. "git:https://host/repo.git".
	Name() string

	// Fetch retrieves the current package.
	Fetch(ctx context.Context) (*Pack, error)
}

// Watcher is a Source that can notify about package changes.
type Watcher interface {
	Source

	// Watch calls fn with a freshly fetched package whenever the source
	// changes, until ctx is done.
	Watch(ctx context.Context, fn func(*Pack, error)) error
}

// UpdateResult reports the outcome of loading a package into the asset store.
type UpdateResult struct {
	Package string `json:"package"`
	Version string `json:"version,omitempty"`
	Fetched int    `json:"fetched"`
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
}
