// Package upgrade provides the request, resolution and response model for
// upgrading installed prebuilt rules to newer asset versions.
package upgrade

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PickVersion selects which version of a field is installed by an upgrade.
type PickVersion string

// Pick versions.
const (
	PickBase     PickVersion = "BASE"
	PickCurrent  PickVersion = "CURRENT"
	PickTarget   PickVersion = "TARGET"
	PickMerged   PickVersion = "MERGED"
	PickResolved PickVersion = "RESOLVED"
)

// DefaultPickVersion applies when a request names none.
const DefaultPickVersion = PickMerged

// Valid reports whether p is a known pick version.
func (p PickVersion) Valid() bool {
	switch p {
	case PickBase, PickCurrent, PickTarget, PickMerged, PickResolved:
		return true
	default:
		return false
	}
}

// ParsePickVersion parses a pick version case-insensitively.
func ParsePickVersion(s string) (PickVersion, error) {
	p := PickVersion(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown pick_version %q", ErrInvalidRequest, s)
	}
	return p, nil
}

// FieldSelection is a per-field pick version. ResolvedValue is used only with
// PickResolved and is installed verbatim.
//
// A nil ResolvedValue counts as supplied only when HasResolvedValue is set.
// Decoding JSON sets it whenever the resolved_value key is present, so an
// explicit null is kept apart from an omitted value.
type FieldSelection struct {
	PickVersion      PickVersion `json:"pick_version"`
	ResolvedValue    any         `json:"resolved_value,omitempty"`
	HasResolvedValue bool        `json:"-"`
}

// ResolvedTo selects v, which may be nil, as the value of a field.
func ResolvedTo(v any) FieldSelection {
	return FieldSelection{PickVersion: PickResolved, ResolvedValue: v, HasResolvedValue: true}
}

// HasValue reports whether a resolved value was supplied.
func (s FieldSelection) HasValue() bool {
	return s.HasResolvedValue || s.ResolvedValue != nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *FieldSelection) UnmarshalJSON(data []byte) error {
	var raw struct {
		PickVersion   PickVersion     `json:"pick_version"`
		ResolvedValue json.RawMessage `json:"resolved_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = FieldSelection{PickVersion: raw.PickVersion}
	if raw.ResolvedValue == nil {
		return nil
	}
	s.HasResolvedValue = true
	return json.Unmarshal(raw.ResolvedValue, &s.ResolvedValue)
}

// MarshalJSON implements json.Marshaler. An explicit nil is written as null.
func (s FieldSelection) MarshalJSON() ([]byte, error) {
	type plain struct {
		PickVersion   PickVersion `json:"pick_version"`
		ResolvedValue any         `json:"resolved_value,omitempty"`
	}
	if s.HasValue() && s.ResolvedValue == nil {
		return json.Marshal(struct {
			PickVersion   PickVersion `json:"pick_version"`
			ResolvedValue any         `json:"resolved_value"`
		}{s.PickVersion, nil})
	}
	return json.Marshal(plain{s.PickVersion, s.ResolvedValue})
}

// Chain resolves the pick version of each field from the request-global,
// per-rule and per-field settings. The most specific non-empty wins.
type Chain struct {
	Global PickVersion
	Rule   PickVersion
	Fields map[string]FieldSelection
}

// For returns the effective selection for a field.
func (c Chain) For(field string) FieldSelection {
	if sel, ok := c.Fields[field]; ok && sel.PickVersion != "" {
		return sel
	}
	return FieldSelection{PickVersion: c.RuleLevel()}
}

// RuleLevel returns the effective pick version below field overrides.
func (c Chain) RuleLevel() PickVersion {
	if c.Rule != "" {
		return c.Rule
	}
	if c.Global != "" {
		return c.Global
	}
	return DefaultPickVersion
}

// AllTarget reports whether every level of the chain resolves to TARGET.
func (c Chain) AllTarget() bool {
	if c.RuleLevel() != PickTarget {
		return false
	}
	for _, sel := range c.Fields {
		if sel.PickVersion != "" && sel.PickVersion != PickTarget {
			return false
		}
	}
	return true
}
