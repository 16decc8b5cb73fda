package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/ruleup/domain/rule"
	"github.com/felixgeelhaar/ruleup/domain/upgrade"
)

// ErrInvalidFlag is returned for malformed flag values.
var ErrInvalidFlag = errors.New("invalid flag value")

// parseVersionSpecifier parses rule_id@version.
func parseVersionSpecifier(s string) (rule.VersionSpecifier, error) {
	id, v, ok := strings.Cut(s, "@")
	if !ok || id == "" {
		return rule.VersionSpecifier{}, fmt.Errorf("%w: %q, expected rule_id@version", ErrInvalidFlag, s)
	}
	version, err := strconv.Atoi(v)
	if err != nil || version <= 0 {
		return rule.VersionSpecifier{}, fmt.Errorf("%w: %q, version must be a positive integer", ErrInvalidFlag, s)
	}
	return rule.VersionSpecifier{RuleID: id, Version: version}, nil
}

// parseRuleSpec parses rule_id:revision:version.
func parseRuleSpec(s string) (upgrade.RuleSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" {
		return upgrade.RuleSpec{}, fmt.Errorf("%w: %q, expected rule_id:revision:version", ErrInvalidFlag, s)
	}
	revision, err := strconv.Atoi(parts[1])
	if err != nil || revision < 0 {
		return upgrade.RuleSpec{}, fmt.Errorf("%w: %q, revision must be a non-negative integer", ErrInvalidFlag, s)
	}
	version, err := strconv.Atoi(parts[2])
	if err != nil || version <= 0 {
		return upgrade.RuleSpec{}, fmt.Errorf("%w: %q, version must be a positive integer", ErrInvalidFlag, s)
	}
	return upgrade.RuleSpec{RuleID: parts[0], Revision: revision, Version: version}, nil
}

// parseFieldRef splits rule_id.field=value. Rule ids may contain dots, field
// names do not.
func parseFieldRef(s string) (ruleID, field, value string, err error) {
	ref, value, ok := strings.Cut(s, "=")
	i := strings.LastIndexByte(ref, '.')
	if !ok || i <= 0 || i == len(ref)-1 {
		return "", "", "", fmt.Errorf("%w: %q, expected rule_id.field=value", ErrInvalidFlag, s)
	}
	return ref[:i], ref[i+1:], value, nil
}

// parseFieldPick parses rule_id.field=PICK_VERSION.
func parseFieldPick(s string) (ruleID, field string, pick upgrade.PickVersion, err error) {
	ruleID, field, value, err := parseFieldRef(s)
	if err != nil {
		return "", "", "", err
	}
	pick, err = upgrade.ParsePickVersion(value)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %q: %w", ErrInvalidFlag, s, err)
	}
	if pick == upgrade.PickResolved {
		return "", "", "", fmt.Errorf("%w: %q, use --resolve to provide a resolved value", ErrInvalidFlag, s)
	}
	return ruleID, field, pick, nil
}

// parseJSONValue decodes a JSON value. Input that is not valid JSON is taken
// as a plain string.
func parseJSONValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// parseAssignment parses field=jsonvalue.
func parseAssignment(s string) (string, any, error) {
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return "", nil, fmt.Errorf("%w: %q, expected field=value", ErrInvalidFlag, s)
	}
	return field, parseJSONValue(value), nil
}

// upgradeFlags are the raw flag values of upgrade perform.
type upgradeFlags struct {
	mode     string
	pick     string
	rules    []string
	fields   []string
	resolves []string
	dryRun   bool
}

// request builds the perform request. Without --mode the mode is
// SPECIFIC_RULES when rules are named and ALL_RULES otherwise.
func (f upgradeFlags) request() (upgrade.PerformRequest, error) {
	req := upgrade.PerformRequest{DryRun: f.dryRun}

	if f.pick != "" {
		pick, err := upgrade.ParsePickVersion(f.pick)
		if err != nil {
			return req, fmt.Errorf("%w: --pick-version: %w", ErrInvalidFlag, err)
		}
		req.PickVersion = pick
	}

	index := make(map[string]int, len(f.rules))
	for _, s := range f.rules {
		spec, err := parseRuleSpec(s)
		if err != nil {
			return req, err
		}
		index[spec.RuleID] = len(req.Rules)
		req.Rules = append(req.Rules, spec)
	}

	selection := func(ruleID, field string, sel upgrade.FieldSelection) error {
		i, ok := index[ruleID]
		if !ok {
			return fmt.Errorf("%w: field override for %s requires --rule %s:revision:version", ErrInvalidFlag, ruleID, ruleID)
		}
		if req.Rules[i].Fields == nil {
			req.Rules[i].Fields = make(map[string]upgrade.FieldSelection)
		}
		req.Rules[i].Fields[field] = sel
		return nil
	}
	for _, s := range f.fields {
		ruleID, field, pick, err := parseFieldPick(s)
		if err != nil {
			return req, err
		}
		if err := selection(ruleID, field, upgrade.FieldSelection{PickVersion: pick}); err != nil {
			return req, err
		}
	}
	for _, s := range f.resolves {
		ruleID, field, value, err := parseFieldRef(s)
		if err != nil {
			return req, err
		}
		if err := selection(ruleID, field, upgrade.ResolvedTo(parseJSONValue(value))); err != nil {
			return req, err
		}
	}

	switch {
	case f.mode != "":
		req.Mode = upgrade.Mode(strings.ToUpper(f.mode))
	case len(req.Rules) > 0:
		req.Mode = upgrade.ModeSpecificRules
	default:
		req.Mode = upgrade.ModeAllRules
	}
	return req, nil
}
