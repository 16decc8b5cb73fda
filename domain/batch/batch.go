// Package batch provides the result envelope shared by bulk rule operations:
// a summary of outcomes and per-rule errors grouped by message.
package batch

import (
	"errors"
	"sort"
)

// Summary counts the outcomes of a bulk operation.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ErrorRule identifies a rule in an error entry.
type ErrorRule struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ErrorEntry groups the rules that failed with the same message.
type ErrorEntry struct {
	Message string      `json:"message"`
	Rules   []ErrorRule `json:"rules"`

	err error
}

// Err returns the first error recorded under the entry's message.
func (e ErrorEntry) Err() error {
	return e.err
}

// SkipReason explains why a rule was skipped.
type SkipReason string

// Skip reasons.
const (
	SkipRuleUpToDate     SkipReason = "RULE_UP_TO_DATE"
	SkipAlreadyInstalled SkipReason = "PREBUILT_RULE_ALREADY_INSTALLED"
	SkipRuleNotInstalled SkipReason = "RULE_NOT_INSTALLED"
)

// Skipped records a skipped rule.
type Skipped struct {
	RuleID string     `json:"rule_id"`
	Reason SkipReason `json:"reason"`
}

// Outcome is the result of processing one rule in a batch.
type Outcome[T any] struct {
	// Value is set on success.
	Value T

	// Skip is set when the rule was skipped.
	Skip *Skipped

	// Err is set on failure; Rule identifies the failing rule.
	Err  error
	Rule ErrorRule
}

// Collector accumulates outcomes in the order they are added.
type Collector[T any] struct {
	succeeded []T
	skipped   []Skipped
	entries   []ErrorEntry
	index     map[string]int
	summary   Summary
}

// NewCollector creates an empty collector.
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{index: make(map[string]int)}
}

// Add records one outcome.
func (c *Collector[T]) Add(o Outcome[T]) {
	c.summary.Total++
	switch {
	case o.Err != nil:
		c.summary.Failed++
		c.addError(o.Err, o.Rule)
	case o.Skip != nil:
		c.summary.Skipped++
		c.skipped = append(c.skipped, *o.Skip)
	default:
		c.summary.Succeeded++
		c.succeeded = append(c.succeeded, o.Value)
	}
}

func (c *Collector[T]) addError(err error, r ErrorRule) {
	msg := err.Error()
	if i, ok := c.index[msg]; ok {
		c.entries[i].Rules = append(c.entries[i].Rules, r)
		return
	}
	c.index[msg] = len(c.entries)
	c.entries = append(c.entries, ErrorEntry{Message: msg, Rules: []ErrorRule{r}, err: err})
}

// Summary returns the outcome counts.
func (c *Collector[T]) Summary() Summary {
	return c.summary
}

// Succeeded returns successful values in insertion order.
func (c *Collector[T]) Succeeded() []T {
	if c.succeeded == nil {
		return []T{}
	}
	return c.succeeded
}

// Skipped returns skipped rules in insertion order.
func (c *Collector[T]) Skipped() []Skipped {
	if c.skipped == nil {
		return []Skipped{}
	}
	return c.skipped
}

// Errors returns the grouped error entries in order of first occurrence.
func (c *Collector[T]) Errors() []ErrorEntry {
	if c.entries == nil {
		return []ErrorEntry{}
	}
	return c.entries
}

// HasError reports whether any entry wraps target.
func HasError(entries []ErrorEntry, target error) bool {
	for _, e := range entries {
		if errors.Is(e.err, target) {
			return true
		}
	}
	return false
}

// CollectTags returns the sorted distinct tags of the given tag lists.
func CollectTags(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, t := range l {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
