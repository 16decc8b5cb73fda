// Package textdiff renders line diffs of rule field values for review output.
package textdiff

import (
	"encoding/json"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is a line operation.
type Op string

// Line operations.
const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Line is one line of a diff.
type Line struct {
	Op   Op
	Text string
}

// Lines computes a line-level diff from current to target.
func Lines(current, target string) []Line {
	dmp := diffmatchpatch.New()
	a, b, c := dmp.DiffLinesToChars(terminate(current), terminate(target))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), c)

	var out []Line
	for _, d := range diffs {
		op := OpEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		}
		for _, l := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, Line{Op: op, Text: l})
		}
	}
	return out
}

// Render returns the diff with "-", "+" and " " line prefixes. Equal inputs
// render as an empty string.
func Render(current, target string) string {
	if current == target {
		return ""
	}

	var sb strings.Builder
	for _, l := range Lines(current, target) {
		switch l.Op {
		case OpInsert:
			sb.WriteString("+ ")
		case OpDelete:
			sb.WriteString("- ")
		default:
			sb.WriteString("  ")
		}
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RenderValues diffs two field values. Strings are compared as text, other
// values as indented JSON.
func RenderValues(current, target any) string {
	return Render(format(current), format(target))
}

func format(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func terminate(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
