// Package diff renders line diffs between JSON documents, used to report
// where a lowered IR departs from the expected one.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ggloracle/internal/canon"
	"ggloracle/internal/value"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is a single line in a hunk.
type Line struct {
	Content string
	Type    LineType
}

// Hunk is a group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// ContextLines is how many unchanged lines surround each change.
const ContextLines = 2

// Equal reports whether two values have the same canonical form.
func Equal(a, b value.Value) bool {
	return bytes.Equal(canon.Bytes(a), canon.Bytes(b))
}

// Pretty renders v as indented JSON with sorted keys, one scalar per line.
func Pretty(v value.Value) string {
	raw, err := v.MarshalJSON()
	if err != nil {
		return v.String()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Values returns a unified diff from want to got, or "" when they are
// canonically equal.
func Values(want, got value.Value) string {
	if Equal(want, got) {
		return ""
	}
	return Unified("want", "got", Pretty(want), Pretty(got))
}

// Unified renders a unified diff of two texts. Identical texts yield "".
func Unified(oldName, newName, oldText, newText string) string {
	hunks := Compute(oldText, newText)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Type.prefix())
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Compute returns the hunks that turn oldText into newText.
func Compute(oldText, newText string) []Hunk {
	if oldText == newText {
		return nil
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	// Reduce to one char per line so the diff stays on line boundaries.
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	return group(toOps(diffs), ContextLines)
}

// op is one line with its position in each text; -1 means absent.
type op struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func toOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
		if d.Text == "" {
			continue
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, op{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, op{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, op{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// group splits ops into hunks, merging changes closer than 2*context lines.
func group(ops []op, context int) []Hunk {
	var changes []int
	for i, o := range ops {
		if o.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	start := max(changes[0]-context, 0)
	end := min(changes[0]+context, len(ops)-1)
	for _, c := range changes[1:] {
		if c-context <= end+1 {
			end = min(c+context, len(ops)-1)
			continue
		}
		hunks = append(hunks, makeHunk(ops[start:end+1]))
		start = max(c-context, 0)
		end = min(c+context, len(ops)-1)
	}
	return append(hunks, makeHunk(ops[start:end+1]))
}

func makeHunk(ops []op) Hunk {
	h := Hunk{Lines: make([]Line, 0, len(ops))}
	for _, o := range ops {
		if h.OldStart == 0 && o.oldLine >= 0 {
			h.OldStart = o.oldLine + 1
		}
		if h.NewStart == 0 && o.newLine >= 0 {
			h.NewStart = o.newLine + 1
		}
		if o.typ != LineAdded {
			h.OldCount++
		}
		if o.typ != LineRemoved {
			h.NewCount++
		}
		h.Lines = append(h.Lines, Line{Content: o.content, Type: o.typ})
	}
	return h
}
