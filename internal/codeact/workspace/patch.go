package workspace

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// searchWindow bounds the second-tier search: declared position ± this
// many lines, before a hunk falls back to a whole-file scan.
const searchWindow = 200

// ApplyPatch applies a unified diff to current content. diffmatchpatch
// supplies only the parser for the patch text, from which each hunk's
// pre-image is recovered (its context+deleted lines);
// locating that pre-image in current is this package's own job, not
// diffmatchpatch's bitap matcher's, because the matcher returns its single
// best-scoring candidate even when the pre-image occurs more than once.
// Per hunk: try the declared line first, then a ±200 line window, then the
// whole file, accepting a match only when the window/file search finds it
// exactly once. A hunk with a needle shorter than two lines is rejected
// outright as too fragile to anchor safely.
func ApplyPatch(current, diff string) (string, error) {
	dmp := diffmatchpatch.New()

	patches, err := dmp.PatchFromText(diff)
	if err != nil {
		return "", fmt.Errorf("invalid diff: %w", err)
	}
	if len(patches) == 0 {
		return "", fmt.Errorf("diff contains no hunks")
	}

	body := toLF(current)
	trailingNewline := strings.HasSuffix(body, "\n")
	if trailingNewline {
		body = body[:len(body)-1]
	}
	lines := strings.Split(body, "\n")

	delta := 0
	var failed []string
	for i, p := range patches {
		pre, post := hunkLines(p)
		if len(pre) < 2 {
			failed = append(failed, fmt.Sprintf("hunk %d (near line %d): needle shorter than 2 lines", i+1, p.Start1+1))
			continue
		}
		declared := p.Start1 + delta
		start, err := locateHunk(lines, pre, declared)
		if err != nil {
			failed = append(failed, fmt.Sprintf("hunk %d (near line %d): %v", i+1, p.Start1+1, err))
			continue
		}
		lines = spliceLines(lines, start, len(pre), post)
		delta += len(post) - len(pre)
	}
	if len(failed) > 0 {
		return "", fmt.Errorf("Patch context mismatch: %s", strings.Join(failed, "; "))
	}
	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out, nil
}

// hunkLines reconstructs a patch's pre-image (context+delete) and
// post-image (context+insert) line slices from its diff ops. Each op's text
// is split into lines on its own (after dropping any trailing newline), so
// the ops PatchFromText yields one per diff line, without a newline, stay
// separate lines.
func hunkLines(p diffmatchpatch.Patch) (pre, post []string) {
	for _, d := range p.Diffs {
		lines := strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pre = append(pre, lines...)
			post = append(post, lines...)
		case diffmatchpatch.DiffDelete:
			pre = append(pre, lines...)
		case diffmatchpatch.DiffInsert:
			post = append(post, lines...)
		}
	}
	return pre, post
}

func splitHunkText(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// locateHunk finds needle's unique start line in lines, declared being the
// hunk's expected position (already offset-adjusted for prior hunks in
// this same patch application).
func locateHunk(lines, needle []string, declared int) (int, error) {
	if declared < 0 {
		declared = 0
	}
	if declared > len(lines) {
		declared = len(lines)
	}

	if linesEqual(lines, declared, needle) {
		return declared, nil
	}

	lo, hi := declared-searchWindow, declared+searchWindow
	if lo < 0 {
		lo = 0
	}
	if hi > len(lines) {
		hi = len(lines)
	}
	matches := findMatches(lines, needle, lo, hi)
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		// fall through to global search
	default:
		return 0, fmt.Errorf("ambiguous match: %d candidates within %d lines of declared position", len(matches), searchWindow)
	}

	matches = findMatches(lines, needle, 0, len(lines))
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, fmt.Errorf("context not found")
	default:
		return 0, fmt.Errorf("ambiguous match: %d candidates in file", len(matches))
	}
}

// findMatches returns every start index in [lo, hi) at which needle
// occurs, using whitespace-tolerant per-line comparison.
func findMatches(lines, needle []string, lo, hi int) []int {
	var out []int
	last := hi - len(needle)
	for start := lo; start <= last; start++ {
		if linesEqual(lines, start, needle) {
			out = append(out, start)
		}
	}
	return out
}

func linesEqual(lines []string, start int, needle []string) bool {
	if start < 0 || start+len(needle) > len(lines) {
		return false
	}
	for i, n := range needle {
		if normalizeForCompare(lines[start+i]) != normalizeForCompare(n) {
			return false
		}
	}
	return true
}

// spliceLines replaces the n lines at lines[start:start+n] with repl.
func spliceLines(lines []string, start, n int, repl []string) []string {
	out := make([]string, 0, len(lines)-n+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[start+n:]...)
	return out
}
