package workspace

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// ErrNoOp is returned when the proposed block is identical to the current
// slice it would replace.
var ErrNoOp = fmt.Errorf("no changes: proposed block is identical to current content")

// NoOpKeyID is the literal meta.keyid surfaced alongside ErrNoOp.
const NoOpKeyID = "replace_code_block_noop"

// AmbiguousError is returned when anchor resolution cannot settle on a
// unique start/end span. KeyID is the first 16 hex characters of the sha1
// of the current file content,
// given back to the model so a retry referencing the same keyid can be
// correlated to the same ambiguous state.
type AmbiguousError struct {
	Cause   error
	KeyID   string
	Current string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("replace_code_block failed: %v\nkeyid=%s\n--- current file ---\n%s", e.Cause, e.KeyID, e.Current)
}

func (e *AmbiguousError) Unwrap() error { return e.Cause }

// ReplaceCodeBlock implements anchor-based code-block replacement. It
// normalizes both inputs to LF, resolves a unique START/END line
// span in current via progressive disambiguation on the snippet's
// non-empty anchor lines, and splices the snippet in. Ambiguous or absent
// anchors fail with a structured error carrying the full current file and
// a stable keyid hint so the model can retry with a longer anchor.
func ReplaceCodeBlock(current, snippet string) (string, error) {
	current = toLF(current)
	snippet = strings.TrimSuffix(toLF(snippet), "\n")

	currentLines := strings.Split(current, "\n")
	snippetLines := strings.Split(snippet, "\n")

	anchors := nonEmptyIndices(snippetLines)
	if len(anchors) == 0 {
		return "", fmt.Errorf("replace_code_block requires at least one non-empty anchor line")
	}

	start, err := resolveStart(currentLines, snippetLines, anchors)
	if err != nil {
		return "", ambiguousErr(current, err)
	}
	end, err := resolveEnd(currentLines, snippetLines, anchors, start)
	if err != nil {
		return "", ambiguousErr(current, err)
	}

	proposed := strings.Join(snippetLines, "\n")
	existing := strings.Join(currentLines[start:end+1], "\n")
	if normalizeForCompare(proposed) == normalizeForCompare(existing) {
		return "", ErrNoOp
	}

	out := append([]string{}, currentLines[:start]...)
	out = append(out, snippetLines...)
	out = append(out, currentLines[end+1:]...)
	return strings.Join(out, "\n"), nil
}

func nonEmptyIndices(lines []string) []int {
	var idx []int
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			idx = append(idx, i)
		}
	}
	return idx
}

// resolveStart finds the unique line in currentLines matching the
// snippet's leading anchor line(s), extending the match to successive
// non-empty snippet lines until unique or anchors are exhausted.
func resolveStart(currentLines, snippetLines []string, anchors []int) (int, error) {
	depth := 1
	for depth <= len(anchors) {
		matches := candidateStarts(currentLines, snippetLines, anchors[:depth])
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) == 0 {
			return 0, fmt.Errorf("start anchor not found in file")
		}
		depth++
	}
	return 0, fmt.Errorf("start anchor ambiguous: %d candidate lines", len(candidateStarts(currentLines, snippetLines, anchors)))
}

func candidateStarts(currentLines, snippetLines []string, anchorIdx []int) []int {
	var out []int
	first := snippetLines[anchorIdx[0]]
	for ci, cl := range currentLines {
		if cl != first {
			continue
		}
		if matchesSequence(currentLines, ci, snippetLines, anchorIdx) {
			out = append(out, ci)
		}
	}
	return out
}

// matchesSequence checks that, starting at currentLines[ci], the offsets
// between consecutive anchor lines in the snippet also hold in current.
func matchesSequence(currentLines []string, ci int, snippetLines []string, anchorIdx []int) bool {
	base := anchorIdx[0]
	for _, a := range anchorIdx {
		offset := a - base
		pos := ci + offset
		if pos < 0 || pos >= len(currentLines) {
			return false
		}
		if currentLines[pos] != snippetLines[a] {
			return false
		}
	}
	return true
}

// resolveEnd mirrors resolveStart from the snippet's tail, searching only
// after start.
func resolveEnd(currentLines, snippetLines []string, anchors []int, start int) (int, error) {
	rev := make([]int, len(anchors))
	for i, a := range anchors {
		rev[len(anchors)-1-i] = a
	}
	depth := 1
	for depth <= len(rev) {
		matches := candidateEnds(currentLines, snippetLines, rev[:depth], start)
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) == 0 {
			return 0, fmt.Errorf("end anchor not found after start")
		}
		depth++
	}
	return 0, fmt.Errorf("end anchor ambiguous")
}

func candidateEnds(currentLines, snippetLines []string, anchorIdxFromTail []int, start int) []int {
	var out []int
	last := snippetLines[anchorIdxFromTail[0]]
	for ci := start; ci < len(currentLines); ci++ {
		if currentLines[ci] != last {
			continue
		}
		ok := true
		base := anchorIdxFromTail[0]
		for _, a := range anchorIdxFromTail {
			offset := base - a
			pos := ci - offset
			if pos < start || pos >= len(currentLines) {
				ok = false
				break
			}
			if currentLines[pos] != snippetLines[a] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ci)
		}
	}
	return out
}

func ambiguousErr(current string, cause error) error {
	return &AmbiguousError{Cause: cause, KeyID: keyID(current), Current: current}
}

func keyID(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func toLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func normalizeForCompare(s string) string {
	lines := strings.Split(toLF(s), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.Join(lines, "\n")
}
