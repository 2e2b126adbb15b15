package workspace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsTraversal(t *testing.T) {
	_, err := Resolve("/ws/user_1", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrTraversal)

	_, err = Resolve("/ws/user_1", "/etc/passwd")
	assert.ErrorIs(t, err, ErrTraversal, "expected ErrTraversal for absolute path")
}

func TestResolveAllowsNested(t *testing.T) {
	got, err := Resolve("/ws/user_1", "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, "/ws/user_1/pkg/a.go", got)
}

func TestReplaceCodeBlockUniqueAnchor(t *testing.T) {
	current := "def f():\n    return 1\n\ndef g():\n    return 1\n"
	// Both functions return 1; a single-line anchor "    return 1" is
	// ambiguous, so the snippet must extend to the unique preceding line.
	snippet := "def g():\n    return 1\n"
	out, err := ReplaceCodeBlock(current, snippet)
	require.NoError(t, err)
	assert.Contains(t, out, "def g():\n    return 1\n")
}

func TestReplaceCodeBlockNoOp(t *testing.T) {
	current := "def f():\n    return 1\n"
	snippet := "def f():\n    return 1\n"
	_, err := ReplaceCodeBlock(current, snippet)
	assert.ErrorIs(t, err, ErrNoOp)
}

func TestReplaceCodeBlockAmbiguousFailsWithFullFile(t *testing.T) {
	current := "x = 1\nx = 1\n"
	snippet := "x = 1\n"
	_, err := ReplaceCodeBlock(current, snippet)
	require.Error(t, err, "expected ambiguity error")
	assert.Contains(t, err.Error(), "keyid=")
	assert.Contains(t, err.Error(), current, "error missing diagnostic context")

	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.NotEmpty(t, ambiguous.KeyID)
}

func TestPyGuardrailRejectsInput(t *testing.T) {
	assert.Error(t, CheckPyGuardrail("a.py", "x = input()\n"))
}

func TestPyGuardrailIgnoresInputInsideString(t *testing.T) {
	assert.NoError(t, CheckPyGuardrail("a.py", "x = \"call input() here\"\n"))
}

func TestPyGuardrailIgnoresNonPyFiles(t *testing.T) {
	assert.NoError(t, CheckPyGuardrail("a.go", "input()\n"))
}

func TestApplyPatchSimpleHunk(t *testing.T) {
	current := "line1\nline2\nline3\n"
	diff := "@@ -1,3 +1,3 @@\n line1\n-line2\n+line2 changed\n line3\n"
	out, err := ApplyPatch(current, diff)
	require.NoError(t, err)
	assert.Contains(t, out, "line2 changed", "patch not applied")
}

func TestApplyPatchRejectsSingleLineNeedle(t *testing.T) {
	current := "line1\n"
	diff := "@@ -1,1 +1,1 @@\n-line1\n+line1 changed\n"
	_, err := ApplyPatch(current, diff)
	require.Error(t, err, "expected single-line needle to be rejected as too fragile")
	assert.Contains(t, err.Error(), "needle")
}

func TestLocateHunkFindsUniqueMatchWithinWindow(t *testing.T) {
	lines := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		lines = append(lines, "filler")
	}
	lines[30] = "func target() int {"
	lines[31] = "\treturn 1"

	needle := []string{"func target() int {", "\treturn 1"}
	// Declared at line 10, actual content sits at line 30: within the
	// ±200 line window, found exactly once.
	start, err := locateHunk(lines, needle, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, start)
}

func TestLocateHunkRejectsAmbiguousDuplicateContext(t *testing.T) {
	lines := []string{
		"func a() int {", "\treturn 1", "}",
		"func b() int {", "\treturn 1", "}",
	}
	needle := []string{"\treturn 1"}
	_, err := locateHunk(lines, needle, 0)
	require.Error(t, err, "expected ambiguous match to be rejected")
	assert.Contains(t, strings.ToLower(err.Error()), "ambiguous")
}

func TestLocateHunkFallsBackToGlobalSearch(t *testing.T) {
	lines := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		lines = append(lines, "filler")
	}
	lines[450] = "func farAway() int {"
	lines[451] = "\treturn 7"

	needle := []string{"func farAway() int {", "\treturn 7"}
	// Declared near line 0, far outside the ±200 window around the real
	// position; only the global tier finds it.
	start, err := locateHunk(lines, needle, 0)
	require.NoError(t, err)
	assert.Equal(t, 450, start)
}
