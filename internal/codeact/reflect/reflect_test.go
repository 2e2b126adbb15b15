package reflect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact"
)

func TestParseVerdictExtractsJSONAmidProse(t *testing.T) {
	status, comments, err := parseVerdict("Sure thing! {\"status\":\"SUCCESS\",\"comments\":\"looks right\"} thanks")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", status)
	assert.Equal(t, "looks right", comments)
}

func TestParseVerdictRejectsInvalidStatus(t *testing.T) {
	_, _, err := parseVerdict(`{"status":"MAYBE","comments":"unsure"}`)
	assert.Error(t, err, "expected error for non SUCCESS/FAILED status")
}

func TestParseVerdictRejectsMissingJSON(t *testing.T) {
	_, _, err := parseVerdict("no json here")
	assert.Error(t, err, "expected error when no JSON object is present")
}

func TestJudgePromptIncludesRequirementAndResult(t *testing.T) {
	prompt := judgePrompt("implement the handler", codeact.ActionResult{Status: codeact.StatusFailure, Content: "boom", Error: "panic"})
	assert.Contains(t, prompt, "implement the handler")
	assert.Contains(t, prompt, "boom")
	assert.Contains(t, prompt, "panic")
}

func TestTruncateLeavesShortStringsUnchanged(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
}
