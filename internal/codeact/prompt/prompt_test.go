package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact/loop"
)

type fakeMemory struct{ content string }

func (f fakeMemory) MemorizedContent() string { return f.content }

func TestBuildIncludesRoleHeaderGoalAndCatalog(t *testing.T) {
	b := New("", fakeMemory{}, nil, nil)
	state := &loop.TaskState{PromptMode: loop.ModeBuild, RootGoal: "ship the feature", CurrentRequirement: "add the handler"}

	out, err := b.Build(context.Background(), state)
	require.NoError(t, err)
	assert.Contains(t, out, "ship the feature")
	assert.Contains(t, out, "add the handler")
	assert.Contains(t, out, "write_code", "expected tool catalog entries")
	assert.Contains(t, out, "finish")
}

func TestBuildSwitchesRoleHeaderByMode(t *testing.T) {
	b := New("", fakeMemory{}, nil, nil)

	buildPrompt, _ := b.Build(context.Background(), &loop.TaskState{PromptMode: loop.ModeBuild})
	correctorPrompt, _ := b.Build(context.Background(), &loop.TaskState{PromptMode: loop.ModeCodeCorrector})

	assert.NotEqual(t, buildPrompt, correctorPrompt, "expected distinct role headers for build vs codecorrector modes")
	assert.Contains(t, correctorPrompt, "previous terminal command failed", "expected codecorrector framing")
}

func TestBuildOmitsErrorFeedbackOnSuccess(t *testing.T) {
	b := New("", fakeMemory{}, nil, nil)
	state := &loop.TaskState{LastFinishStatus: "SUCCESS", ErrorFeedback: "stale feedback"}

	out, _ := b.Build(context.Background(), state)
	assert.NotContains(t, out, "stale feedback", "expected error feedback to be gated on non-success finish status")
}

func TestBuildIncludesErrorFeedbackOnNonSuccess(t *testing.T) {
	b := New("", fakeMemory{}, nil, nil)
	state := &loop.TaskState{LastFinishStatus: "FAILED", ErrorFeedback: "nil pointer panic"}

	out, _ := b.Build(context.Background(), state)
	assert.Contains(t, out, "nil pointer panic", "expected error feedback block")
}

func TestRenderWorkspaceListingSkipsConventionalDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "left-pad"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "left-pad", "index.js"), []byte(""), 0o644))

	out := renderWorkspaceListing(root)
	assert.NotContains(t, out, "node_modules", "expected node_modules to be skipped")
	assert.Contains(t, out, "src", "expected src to be listed")
}
