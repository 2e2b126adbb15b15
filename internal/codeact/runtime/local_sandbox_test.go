package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact"
	"codeact/internal/codeact/workspace"
)

func TestLocalSandboxWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	sb := NewLocalSandboxClient(dir, time.Second)
	ctx := context.Background()

	write := codeact.Action{Type: codeact.ActionWriteCode, Params: map[string]any{"path": "pkg/main.go", "content": "package main\n"}}
	res, err := sb.Execute(ctx, write, "u1", "user1")
	require.NoError(t, err)
	require.True(t, res.Ok())

	read := codeact.Action{Type: codeact.ActionReadFile, Params: map[string]any{"path": "pkg/main.go"}}
	res, err = sb.Execute(ctx, read, "u1", "user1")
	require.NoError(t, err)
	require.True(t, res.Ok())
	assert.Equal(t, "package main\n", res.Content)
}

func TestLocalSandboxRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	sb := NewLocalSandboxClient(dir, time.Second)

	write := codeact.Action{Type: codeact.ActionWriteCode, Params: map[string]any{"path": "../../etc/passwd", "content": "x"}}
	_, err := sb.Execute(context.Background(), write, "u1", "user1")
	assert.Error(t, err, "expected path escape to be rejected")
}

func TestLocalSandboxReplaceCodeBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc old() int {\n\treturn 1\n}\n"), 0o644))
	sb := NewLocalSandboxClient(dir, time.Second)

	replace := codeact.Action{Type: codeact.ActionReplaceCodeBlock, Params: map[string]any{
		"path":       "main.go",
		"code_block": "func old() int {\n\treturn 2\n}\n",
	}}
	res, err := sb.Execute(context.Background(), replace, "u1", "user1")
	require.NoError(t, err)
	require.True(t, res.Ok())
	b, _ := os.ReadFile(path)
	assert.Contains(t, string(b), "return 2", "replacement not applied")
}

func TestLocalSandboxReplaceCodeBlockNoOpSurfacesKeyID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	content := "package main\n\nfunc old() int {\n\treturn 1\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sb := NewLocalSandboxClient(dir, time.Second)

	replace := codeact.Action{Type: codeact.ActionReplaceCodeBlock, Params: map[string]any{
		"path":       "main.go",
		"code_block": "func old() int {\n\treturn 1\n}\n",
	}}
	res, err := sb.Execute(context.Background(), replace, "u1", "user1")
	require.NoError(t, err)
	assert.False(t, res.Ok())
	assert.Equal(t, workspace.NoOpKeyID, res.Meta.KeyID)
}

func TestLocalSandboxTerminalRun(t *testing.T) {
	dir := t.TempDir()
	sb := NewLocalSandboxClient(dir, 2*time.Second)

	run := codeact.Action{Type: codeact.ActionTerminalRun, Params: map[string]any{"command": "echo", "args": "hello"}}
	res, err := sb.Execute(context.Background(), run, "u1", "user1")
	require.NoError(t, err)
	require.True(t, res.Ok())
	assert.Contains(t, res.Stdout, "hello")
}

func TestLocalSandboxTerminalRunTimeout(t *testing.T) {
	dir := t.TempDir()
	sb := NewLocalSandboxClient(dir, 50*time.Millisecond)

	run := codeact.Action{Type: codeact.ActionTerminalRun, Params: map[string]any{"command": "sleep", "args": "5"}}
	res, err := sb.Execute(context.Background(), run, "u1", "user1")
	require.NoError(t, err)
	assert.False(t, res.Ok(), "expected timeout failure")
}
