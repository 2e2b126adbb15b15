package prompt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/tools"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string { return s.name }
func (s *stubTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "a stub tool",
		"parameters": map[string]any{
			"properties": map[string]any{"foo": map[string]any{"type": "string"}},
		},
	}
}
func (s *stubTool) Call(ctx context.Context, raw json.RawMessage) (any, error) { return nil, nil }

func TestRegistryCatalogSurfacesRegisteredTools(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "search_docs"})

	cat := NewRegistryCatalog(reg)
	specs := cat.Tools()
	require.Len(t, specs, 1)
	assert.Equal(t, "search_docs", specs[0].Name)
	assert.Equal(t, "a stub tool", specs[0].Description)
	require.Len(t, specs[0].Fields, 1)
	assert.Equal(t, "foo", specs[0].Fields[0])
}

func TestRegistryCatalogNilRegistryReturnsEmpty(t *testing.T) {
	cat := NewRegistryCatalog(nil)
	assert.Nil(t, cat.Tools())
}
