package mcpclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestSanitizeSchema_ObjectAddsProperties(t *testing.T) {
	s := map[string]any{"type": "object"}
	sanitizeSchema(s, "")
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok, "expected properties map, got %#v", s["properties"])
	assert.NotNil(t, props)
}

func TestSanitizeSchema_ArrayAddsItems(t *testing.T) {
	s := map[string]any{"type": "array"}
	sanitizeSchema(s, "")
	v, ok := s["items"].(map[string]any)
	require.True(t, ok, "expected items map, got %#v", s["items"])
	assert.Equal(t, "string", v["type"], "expected default items.type string")
}

func TestSanitizeSchema_CompositionAndRequiredNormalization(t *testing.T) {
	// Build a schema with oneOf and required as []any
	top := map[string]any{
		"oneOf": []any{
			map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{}}, "required": []any{"a"}},
		},
		"required": []any{"root"},
	}
	sanitizeSchema(top, "")
	// Ensure nested required normalized to []string
	one := top["oneOf"].([]any)[0].(map[string]any)
	_, ok := one["required"].([]string)
	assert.True(t, ok, "expected nested required to be []string, got %#v", one["required"])
	_, ok = top["required"].([]string)
	assert.True(t, ok, "expected top required to be []string, got %#v", top["required"])
}

func TestMCPTool_JSONSchema_DefaultsAndDescription(t *testing.T) {
	// Create a tool with nil InputSchema to exercise defaults
	tool := &mcpTool{server: "s", session: nil, tool: &mcppkg.Tool{Name: "t", Description: "d", InputSchema: nil}}
	out := tool.JSONSchema()
	// Should include parameters with type object and properties map
	params, ok := out["parameters"].(map[string]any)
	require.True(t, ok, "expected parameters map, got %#v", out["parameters"])
	assert.Equal(t, "object", params["type"])
	_, ok = params["properties"].(map[string]any)
	assert.True(t, ok, "expected properties map, got %#v", params["properties"])
	assert.Equal(t, "d", out["description"])
	// Ensure we can marshal to JSON
	_, err := json.Marshal(out)
	assert.NoError(t, err)
}
