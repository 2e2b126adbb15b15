package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactJSON_SimpleAndNested(t *testing.T) {
	in := map[string]any{
		"api_key": "secret123",
		"user": map[string]any{
			"name":     "alice",
			"password": "hunter2",
		},
		"items": []any{
			map[string]any{"token": "tok"},
			"plain",
		},
		"note": "keepme",
	}
	b, _ := json.Marshal(in)
	out := RedactJSON(b)
	var v any
	require.NoError(t, json.Unmarshal(out, &v))
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected map, got %T", v)

	assert.Equal(t, "[REDACTED]", m["api_key"])
	user := m["user"].(map[string]any)
	assert.Equal(t, "[REDACTED]", user["password"])
	items := m["items"].([]any)
	first := items[0].(map[string]any)
	assert.Equal(t, "[REDACTED]", first["token"])
	assert.Equal(t, "keepme", m["note"], "non-sensitive value mutated")
}

func TestRedactJSON_EmptyAndInvalid(t *testing.T) {
	empty := json.RawMessage(nil)
	assert.Nil(t, RedactJSON(empty), "expected nil raw for empty input")

	raw := json.RawMessage([]byte("notjson"))
	res := RedactJSON(raw)
	assert.Equal(t, "notjson", string(res), "expected original bytes for invalid json")
}
