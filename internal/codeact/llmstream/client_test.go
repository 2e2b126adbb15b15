package llmstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/config"
)

func sseServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, c := range chunks {
			fmt.Fprint(w, "data: "+c+"\n\n")
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestChatAccumulatesContentDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
	})
	defer srv.Close()

	c := New(config.SSEConfig{Endpoint: srv.URL, Model: "m"}, srv.Client())
	var got []string
	out, err := c.Chat(context.Background(), nil, nil, func(chunk string) { got = append(got, chunk) })
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "hello", strings.Join(got, ""), "callback chunks mismatch")
}

func TestChatReasoningWrappedInThink(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"reasoning_content":"thinking..."}}]}`,
		`{"choices":[{"delta":{"content":"answer"}}]}`,
	})
	defer srv.Close()

	c := New(config.SSEConfig{Endpoint: srv.URL, Model: "m"}, srv.Client())
	out, err := c.Chat(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<think>thinking...</think>"), "expected wrapped reasoning prefix, got %q", out)
	assert.True(t, strings.HasSuffix(out, "answer"), "expected trailing answer, got %q", out)
}

func TestChatIgnoresUnparseableMessages(t *testing.T) {
	srv := sseServer(t, []string{
		`not json at all`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	})
	defer srv.Close()

	c := New(config.SSEConfig{Endpoint: srv.URL, Model: "m"}, srv.Client())
	out, err := c.Chat(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestChatEmptyStreamResolvesEmpty(t *testing.T) {
	srv := sseServer(t, nil)
	defer srv.Close()

	c := New(config.SSEConfig{Endpoint: srv.URL, Model: "m"}, srv.Client())
	out, err := c.Chat(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChatDropsDisallowedOptions(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 4096)
		n, _ := r.Body.Read(b)
		body = string(b[:n])
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(config.SSEConfig{Endpoint: srv.URL, Model: "m"}, srv.Client())
	_, err := c.Chat(context.Background(), nil, map[string]any{
		"temperature": 0.2,
		"unknown_bad": "x",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, body, "temperature", "expected temperature to pass through")
	assert.NotContains(t, body, "unknown_bad", "expected unknown_bad to be dropped")
}
