package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedderParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		assert.Equal(t, "hello world", req.Input[0])
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1, 0.2, 0.3}}}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "secret", "text-embed", srv.Client())
	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, 3)
	assert.Equal(t, float32(0.1), vec[0])
}

func TestHTTPEmbedderRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "", "m", srv.Client())
	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err, "expected error on non-200 status")
}
