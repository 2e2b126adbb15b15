package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPEmbedder implements Embedder against an OpenAI-compatible
// /embeddings endpoint, the same wire shape the prior embedding helper
// used, minus the chunk-level fan-out (callers embed one string at a
// time here; QdrantDocumentAdapter never batches).
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewHTTPEmbedder(endpoint, apiKey, model string, httpClient *http.Client) *HTTPEmbedder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPEmbedder{endpoint: endpoint, apiKey: apiKey, model: model, http: httpClient}
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: []string{text}, Model: e.model, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed with status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return parsed.Data[0].Embedding, nil
}
