package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"codeact/internal/codeact"
)

// Embedder turns text into a vector for Qdrant storage/search. The
// embedding model itself is out of scope; callers plug in whatever
// provider-backed embedder the conversation's configuration names.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QdrantDocumentAdapter implements DocumentAdapter against one Qdrant
// collection, which Upload creates if it does not exist. Document ingestion/splitting is out
// of scope; this only upserts already-chunked text and runs similarity
// search.
type QdrantDocumentAdapter struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

func NewQdrantDocumentAdapter(client *qdrant.Client, embedder Embedder, collection string) *QdrantDocumentAdapter {
	return &QdrantDocumentAdapter{client: client, embedder: embedder, collection: collection}
}

func (a *QdrantDocumentAdapter) Query(ctx context.Context, params map[string]any) (codeact.ActionResult, error) {
	query, _ := params["query"].(string)
	if strings.TrimSpace(query) == "" {
		return codeact.ActionResult{}, fmt.Errorf("document_query requires a non-empty query")
	}
	topK := uint64(5)
	if v, ok := params["top_k"]; ok {
		var n int
		if _, err := fmt.Sscanf(fmt.Sprint(v), "%d", &n); err == nil && n > 0 {
			topK = uint64(n)
		}
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: a.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &topK,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("qdrant query: %w", err)
	}

	var b strings.Builder
	for i, hit := range hits {
		text := ""
		if v, ok := hit.Payload["text"]; ok {
			text = v.GetStringValue()
		}
		fmt.Fprintf(&b, "%d. (score=%.4f) %s\n", i+1, hit.Score, text)
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: strings.TrimSpace(b.String())}, nil
}

func (a *QdrantDocumentAdapter) Upload(ctx context.Context, params map[string]any) (codeact.ActionResult, error) {
	text, _ := params["content"].(string)
	if strings.TrimSpace(text) == "" {
		return codeact.ActionResult{}, fmt.Errorf("document_upload requires non-empty content")
	}
	id, _ := params["id"].(string)
	if id == "" {
		return codeact.ActionResult{}, fmt.Errorf("document_upload requires an id")
	}

	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("embed content: %w", err)
	}

	exists, err := a.client.CollectionExists(ctx, a.collection)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		if err := a.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: a.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(vec)),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil && !strings.Contains(err.Error(), "already exists") {
			return codeact.ActionResult{}, fmt.Errorf("create collection: %w", err)
		}
	}

	textVal, err := qdrant.NewValue(text)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("encode payload: %w", err)
	}

	_, err = a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: map[string]*qdrant.Value{"text": textVal},
		}},
	})
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("upsert point: %w", err)
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: fmt.Sprintf("uploaded document %s", id)}, nil
}
