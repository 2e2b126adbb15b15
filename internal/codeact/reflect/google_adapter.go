package reflect

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"codeact/internal/codeact"
	"codeact/internal/config"
)

type googleAdapter struct {
	client *genai.Client
	model  string
}

func newGoogleAdapter(cfg config.GoogleConfig, httpClient *http.Client) (*googleAdapter, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google reflection client: %w", err)
	}
	return &googleAdapter{client: client, model: model}, nil
}

func (a *googleAdapter) Reflect(ctx context.Context, requirement string, result codeact.ActionResult) (string, string, error) {
	contents := []*genai.Content{genai.NewContentFromText(judgePrompt(requirement, result), genai.RoleUser)}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", "", err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", "", fmt.Errorf("reflection request blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", "", fmt.Errorf("no candidates in reflection response")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return parseVerdict(text.String())
}
