package reflect

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"codeact/internal/codeact"
	"codeact/internal/config"
)

const anthropicMaxTokens int64 = 512

type anthropicAdapter struct {
	sdk   anthropic.Client
	model string
}

func newAnthropicAdapter(cfg config.AnthropicConfig, httpClient *http.Client) *anthropicAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicAdapter{sdk: anthropic.NewClient(opts...), model: model}
}

func (a *anthropicAdapter) Reflect(ctx context.Context, requirement string, result codeact.ActionResult) (string, string, error) {
	resp, err := a.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(judgePrompt(requirement, result))),
		},
	})
	if err != nil {
		return "", "", err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return parseVerdict(text.String())
}
