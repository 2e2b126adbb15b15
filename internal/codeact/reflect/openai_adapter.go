package reflect

import (
	"context"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"codeact/internal/codeact"
	"codeact/internal/config"
)

type openAIAdapter struct {
	sdk   sdk.Client
	model string
}

func newOpenAIAdapter(cfg config.OpenAIConfig, httpClient *http.Client) *openAIAdapter {
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
		model = "gpt-4o-mini"
	}
	return &openAIAdapter{sdk: sdk.NewClient(opts...), model: model}
}

func (a *openAIAdapter) Reflect(ctx context.Context, requirement string, result codeact.ActionResult) (string, string, error) {
	comp, err := a.sdk.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(a.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(judgePrompt(requirement, result)),
		},
	})
	if err != nil {
		return "", "", err
	}
	if len(comp.Choices) == 0 {
		return "", "", errNoChoices
	}
	return parseVerdict(comp.Choices[0].Message.Content)
}
