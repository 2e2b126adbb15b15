// Package reflect implements component I: a narrow {status, comments}
// judge the control loop (F) consults between turns, backed by whichever
// of three vendor SDKs the deployment configures.
package reflect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"codeact/internal/codeact"
	"codeact/internal/config"
)

var errNoChoices = fmt.Errorf("reflection provider returned no choices")

// Adapter is the contract F depends on.
type Adapter interface {
	Reflect(ctx context.Context, requirement string, result codeact.ActionResult) (status string, comments string, err error)
}

// Build selects and constructs the configured reflection adapter.
func Build(cfg config.ReflectionConfig, httpClient *http.Client) (Adapter, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return newAnthropicAdapter(cfg.Anthropic, httpClient), nil
	case "openai":
		return newOpenAIAdapter(cfg.OpenAI, httpClient), nil
	case "google":
		return newGoogleAdapter(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported reflection provider: %s", cfg.Provider)
	}
}

// judgePrompt is shared across providers: a small contract asking for a
// strict JSON verdict rather than free-form prose.
func judgePrompt(requirement string, result codeact.ActionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Requirement:\n%s\n\n", requirement)
	fmt.Fprintf(&b, "Most recent action result (ok=%v):\n%s\n\n", result.Ok(), truncate(result.Content, 4000))
	if result.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", result.Error)
	}
	b.WriteString(`Judge whether the requirement is satisfied. Respond with exactly one JSON object ` +
		`of the form {"status":"SUCCESS"|"FAILED","comments":"<one or two sentences>"} and nothing else.`)
	return b.String()
}

type verdict struct {
	Status   string `json:"status"`
	Comments string `json:"comments"`
}

// parseVerdict extracts the JSON object the prompt asked for, tolerating
// surrounding prose the model ignored the instruction and added anyway.
func parseVerdict(text string) (string, string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", "", fmt.Errorf("no JSON verdict found in reflection response")
	}
	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return "", "", fmt.Errorf("decode verdict: %w", err)
	}
	status := strings.ToUpper(strings.TrimSpace(v.Status))
	if status != "SUCCESS" && status != "FAILED" {
		return "", "", fmt.Errorf("verdict status must be SUCCESS or FAILED, got %q", v.Status)
	}
	return status, v.Comments, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
