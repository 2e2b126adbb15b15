package llmstream

import (
	"net/http"
	"strings"

	"codeact/internal/config"
)

// providerAuthHeader is the enumerable mapping from endpoint substring to
// the header a given provider expects its API key under. Extend this table, don't add conditionals elsewhere.
var providerAuthHeader = []struct {
	match  string
	header string
	extra  map[string]string
}{
	{match: "azure.com", header: "api-key"},
	{match: "openrouter.ai", header: "Authorization", extra: map[string]string{
		"HTTP-Referer": "https://codeact.local",
		"X-Title":      "codeact",
	}},
	{match: "anthropic.com", header: "x-api-key"},
}

func applyProviderAuth(req *http.Request, cfg config.SSEConfig) {
	if cfg.APIKey == "" {
		return
	}
	for _, p := range providerAuthHeader {
		if !strings.Contains(cfg.Endpoint, p.match) {
			continue
		}
		if p.header == "Authorization" {
			req.Header.Set(p.header, "Bearer "+cfg.APIKey)
		} else {
			req.Header.Set(p.header, cfg.APIKey)
		}
		for k, v := range p.extra {
			req.Header.Set(k, v)
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
}
