package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"codeact/internal/codeact"
)

// HTTPSandboxClient implements SandboxClient against the sandbox HTTP
// contract: POST /execute_action, response {message, data:ActionResult}.
type HTTPSandboxClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPSandboxClient builds a client. httpClient is expected to already
// carry auth (see NewOIDCHTTPClient) and OTel instrumentation (see
// internal/observability.NewHTTPClient).
func NewHTTPSandboxClient(baseURL string, httpClient *http.Client) *HTTPSandboxClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPSandboxClient{baseURL: baseURL, http: httpClient}
}

type executeActionRequest struct {
	Action codeact.Action `json:"action"`
	UUID   string         `json:"uuid"`
	UserID string         `json:"user_id,omitempty"`
}

type executeActionResponse struct {
	Message string               `json:"message"`
	Data    *codeact.ActionResult `json:"data"`
}

func (c *HTTPSandboxClient) Execute(ctx context.Context, action codeact.Action, uuid, userID string) (codeact.ActionResult, error) {
	reqBody, err := json.Marshal(executeActionRequest{Action: action, UUID: uuid, UserID: userID})
	if err != nil {
		return codeact.ActionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute_action", bytes.NewReader(reqBody))
	if err != nil {
		return codeact.ActionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return codeact.ActionResult{}, classifyHTTPError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return codeact.ActionResult{}, fmt.Errorf("sandbox http %d: %v", resp.StatusCode, errBody)
	}

	var parsed executeActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return codeact.ActionResult{}, fmt.Errorf("sandbox response decode: %w", err)
	}
	if parsed.Data == nil {
		return codeact.ActionResult{}, fmt.Errorf("sandbox response missing data: %s", parsed.Message)
	}
	return *parsed.Data, nil
}

// classifyHTTPError wraps a net-level transport error for diagnostics.
func classifyHTTPError(err error) error {
	return fmt.Errorf("sandbox transport error: %w", err)
}
