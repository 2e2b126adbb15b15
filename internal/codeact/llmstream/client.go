// Package llmstream implements component A: a tolerant SSE client for an
// OpenAI-compatible chat/completions endpoint, built on raw net/http
// streaming rather than a provider SDK so it can tolerate whatever
// delimiter and payload shape the configured backend emits.
package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"codeact/internal/config"
)

// allowedOptions is the pass-through option allow-list; anything else in
// Options is dropped before the request is sent.
var allowedOptions = map[string]bool{
	"temperature": true, "top_p": true, "max_tokens": true, "stop": true,
	"stream": true, "assistant_id": true, "response_format": true,
	"tools": true, "enable_thinking": true,
}

// Message is one chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is component A.
type Client struct {
	cfg  config.SSEConfig
	http *http.Client
}

// New constructs a Client. httpClient may be nil to use http.DefaultClient.
func New(cfg config.SSEConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\n\n"
	}
	return &Client{cfg: cfg, http: httpClient}
}

// OnToken is invoked synchronously, in arrival order, with each
// incremental chunk of accumulated text.
type OnToken func(chunk string)

// Chat sends prompt+history to the endpoint and returns the accumulated
// text. Cancellation via ctx flushes whatever was accumulated and returns
// it without error.
func (c *Client) Chat(ctx context.Context, history []Message, options map[string]any, onToken OnToken) (string, error) {
	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": history,
		"stream":   true,
	}
	for k, v := range options {
		if allowedOptions[k] {
			body[k] = v
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	applyProviderAuth(req, c.cfg)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	acc := newAccumulator()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	scanner.Split(splitOnDelimiter(c.cfg.Delimiter))

	// The scanner goroutine (producer) reads SSE chunks off resp.Body and
	// hands them to the consumer goroutine, which runs onToken and detects
	// the stream's logical end. consumeCtx is cancelled the moment the
	// consumer is done, so a producer blocked on a channel send during a
	// large/slow body doesn't leak past Chat's return.
	consumeCtx, cancelConsume := context.WithCancel(ctx)
	defer cancelConsume()

	g, gctx := errgroup.WithContext(consumeCtx)
	chunks := make(chan string)

	g.Go(func() error {
		defer close(chunks)
		for scanner.Scan() {
			select {
			case <-gctx.Done():
				return nil
			case chunks <- scanner.Text():
			}
		}
		return scanner.Err()
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case chunk, ok := <-chunks:
				if !ok {
					return nil
				}
				delta, done := acc.consume(chunk)
				if delta != "" && onToken != nil {
					onToken(delta)
				}
				if done {
					cancelConsume()
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return acc.flush(), fmt.Errorf("llm stream read error: %w", err)
	}
	if ctx.Err() != nil {
		return acc.flush(), nil
	}
	return acc.flush(), nil
}

// splitOnDelimiter is a bufio.SplitFunc that splits on an arbitrary
// (possibly multi-byte) delimiter instead of bufio.ScanLines' newline.
func splitOnDelimiter(delim string) bufio.SplitFunc {
	sep := []byte(delim)
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
