package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"codeact/internal/codeact"
	"codeact/internal/codeact/llmstream"
	"codeact/internal/config"
)

// ChromeDPBrowserAdapter answers a browser action's question by rendering
// the adapter's configured navigate URL (or about:blank) with headless Chrome,
// capturing its text, and asking the conversation's default LLM to answer
// the question against that text.
type ChromeDPBrowserAdapter struct {
	allocOpts []chromedp.ExecAllocatorOption
	navigate  string // optional fixed URL; empty renders about:blank
}

func NewChromeDPBrowserAdapter(navigate string) *ChromeDPBrowserAdapter {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	return &ChromeDPBrowserAdapter{allocOpts: opts, navigate: navigate}
}

func (a *ChromeDPBrowserAdapter) Ask(ctx context.Context, question string, creds LLMCredentials) (codeact.ActionResult, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, a.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelTimeout := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelTimeout()

	target := a.navigate
	if target == "" {
		target = "about:blank"
	}

	var pageText string
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &pageText, chromedp.ByQuery),
	); err != nil {
		return codeact.ActionResult{}, fmt.Errorf("browser render: %w", err)
	}

	if creds.Endpoint == "" {
		return codeact.ActionResult{Status: codeact.StatusSuccess, Content: pageText}, nil
	}

	client := llmstream.New(config.SSEConfig{Endpoint: creds.Endpoint, APIKey: creds.APIKey, Model: creds.Model}, nil)
	prompt := fmt.Sprintf("Given this rendered page text:\n\n%s\n\nAnswer the question: %s", pageText, question)
	answer, err := client.Chat(ctx, []llmstream.Message{{Role: "user", Content: prompt}}, nil, nil)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("browser LLM answer: %w", err)
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: answer}, nil
}
