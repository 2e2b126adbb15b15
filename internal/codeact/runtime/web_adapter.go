package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"

	"codeact/internal/codeact"
)

// HTTPWebAdapter implements WebAdapter: read_url via go-readability +
// html-to-markdown, web_search against a configurable search endpoint that
// returns a JSON array of {title,url,snippet}.
type HTTPWebAdapter struct {
	client       *http.Client
	searchURL    string // e.g. a SearxNG/Brave/Serper-compatible endpoint
	searchAPIKey string
	maxBytes     int64
}

func NewHTTPWebAdapter(searchURL, searchAPIKey string) *HTTPWebAdapter {
	return &HTTPWebAdapter{
		client:       &http.Client{Timeout: 20 * time.Second},
		searchURL:    searchURL,
		searchAPIKey: searchAPIKey,
		maxBytes:     8 * 1000 * 1000,
	}
}

func (a *HTTPWebAdapter) ReadURL(ctx context.Context, rawURL string) (codeact.ActionResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return codeact.ActionResult{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; codeact/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes+1))
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > a.maxBytes {
		return codeact.ActionResult{}, fmt.Errorf("response exceeds max bytes (%d)", a.maxBytes)
	}

	finalURL := resp.Request.URL.String()
	html := string(body)

	var articleHTML, title string
	base, _ := url.Parse(finalURL)
	if art, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	} else {
		articleHTML = html
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(base.Scheme+"://"+base.Host))
	if err != nil {
		return codeact.ActionResult{}, fmt.Errorf("html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}

	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: md, Extra: map[string]any{"final_url": finalURL, "title": title}}, nil
}

type searchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (a *HTTPWebAdapter) Search(ctx context.Context, query string, numResults int) (codeact.ActionResult, error) {
	if a.searchURL == "" {
		return codeact.ActionResult{}, fmt.Errorf("web_search endpoint not configured")
	}
	if numResults <= 0 {
		numResults = 5
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.searchURL, nil)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprint(numResults))
	req.URL.RawQuery = q.Encode()
	if a.searchAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.searchAPIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return codeact.ActionResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return codeact.ActionResult{}, fmt.Errorf("search endpoint returned %d", resp.StatusCode)
	}

	var hits []searchHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return codeact.ActionResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(hits) > numResults {
		hits = hits[:numResults]
	}

	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, h.Title, h.URL, h.Snippet)
	}
	return codeact.ActionResult{Status: codeact.StatusSuccess, Content: strings.TrimSpace(b.String())}, nil
}
