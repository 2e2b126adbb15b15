package llmstream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// accumulator handles per-message SSE parsing: strip an optional "data:"
// prefix, treat "[DONE]" as end-of-stream, JSON-parse the payload, extract
// delta.content/delta.reasoning_content, and on parse failure keep
// buffering rather than treating it as a terminator.
type accumulator struct {
	text           strings.Builder
	reasoning      strings.Builder
	reasoningSeen  bool
	textSeenBefore bool
	tailBuffer     string
}

func newAccumulator() *accumulator {
	return &accumulator{}
}

// consume processes one delimiter-separated SSE message and returns the
// incremental text delta (for the per-token callback) plus whether the
// stream has ended.
func (a *accumulator) consume(raw string) (delta string, done bool) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", false
	}
	msg = strings.TrimPrefix(msg, "data:")
	msg = strings.TrimSpace(msg)
	if msg == "[DONE]" {
		return "", true
	}

	a.tailBuffer = msg

	var payload struct {
		Choices []struct {
			Delta struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		// Not a terminator: keep buffering (spec: "do not treat as
		// terminator; continue buffering").
		return "", false
	}
	if len(payload.Choices) == 0 {
		return "", false
	}
	d := payload.Choices[0].Delta
	var out strings.Builder
	if d.ReasoningContent != "" {
		if !a.reasoningSeen {
			a.reasoningSeen = true
		}
		a.reasoning.WriteString(d.ReasoningContent)
		out.WriteString(d.ReasoningContent)
	}
	if d.Content != "" {
		if a.reasoningSeen && !a.textSeenBefore {
			// Reasoning appeared before any text: wrap it and prepend once.
			wrapped := "<think>" + a.reasoning.String() + "</think>"
			a.text.WriteString(wrapped)
			out.Reset()
			out.WriteString(wrapped)
		}
		a.text.WriteString(d.Content)
		out.WriteString(d.Content)
		a.textSeenBefore = true
	}
	return out.String(), false
}

var tailContentRe = regexp.MustCompile(`"(?:reasoning_)?content"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// flush returns the accumulated text. If no text was accumulated, it makes a best-effort extraction of a trailing
// "content":"..."/"reasoning_content":"..." fragment from the last raw
// message seen.
func (a *accumulator) flush() string {
	if a.text.Len() > 0 {
		return a.text.String()
	}
	if a.tailBuffer == "" {
		return ""
	}
	matches := tailContentRe.FindAllStringSubmatch(a.tailBuffer, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1][1]
	var unescaped string
	if json.Unmarshal([]byte(`"`+last+`"`), &unescaped) == nil {
		return unescaped
	}
	return last
}
