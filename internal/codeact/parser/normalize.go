package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

var envelopeRe = regexp.MustCompile(`(?s)<\|channel\|>([^<]*?)<\|message\|>(.*?)(?:<\|end\|>|$)`)
var toHintRe = regexp.MustCompile(`\bto=(?:functions\.)?([A-Za-z_][A-Za-z0-9_]*)`)
var finishAttrRe = regexp.MustCompile(`<finish\s+status="([^"]*)"\s+message="([^"]*)"\s*/>`)

// Normalize applies the envelope-stripping, JSON-to-XML lifting and
// self-closing-tag rewriting passes before block extraction runs. It is
// idempotent: re-normalizing its own output is a no-op.
func Normalize(raw string) string {
	out := stripEnvelopes(raw)
	out = liftJSONToolCalls(out)
	out = finishAttrRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := finishAttrRe.FindStringSubmatch(m)
		return "<finish><status>" + sub[1] + "</status><message><![CDATA[" + sub[2] + "]]></message></finish>"
	})
	return out
}

// stripEnvelopes removes `<|channel|>...<|message|>` wrappers, keeping the
// payload. When the channel segment carries `to=<tool>`, and the remaining
// payload is a JSON object, the payload is wrapped as `<hintedTool>...</hintedTool>` (step 3).
func stripEnvelopes(raw string) string {
	return envelopeRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := envelopeRe.FindStringSubmatch(m)
		channel, payload := sub[1], strings.TrimSpace(sub[2])
		hint := toHintRe.FindStringSubmatch(channel)
		if hint == nil {
			return payload
		}
		tool := hint[1]
		if strings.HasPrefix(payload, "<") {
			return payload
		}
		var params map[string]any
		if json.Unmarshal([]byte(payload), &params) == nil {
			return wrapParamsAsXML(tool, params)
		}
		return "<" + tool + ">" + payload + "</" + tool + ">"
	})
}

// liftJSONToolCalls scans for known JSON tool-call shapes and rewrites
// each to its canonical `<name>...</name>` form.
// Shapes recognized: {type:"tool_call",name,arguments}, {name,
// arguments|params}, {tool_calls:[{function:{name,arguments}}]},
// {choices:[{message:{tool_calls:[...]}}]}, {output:[{type:"tool_call",
// name,arguments}...]}.
func liftJSONToolCalls(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			b.WriteByte(s[i])
			i++
			continue
		}
		candidate := s[i : end+1]
		if xml, ok := jsonToolCallToXML(candidate); ok {
			b.WriteString(xml)
			i = end + 1
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// matchBrace returns the index of the '{' at start's matching '}', or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			if esc {
				esc = false
			} else if c == '\\' {
				esc = true
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func jsonToolCallToXML(candidate string) (string, bool) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(candidate), &generic); err != nil {
		return "", false
	}

	if choices, ok := generic["choices"].([]any); ok && len(choices) > 0 {
		if m, ok := choices[0].(map[string]any); ok {
			if msg, ok := m["message"].(map[string]any); ok {
				if calls, ok := msg["tool_calls"].([]any); ok {
					return renderToolCalls(calls)
				}
			}
		}
		return "", false
	}

	if calls, ok := generic["tool_calls"].([]any); ok {
		return renderToolCalls(calls)
	}

	if out, ok := generic["output"].([]any); ok {
		var b strings.Builder
		wrote := false
		for _, item := range out {
			m, ok := item.(map[string]any)
			if !ok || m["type"] != "tool_call" {
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				continue
			}
			b.WriteString(wrapArguments(name, m["arguments"]))
			wrote = true
		}
		return b.String(), wrote
	}

	if generic["type"] == "tool_call" {
		name, _ := generic["name"].(string)
		if name == "" {
			return "", false
		}
		return wrapArguments(name, generic["arguments"]), true
	}

	if name, ok := generic["name"].(string); ok && name != "" {
		args, hasArgs := generic["arguments"]
		if !hasArgs {
			args, hasArgs = generic["params"]
		}
		if hasArgs {
			return wrapArguments(name, args), true
		}
	}

	return "", false
}

func renderToolCalls(calls []any) (string, bool) {
	var b strings.Builder
	wrote := false
	for _, c := range calls {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		fn, ok := m["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		if name == "" {
			continue
		}
		b.WriteString(wrapArguments(name, fn["arguments"]))
		wrote = true
	}
	return b.String(), wrote
}

// wrapArguments renders a tool call's arguments (an object, or a JSON
// string encoding one) as `<name>...</name>`.
func wrapArguments(name string, arguments any) string {
	var params map[string]any
	switch v := arguments.(type) {
	case map[string]any:
		params = v
	case string:
		_ = json.Unmarshal([]byte(v), &params)
	}
	return wrapParamsAsXML(name, params)
}

func wrapParamsAsXML(name string, params map[string]any) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(name)
	b.WriteString(">")
	for k, v := range params {
		b.WriteString("<")
		b.WriteString(k)
		b.WriteString(">")
		text := stringifyParam(v)
		if payloadFields[k] && !strings.HasPrefix(strings.TrimSpace(text), "<![CDATA[") {
			b.WriteString("<![CDATA[")
			b.WriteString(text)
			b.WriteString("]]>")
		} else {
			b.WriteString(text)
		}
		b.WriteString("</")
		b.WriteString(k)
		b.WriteString(">")
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">")
	return b.String()
}

func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
