package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"codeact/internal/codeact"
)

// ParseActions runs the full parsing pipeline over one LLM turn's raw
// output and returns the resolved actions. An input producing zero blocks
// but non-empty text yields no actions (the caller treats that as a parse
// error). A block that fails structural/argument validation becomes a
// synthetic evaluation(failure) action rather than being dropped, so the
// model sees why.
func ParseActions(raw string) []codeact.Action {
	normalized := Normalize(raw)
	blocks := ExtractBlocks(normalized)
	actions := make([]codeact.Action, 0, len(blocks))
	for _, blk := range blocks {
		act, err := resolveBlock(blk)
		if err != nil {
			actions = append(actions, syntheticFailure(blk.ToolName, err))
			continue
		}
		actions = append(actions, act)
	}
	return actions
}

func syntheticFailure(tool string, err error) codeact.Action {
	return codeact.Action{
		Type: codeact.ActionEvaluation,
		Params: map[string]any{
			"status":   "failure",
			"comments": fmt.Sprintf("invalid %s block: %v", tool, err),
		},
	}
}

func resolveBlock(blk Block) (codeact.Action, error) {
	fields := extractFields(blk.XML)
	act := codeact.Action{Type: codeact.ActionType(blk.ToolName), Params: map[string]any{}}
	for k, v := range fields {
		if payloadFields[k] {
			act.Params[k] = v
		} else {
			act.Params[k] = strings.TrimSpace(v)
		}
	}

	if err := structuralValidate(blk.ToolName, act.Params); err != nil {
		return codeact.Action{}, err
	}

	switch blk.ToolName {
	case "terminal_run":
		normalizeTerminalArgs(act.Params)
	case "mcp_tool":
		if raw, ok := act.Params["arguments"].(string); ok && strings.TrimSpace(raw) != "" {
			var obj map[string]any
			if err := json.Unmarshal([]byte(raw), &obj); err == nil {
				act.Params["arguments"] = obj
			}
		}
	}

	if err := argumentValidate(blk.ToolName, act.Params); err != nil {
		return codeact.Action{}, err
	}

	return act, nil
}

// extractFields parses one level of child elements under the outer tag of
// an XML block, unwrapping CDATA payloads. Fields do not nest further in
// the tool catalog, so a single level suffices.
func extractFields(xml string) map[string]string {
	_, bodyStart, ok := readOpenTag(xml, 0)
	if !ok {
		return nil
	}
	outerName, _, _ := readOpenTag(xml, 0)
	outerClose := "</" + outerName + ">"
	bodyEnd := strings.LastIndex(xml, outerClose)
	if bodyEnd < 0 || bodyEnd < bodyStart {
		return nil
	}
	body := xml[bodyStart:bodyEnd]

	fields := map[string]string{}
	i := 0
	for i < len(body) {
		lt := strings.IndexByte(body[i:], '<')
		if lt < 0 {
			break
		}
		start := i + lt
		name, childBodyStart, ok := readOpenTag(body, start)
		if !ok {
			i = start + 1
			continue
		}
		close := "</" + name + ">"
		end := findCloseSkippingCDATA(body, childBodyStart, close)
		if end < 0 {
			i = childBodyStart
			continue
		}
		raw := body[childBodyStart:end]
		fields[name] = unwrapCDATA(raw)
		i = end + len(close)
	}
	return fields
}

func unwrapCDATA(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<![CDATA[") && strings.HasSuffix(s, "]]>") {
		return s[len("<![CDATA[") : len(s)-len("]]>")]
	}
	return s
}

// normalizeTerminalArgs coerces `args` (array, JSON-string-array, or plain
// string) to a single shell string, splitting `command` on first
// whitespace when no args were supplied.
func normalizeTerminalArgs(params map[string]any) {
	switch v := params["args"].(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var arr []string
			if json.Unmarshal([]byte(trimmed), &arr) == nil {
				params["args"] = strings.Join(arr, " ")
				return
			}
		}
		params["args"] = trimmed
	default:
		if _, has := params["args"]; !has {
			cmd, _ := params["command"].(string)
			cmd = strings.TrimSpace(cmd)
			if idx := strings.IndexAny(cmd, " \t"); idx > 0 {
				params["command"] = cmd[:idx]
				params["args"] = strings.TrimSpace(cmd[idx+1:])
			}
		}
	}
}
