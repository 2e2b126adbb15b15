package codememory

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"

	"codeact/internal/codeact"
)

var fileToolCalls = map[codeact.ActionType]bool{
	codeact.ActionReadFile:          true,
	codeact.ActionWriteCode:         true,
	codeact.ActionPatchCode:         true,
	codeact.ActionReplaceCodeBlock:  true,
}

// deriveKeys computes stableKey / toolCallKey / prune_hash for msg, and
// handles prune_hash inheritance for a user message immediately following
// an assistant tool call.
func (m *Memory) deriveKeys(msg *codeact.Message) {
	if msg.Role == codeact.RoleAssistant && isToolCall(msg.ActionType) {
		stableKey := m.stableKey(*msg)
		h := sha1Hex(string(msg.ActionType) + stableKey)
		msg.Meta.ToolCallKey = h
		msg.Meta.PruneHash = h
		return
	}
	if msg.Role == codeact.RoleAssistant && msg.ActionType == codeact.ActionInformation {
		msg.Meta.PruneHash = sha1Hex(normalizeContent(msg.Content))
		return
	}
	if msg.Role == codeact.RoleUser {
		if n := len(m.messages); n > 0 {
			prev := m.messages[n-1]
			if prev.Role == codeact.RoleAssistant && prev.Meta.ToolCallKey != "" {
				msg.Meta.PruneHash = prev.Meta.PruneHash
			}
		}
	}
}

func isToolCall(t codeact.ActionType) bool {
	return fileToolCalls[t] || t == codeact.ActionTerminalRun
}

func (m *Memory) stableKey(msg codeact.Message) string {
	if msg.ActionType == codeact.ActionTerminalRun {
		var cmd, args, cwd string
		if msg.Meta.Action != nil {
			cmd = msg.Meta.Action.Param("command")
			args = msg.Meta.Action.Param("args")
			cwd = msg.Meta.Action.Param("cwd")
		}
		return cmd + " " + args + "||" + cwd
	}

	if msg.Meta.Action != nil {
		if p := msg.Meta.Action.Param("origin_path"); p != "" {
			return filepath.Base(p)
		}
		if p := msg.Meta.Action.Param("path"); p != "" {
			return filepath.Base(p)
		}
	}
	if p := extractXMLPath(msg.Content); p != "" {
		return filepath.Base(p)
	}
	if msg.Meta.Filepath != "" {
		return filepath.Base(msg.Meta.Filepath)
	}
	return ""
}

func extractXMLPath(content string) string {
	open := strings.Index(content, "<path>")
	if open < 0 {
		return ""
	}
	close := strings.Index(content[open:], "</path>")
	if close < 0 {
		return ""
	}
	return strings.TrimSpace(content[open+len("<path>") : open+close])
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func repeatHash(content string) string {
	return sha1Hex(normalizeContent(content))
}

func normalizeContent(s string) string {
	return strings.TrimSpace(s)
}
