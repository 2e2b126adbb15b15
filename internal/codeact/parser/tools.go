package parser

import (
	"sync"

	"codeact/internal/codeact"
)

var knownToolsMu sync.RWMutex

// knownTools is the closed tool catalog B recognizes.
var knownTools = map[string]bool{
	"finish":              true,
	"patch_code":          true,
	"write_code":          true,
	"replace_code_block":  true,
	"write_file":          true,
	"read_file":           true,
	"revise_plan":         true,
	"terminal_run":        true,
	"web_search":          true,
	"read_url":            true,
	"browser":             true,
	"mcp_tool":            true,
	"evaluation":          true,
	"document_query":      true,
	"document_upload":     true,
	"patch_complete":      true,
	"information":         true,
	"pause_for_user_input": true,
}

// payloadFields are wrapped in CDATA by the normalizer and left untrimmed
// by action resolution.
var payloadFields = map[string]bool{
	"content":    true,
	"code_block": true,
	"diff":       true,
	"message":    true,
}

// RegisterMCPTool lets the runtime dispatcher teach the parser about a
// dynamically discovered MCP tool name so hinted-envelope recognition (step
// 3) also fires for it. Safe for concurrent use by multiple mcpclient
// sessions registering/removing tools.
func RegisterMCPTool(name string)   { knownToolsMu.Lock(); knownTools[name] = true; knownToolsMu.Unlock() }
func UnregisterMCPTool(name string) { knownToolsMu.Lock(); delete(knownTools, name); knownToolsMu.Unlock() }

func IsKnownTool(name string) bool {
	knownToolsMu.RLock()
	defer knownToolsMu.RUnlock()
	return knownTools[name]
}

func isLocalOnly(t string) bool {
	return codeact.LocalOnlyActions[codeact.ActionType(t)]
}
