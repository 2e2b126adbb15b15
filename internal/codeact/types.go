// Package codeact holds the shared data model for the code-acting agent
// core: the Message/Action/ActionResult triple that the parser (B), the
// runtime dispatcher (D), the memory store (E) and the control loop (F)
// all pass between each other.
package codeact

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
)

// ActionType is one of the closed set of tool names the parser recognizes.
type ActionType string

const (
	ActionFinish             ActionType = "finish"
	ActionPatchCode          ActionType = "patch_code"
	ActionWriteCode          ActionType = "write_code"
	ActionReplaceCodeBlock   ActionType = "replace_code_block"
	ActionWriteFile          ActionType = "write_file"
	ActionReadFile           ActionType = "read_file"
	ActionRevisePlan         ActionType = "revise_plan"
	ActionTerminalRun        ActionType = "terminal_run"
	ActionWebSearch          ActionType = "web_search"
	ActionReadURL            ActionType = "read_url"
	ActionBrowser            ActionType = "browser"
	ActionMCPTool            ActionType = "mcp_tool"
	ActionEvaluation         ActionType = "evaluation"
	ActionDocumentQuery      ActionType = "document_query"
	ActionDocumentUpload     ActionType = "document_upload"
	ActionPatchComplete      ActionType = "patch_complete"
	ActionInformation        ActionType = "information"
	actionPauseForUserInput  ActionType = "pause_for_user_input"
)

// LocalOnlyActions never reach the runtime dispatcher (D); the control loop
// (F) handles them inline.
var LocalOnlyActions = map[ActionType]bool{
	ActionInformation:       true,
	ActionPatchComplete:     true,
	actionPauseForUserInput: true,
	ActionRevisePlan:        true,
}

// Status is the coarse outcome of executing an Action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ActionMeta carries the derived fields D injects before execution, plus
// whatever diagnostic fields a given tool's result attaches (exitCode,
// signal, durationMs, resolved_cwd, run_id, origin_*...).
type ActionMeta struct {
	OriginPath    string `json:"origin_path,omitempty"`
	OriginCwd     string `json:"origin_cwd,omitempty"`
	OriginCommand string `json:"origin_command,omitempty"`
	RunID         string `json:"run_id,omitempty"`

	ExitCode    *int   `json:"exitCode,omitempty"`
	Signal      string `json:"signal,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
	ResolvedCwd string `json:"resolved_cwd,omitempty"`
	TimedOut    bool   `json:"timedOut,omitempty"`

	// KeyID surfaces anchor-matching diagnostics for replace_code_block: the
	// literal "replace_code_block_noop" when the snippet is already applied,
	// or, when more than one candidate match was found, the first 16 hex
	// characters of the sha1 of the current file content.
	KeyID string `json:"keyid,omitempty"`

	ActionType ActionType `json:"action_type,omitempty"`
}

// Action is produced by the parser (B) and consumed by the control loop
// (F) and the runtime dispatcher (D).
type Action struct {
	Type   ActionType     `json:"type"`
	Params map[string]any `json:"params"`
	Meta   ActionMeta     `json:"meta,omitempty"`
}

// Param reads a string-valued param, returning "" if absent or not a string.
func (a Action) Param(name string) string {
	v, _ := a.Params[name].(string)
	return v
}

// ActionResult is what D (or a local handler) produces for an Action.
type ActionResult struct {
	Status   Status         `json:"status"`
	Content  string         `json:"content"`
	Stdout   string         `json:"stdout,omitempty"`
	Stderr   string         `json:"stderr,omitempty"`
	Error    string         `json:"error,omitempty"`
	Comments string         `json:"comments,omitempty"`
	Meta     ActionMeta     `json:"meta,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Ok reports whether the result succeeded.
func (r ActionResult) Ok() bool { return r.Status == StatusSuccess }

// MessageMeta is the structured annotation bag attached to a Message. Only
// a subset of fields is populated for any given message.
type MessageMeta struct {
	Action       *Action `json:"action,omitempty"`
	ActionMemory string  `json:"action_memory,omitempty"`

	PruneHash   string `json:"prune_hash,omitempty"`
	ToolCallKey string `json:"toolCallKey,omitempty"`
	RepeatHash  string `json:"repeat_hash,omitempty"`

	Pruned       bool   `json:"pruned,omitempty"`
	PrunedReason string `json:"pruned_reason,omitempty"`

	Filepath      string `json:"filepath,omitempty"`
	ExitCode      *int   `json:"exitCode,omitempty"`
	RunID         string `json:"run_id,omitempty"`
	OriginCwd     string `json:"origin_cwd,omitempty"`
	OriginCommand string `json:"origin_command,omitempty"`
	OriginPath    string `json:"origin_path,omitempty"`

	Diff      string `json:"diff,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	Result    string `json:"result,omitempty"`
	ActionType ActionType `json:"action_type,omitempty"`
}

// Message is one entry of the ordered memory.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ActionType ActionType  `json:"action_type,omitempty"`
	Memorized  bool        `json:"memorized"`
	Meta       MessageMeta `json:"meta,omitempty"`
}
