// Package runtime implements component D: the action dispatcher that
// routes a resolved Action to the sandbox HTTP server or to one of the
// narrow-contract external adapters (web, browser, mcp_tool,
// document_query/upload), normalizes results, and injects the derived
// fields (origin_path, origin_cwd, origin_command, run_id).
package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"codeact/internal/codeact"
)

// UIEvents publishes the "running"/"final" placeholders D emits around
// every executed action. Implementations: an in-process no-op
// and a Kafka producer (see events.go).
type UIEvents interface {
	Publish(ctx context.Context, convID string, event string, payload any)
}

// Dispatcher is component D.
type Dispatcher struct {
	sandbox      SandboxClient
	web          WebAdapter
	browser      BrowserAdapter
	mcp          MCPAdapter
	documents    DocumentAdapter
	events       UIEvents
	workspaceDir string // conversation-scoped directory prepended to file-bearing paths
	defaultCreds LLMCredentials
	archiver     Archiver
	archiveRoot  string // local filesystem path of the conversation workspace; empty disables archival
}

// WithDefaultCredentials sets the LLM credential triple the browser
// adapter is passed.
func (d *Dispatcher) WithDefaultCredentials(c LLMCredentials) *Dispatcher {
	d.defaultCreds = c
	return d
}

// WithArchiver configures on-finish workspace snapshot archival. root is
// the local filesystem directory holding the conversation's workspace;
// leave it empty (e.g. when the sandbox is an external HTTP server with no
// local filesystem access) to keep archival disabled even with a non-nil
// archiver.
func (d *Dispatcher) WithArchiver(archiver Archiver, root string) *Dispatcher {
	d.archiver = archiver
	d.archiveRoot = root
	return d
}

// ArchiveWorkspace uploads the conversation workspace directory once a
// task finishes. No-op unless both an archiver and a local root are
// configured.
func (d *Dispatcher) ArchiveWorkspace(ctx context.Context, conversationPrefix, taskKey string) error {
	if d.archiver == nil || d.archiveRoot == "" {
		return nil
	}
	return d.archiver.Archive(ctx, d.archiveRoot, filepath.Join(conversationPrefix, taskKey))
}

// SandboxClient executes terminal_run/file actions, either against the
// external sandbox HTTP server or locally (LocalSandboxClient).
type SandboxClient interface {
	Execute(ctx context.Context, action codeact.Action, uuid, userID string) (codeact.ActionResult, error)
}

type WebAdapter interface {
	Search(ctx context.Context, query string, numResults int) (codeact.ActionResult, error)
	ReadURL(ctx context.Context, url string) (codeact.ActionResult, error)
}

type BrowserAdapter interface {
	Ask(ctx context.Context, question string, creds LLMCredentials) (codeact.ActionResult, error)
}

type LLMCredentials struct {
	Endpoint string
	APIKey   string
	Model    string
}

type MCPAdapter interface {
	Call(ctx context.Context, name string, arguments map[string]any) (codeact.ActionResult, error)
}

type DocumentAdapter interface {
	Query(ctx context.Context, params map[string]any) (codeact.ActionResult, error)
	Upload(ctx context.Context, params map[string]any) (codeact.ActionResult, error)
}

// New constructs a Dispatcher. Any adapter may be nil; dispatching an
// action whose adapter is nil yields a synthesized failure result rather
// than a panic.
func New(sandbox SandboxClient, web WebAdapter, browser BrowserAdapter, mcp MCPAdapter, documents DocumentAdapter, events UIEvents, workspaceDir string) *Dispatcher {
	if events == nil {
		events = noopEvents{}
	}
	return &Dispatcher{sandbox: sandbox, web: web, browser: browser, mcp: mcp, documents: documents, events: events, workspaceDir: workspaceDir}
}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, string, string, any) {}

// Dispatch routes action by type, emits the running/final UI placeholders,
// and returns a normalized ActionResult.
func (d *Dispatcher) Dispatch(ctx context.Context, convID, uuid, userID string, action codeact.Action) codeact.ActionResult {
	d.injectDerivedFields(&action)
	d.events.Publish(ctx, convID, "running", map[string]any{"action_type": action.Type})

	result := d.execute(ctx, uuid, userID, action)
	result.Meta.ActionType = action.Type
	if action.Type == codeact.ActionTerminalRun {
		normalizeTerminalResult(&result, action)
	}

	d.events.Publish(ctx, convID, "final", result)
	return result
}

func (d *Dispatcher) execute(ctx context.Context, uuid, userID string, action codeact.Action) codeact.ActionResult {
	switch action.Type {
	case codeact.ActionWebSearch:
		if d.web == nil {
			return failure("web search adapter not configured")
		}
		n := 5
		if v, ok := action.Params["num_results"]; ok {
			fmt.Sscanf(fmt.Sprint(v), "%d", &n)
		}
		res, err := d.web.Search(ctx, action.Param("query"), n)
		return orFailure(res, err)

	case codeact.ActionReadURL:
		if d.web == nil {
			return failure("web adapter not configured")
		}
		res, err := d.web.ReadURL(ctx, action.Param("url"))
		return orFailure(res, err)

	case codeact.ActionBrowser:
		if d.browser == nil {
			return failure("browser adapter not configured")
		}
		res, err := d.browser.Ask(ctx, action.Param("question"), d.defaultLLMCredentials())
		return orFailure(res, err)

	case codeact.ActionMCPTool:
		if d.mcp == nil {
			return failure("mcp adapter not configured")
		}
		args, _ := action.Params["arguments"].(map[string]any)
		res, err := d.mcp.Call(ctx, action.Param("name"), args)
		return orFailure(res, err)

	case codeact.ActionDocumentQuery:
		if d.documents == nil {
			return failure("document store not configured")
		}
		res, err := d.documents.Query(ctx, action.Params)
		return orFailure(res, err)

	case codeact.ActionDocumentUpload:
		if d.documents == nil {
			return failure("document store not configured")
		}
		res, err := d.documents.Upload(ctx, action.Params)
		return orFailure(res, err)

	case codeact.ActionReadFile, codeact.ActionWriteCode, codeact.ActionPatchCode,
		codeact.ActionReplaceCodeBlock, codeact.ActionWriteFile, codeact.ActionTerminalRun:
		if d.sandbox == nil {
			return failure("sandbox client not configured")
		}
		res, err := d.sandbox.Execute(ctx, action, uuid, userID)
		if err != nil {
			return sandboxFailure(action, err)
		}
		if action.Type == codeact.ActionReadFile {
			classifyReadFileError(&res)
		}
		return res

	default:
		return failure(fmt.Sprintf("unsupported action type %q", action.Type))
	}
}

// defaultLLMCredentials pulls the LLM credential triple from the active
// conversation's default model configuration. Populated by the caller
// (cmd/codeactd) via WithDefaultCredentials; zero value otherwise.
func (d *Dispatcher) defaultLLMCredentials() LLMCredentials {
	return d.defaultCreds
}

// injectDerivedFields prepends the conversation directory to file-bearing
// tool paths while preserving origin_path, and attaches
// run_id/origin_cwd/origin_command for terminal_run.
func (d *Dispatcher) injectDerivedFields(action *codeact.Action) {
	switch action.Type {
	case codeact.ActionReadFile, codeact.ActionWriteCode, codeact.ActionPatchCode,
		codeact.ActionReplaceCodeBlock, codeact.ActionWriteFile:
		path := action.Param("path")
		action.Meta.OriginPath = filepath.Base(path)
		if d.workspaceDir != "" {
			action.Params["path"] = filepath.Join(d.workspaceDir, path)
		}
	case codeact.ActionTerminalRun:
		runID := randomHex(6)
		cwd := action.Param("cwd")
		cmd := action.Param("command")
		action.Meta.RunID = runID
		action.Meta.OriginCwd = cwd
		action.Meta.OriginCommand = cmd
		action.Meta.OriginPath = fmt.Sprintf("terminal_run:%s::%s", cwd, cmd)
		action.Params["run_id"] = runID
		if d.workspaceDir != "" && cwd != "" && !filepath.IsAbs(cwd) {
			action.Params["cwd"] = filepath.Join(d.workspaceDir, cwd)
		}
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func failure(msg string) codeact.ActionResult {
	return codeact.ActionResult{Status: codeact.StatusFailure, Content: msg, Error: msg}
}

func orFailure(res codeact.ActionResult, err error) codeact.ActionResult {
	if err != nil {
		return failure(err.Error())
	}
	return res
}

// sandboxFailure never returns an empty failure: it synthesizes a
// diagnostic block including the action type, command/args/cwd, and the
// error.
func sandboxFailure(action codeact.Action, err error) codeact.ActionResult {
	var b strings.Builder
	fmt.Fprintf(&b, "sandbox execution failed for %s: %v", action.Type, err)
	if cmd := action.Param("command"); cmd != "" {
		fmt.Fprintf(&b, " (command=%q args=%q cwd=%q)", cmd, action.Param("args"), action.Param("cwd"))
	}
	msg := b.String()
	return codeact.ActionResult{Status: codeact.StatusFailure, Content: msg, Error: msg}
}

// classifyReadFileError buckets a failed read_file result's error into
// {NOT_FOUND, INACCESSIBLE, <raw code>}.
func classifyReadFileError(res *codeact.ActionResult) {
	if res.Ok() {
		return
	}
	lower := strings.ToLower(res.Error)
	switch {
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "not found"), strings.Contains(lower, "enoent"):
		res.Extra = withCode(res.Extra, "NOT_FOUND")
	case strings.Contains(lower, "permission"), strings.Contains(lower, "eacces"), strings.Contains(lower, "access"):
		res.Extra = withCode(res.Extra, "INACCESSIBLE")
	default:
		res.Extra = withCode(res.Extra, res.Error)
	}
}

func withCode(extra map[string]any, code string) map[string]any {
	if extra == nil {
		extra = map[string]any{}
	}
	extra["error_code"] = code
	return extra
}

// normalizeTerminalResult shapes a terminal_run result: content mirrors
// stdout, exitCode defaults 0/1 by status, and the run_id, origin
// cwd/command and resolved cwd are carried in meta.
func normalizeTerminalResult(res *codeact.ActionResult, action codeact.Action) {
	if res.Content == "" {
		res.Content = res.Stdout
	}
	if res.Meta.ExitCode == nil {
		code := 0
		if res.Status == codeact.StatusFailure {
			code = 1
		}
		res.Meta.ExitCode = &code
	}
	res.Meta.RunID = action.Meta.RunID
	res.Meta.OriginCwd = action.Meta.OriginCwd
	res.Meta.OriginCommand = action.Meta.OriginCommand
	res.Meta.ResolvedCwd = action.Param("cwd")
}

// IsTestRunnerCommand reports whether a terminal_run command matches a
// known test-runner invocation (used by the control loop to classify
// expected test failures as non-penalizing).
func IsTestRunnerCommand(command string) bool {
	cmd := strings.ToLower(command)
	for _, runner := range []string{
		"pytest", "unittest", "jest", "go test", "cargo test",
		"npm test", "npm run test", "yarn test", "pnpm test", "bun test",
		"mocha", "vitest", "dotnet test", "mvn test", "gradle test", "ctest",
	} {
		if strings.Contains(cmd, runner) {
			return true
		}
	}
	return false
}

var testFailureSignatures = []string{
	"AssertionError", "FAILED", "FAIL:", "assert.Equal", "panic:", "Error: expect(",
}

// HasTestFailureSignature scans output for a strict test-failure marker.
func HasTestFailureSignature(output string) bool {
	for _, sig := range testFailureSignatures {
		if strings.Contains(output, sig) {
			return true
		}
	}
	return false
}
