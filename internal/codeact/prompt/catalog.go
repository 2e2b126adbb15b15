package prompt

// ToolSpec is one entry of the rendered tool catalog: its name, a one-line
// description, and the XML field names it accepts.
type ToolSpec struct {
	Name        string
	Description string
	Fields      []string
}

// staticCatalog is the closed set of tools the parser (B) recognizes,
// except the parser-synthesized evaluation action, rendered in the order a
// model should consider them.
var staticCatalog = []ToolSpec{
	{Name: "write_code", Description: "Create or fully overwrite a file.", Fields: []string{"path", "content"}},
	{Name: "patch_code", Description: "Apply a unified diff to an existing file.", Fields: []string{"path", "diff"}},
	{Name: "replace_code_block", Description: "Replace one anchored block of an existing file.", Fields: []string{"path", "code_block"}},
	{Name: "write_file", Description: "Create or overwrite a non-code file (e.g. data, config).", Fields: []string{"path", "content"}},
	{Name: "read_file", Description: "Read a file from the workspace.", Fields: []string{"path"}},
	{Name: "terminal_run", Description: "Run one shell command in the workspace; 30s wall-clock timeout.", Fields: []string{"command", "args", "cwd"}},
	{Name: "web_search", Description: "Search the web.", Fields: []string{"query", "num_results", "topic"}},
	{Name: "read_url", Description: "Fetch a URL and extract its readable text as Markdown.", Fields: []string{"url"}},
	{Name: "browser", Description: "Ask a question against a rendered page in a real browser.", Fields: []string{"question"}},
	{Name: "mcp_tool", Description: "Invoke a registered MCP tool by name.", Fields: []string{"name", "arguments"}},
	{Name: "document_query", Description: "Search the project's document store.", Fields: []string{"query", "top_k"}},
	{Name: "document_upload", Description: "Add a document to the project's document store.", Fields: []string{"content", "id"}},
	{Name: "revise_plan", Description: "Replace the current plan before continuing.", Fields: []string{"content"}},
	{Name: "patch_complete", Description: "Declare the current patch/build phase complete; switches prompt mode back to build.", Fields: []string{}},
	{Name: "information", Description: "Log a note with no workspace effect.", Fields: []string{"content"}},
	{Name: "pause_for_user_input", Description: "Stop and wait for a human response.", Fields: []string{"message"}},
	{Name: "finish", Description: "End the task with status SUCCESS or FAILED.", Fields: []string{"status", "message"}},
}

// MCPCatalog supplies the dynamically discovered MCP tool names a runtime
// session has connected to, beyond the static set above.
type MCPCatalog interface {
	Tools() []ToolSpec
}
