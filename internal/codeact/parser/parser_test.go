package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact"
)

func TestParseActionsWriteCode(t *testing.T) {
	raw := `<write_code><path>a.py</path><content><![CDATA[def f():
    return 1
]]></content></write_code>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	act := actions[0]
	assert.Equal(t, codeact.ActionWriteCode, act.Type)
	assert.Equal(t, "a.py", act.Param("path"))
	assert.Contains(t, act.Param("content"), "return 1")
}

func TestParseActionsMultipleBlocksConcatenated(t *testing.T) {
	raw := `some prose <write_code><path>a.py</path><content><![CDATA[x = 1]]></content></write_code>
more prose <replace_code_block><path>a.py</path><code_block><![CDATA[x = 2]]></code_block></replace_code_block>`
	actions := ParseActions(raw)
	require.Len(t, actions, 2)
	assert.Equal(t, codeact.ActionWriteCode, actions[0].Type)
	assert.Equal(t, codeact.ActionReplaceCodeBlock, actions[1].Type)
}

func TestParseActionsCDATAHidesCloseTagLookalike(t *testing.T) {
	raw := `<write_code><path>a.py</path><content><![CDATA[print("</write_code> not real")]]></content></write_code>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Param("content"), "</write_code> not real")
}

func TestParseActionsFinishSelfClosingAttrForm(t *testing.T) {
	raw := `<finish status="SUCCESS" message="all done"/>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	assert.Equal(t, codeact.ActionFinish, actions[0].Type)
	assert.Equal(t, "SUCCESS", actions[0].Param("status"))
}

func TestParseActionsFinishMissingStatusIsNotRejected(t *testing.T) {
	// Scenario S3: invalid/missing finish status is not a hard-rejected
	// block; the control loop handles it as a soft-fail.
	raw := `<finish><message>done</message></finish>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	assert.Equal(t, codeact.ActionFinish, actions[0].Type, "expected finish action to pass through")
	assert.Empty(t, actions[0].Param("status"))
}

func TestParseActionsTerminalRunStructuralReject(t *testing.T) {
	raw := `<terminal_run><command>ls</command><path>/etc</path></terminal_run>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1, "expected 1 synthetic action")
	assert.Equal(t, codeact.ActionEvaluation, actions[0].Type, "expected synthetic evaluation")
	assert.Equal(t, "failure", actions[0].Param("status"))
}

func TestParseActionsTerminalRunCommandSplit(t *testing.T) {
	raw := `<terminal_run><command>pytest -q</command></terminal_run>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	assert.Equal(t, "pytest", actions[0].Param("command"), "expected split command")
	assert.Equal(t, "-q", actions[0].Param("args"))
}

func TestParseActionsReadURLRejectsBadScheme(t *testing.T) {
	raw := `<read_url><url>ftp://example.com</url></read_url>`
	actions := ParseActions(raw)
	require.Len(t, actions, 1, "expected rejected read_url")
	assert.Equal(t, codeact.ActionEvaluation, actions[0].Type)
}

func TestJSONToolCallLiftedToXML(t *testing.T) {
	raw := `{"type":"tool_call","name":"read_file","arguments":{"path":"a.py"}}`
	actions := ParseActions(raw)
	require.Len(t, actions, 1)
	assert.Equal(t, codeact.ActionReadFile, actions[0].Type)
	assert.Equal(t, "a.py", actions[0].Param("path"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := `<|channel|>commentary to=functions.read_file<|message|>{"path":"a.py"}<|end|>`
	once := Normalize(raw)
	twice := Normalize(once)
	assert.Equal(t, once, twice, "normalize not idempotent")
}

func TestSerializeRoundTrip(t *testing.T) {
	act := codeact.Action{Type: codeact.ActionWriteCode, Params: map[string]any{
		"path":    "a.py",
		"content": "x = 1\n",
	}}
	xml := Serialize(act)
	actions := ParseActions(xml)
	require.Len(t, actions, 1, "expected 1 action after round-trip")
	assert.Equal(t, "a.py", actions[0].Param("path"))
	assert.Equal(t, "x = 1\n", actions[0].Param("content"))
}
