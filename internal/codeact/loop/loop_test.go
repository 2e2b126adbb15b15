package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact"
	"codeact/internal/codeact/codememory"
	"codeact/internal/codeact/llmstream"
	"codeact/internal/codeact/runtime"
)

type memPersister struct {
	msgs []codeact.Message
}

func (p *memPersister) Load() ([]codeact.Message, error) { return p.msgs, nil }
func (p *memPersister) Save(msgs []codeact.Message) error {
	p.msgs = msgs
	return nil
}

type scriptedChat struct {
	turns []string
	calls int
}

func (c *scriptedChat) Chat(ctx context.Context, history []llmstream.Message, options map[string]any, onToken llmstream.OnToken) (string, error) {
	if c.calls >= len(c.turns) {
		return "", nil
	}
	out := c.turns[c.calls]
	c.calls++
	return out, nil
}

type fakeSandbox struct {
	result codeact.ActionResult
}

func (f *fakeSandbox) Execute(ctx context.Context, action codeact.Action, uuid, userID string) (codeact.ActionResult, error) {
	return f.result, nil
}

func newMemory(t *testing.T) *codememory.Memory {
	t.Helper()
	m, err := codememory.New(&memPersister{}, codememory.Limits{RepeatDetectWindow: 2, PruneKeepOccurs: 3, PruneMaxChars: 60000}, nil)
	require.NoError(t, err)
	return m
}

func TestRunTaskFinishesOnValidFinish(t *testing.T) {
	chat := &scriptedChat{turns: []string{"<finish><status>SUCCESS</status><message>done</message></finish>"}}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{}, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	res, err := l.RunTask(context.Background(), &TaskState{RootGoal: "ship it"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, res.Outcome)
	assert.EqualValues(t, "SUCCESS", res.Status)
}

func TestRunTaskSoftFailsOnMissingFinishStatusThenSucceeds(t *testing.T) {
	chat := &scriptedChat{turns: []string{
		"<finish><message>almost</message></finish>",
		"<finish><status>SUCCESS</status></finish>",
	}}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{}, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	state := &TaskState{RootGoal: "ship it"}
	res, err := l.RunTask(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, res.Outcome)
	assert.Zero(t, state.RetryCount, "missing finish status must not penalize retry count")
}

func TestRunTaskPausesOnRevisePlan(t *testing.T) {
	chat := &scriptedChat{turns: []string{"<revise_plan><content>rethink</content></revise_plan>"}}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{}, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	res, err := l.RunTask(context.Background(), &TaskState{})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, res.Outcome)
}

func TestRunTaskHardFailsAfterExceedingRetryBudget(t *testing.T) {
	turns := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		turns = append(turns, "") // empty output every turn, each penalized
	}
	chat := &scriptedChat{turns: turns}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{}, nil, nil, nil, nil, nil, "")
	l := New(Config{MaxRetryTimes: 3}, chat, nil, mem, dispatch, nil, nil)

	res, err := l.RunTask(context.Background(), &TaskState{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHardFailed, res.Outcome)
}

// TestRunTaskHardFailsExactlyAtRetryCeiling pins the boundary: with
// MaxRetryTimes=3, the task must hard-fail once retryCount reaches 3 (the
// 3rd counted failure), not on the 4th.
func TestRunTaskHardFailsExactlyAtRetryCeiling(t *testing.T) {
	chat := &scriptedChat{turns: []string{"", "", ""}}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{}, nil, nil, nil, nil, nil, "")
	l := New(Config{MaxRetryTimes: 3}, chat, nil, mem, dispatch, nil, nil)

	state := &TaskState{}
	res, err := l.RunTask(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHardFailed, res.Outcome)
	assert.Equal(t, 3, state.RetryCount, "must hard-fail on the 3rd counted failure, not the 4th")
}

func TestRunTaskTestFailureSignatureDoesNotPenalizeRetryBudget(t *testing.T) {
	chat := &scriptedChat{turns: []string{
		"<terminal_run><command>pytest tests/</command></terminal_run>",
		"<finish><status>SUCCESS</status></finish>",
	}}
	mem := newMemory(t)
	sandbox := &fakeSandbox{result: codeact.ActionResult{Status: codeact.StatusFailure, Content: "FAILED tests/test_x.py::test_y"}}
	dispatch := runtime.New(sandbox, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	state := &TaskState{}
	res, err := l.RunTask(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, res.Outcome)
	assert.Zero(t, state.RetryCount, "expected test failure signature to be exempt from retry penalty")
	assert.Equal(t, ModeCodeCorrector, state.PromptMode, "expected prompt mode to flip to codecorrector after terminal_run failure")
}

// TestRunTaskNonFatalExitOneDoesNotPenalizeRetryBudget covers the
// independent exemption: a terminal_run exiting 1 from a command that is
// not a recognized test runner still must not count against retryCount.
func TestRunTaskNonFatalExitOneDoesNotPenalizeRetryBudget(t *testing.T) {
	chat := &scriptedChat{turns: []string{
		"<terminal_run><command>grep foo file.txt</command></terminal_run>",
		"<finish><status>SUCCESS</status></finish>",
	}}
	mem := newMemory(t)
	exitCode := 1
	sandbox := &fakeSandbox{result: codeact.ActionResult{
		Status: codeact.StatusFailure,
		Content: "no match",
		Meta:    codeact.ActionMeta{ExitCode: &exitCode},
	}}
	dispatch := runtime.New(sandbox, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	state := &TaskState{}
	res, err := l.RunTask(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, res.Outcome)
	assert.Zero(t, state.RetryCount, "expected non-fatal exit 1 to be exempt from retry penalty")
}

func TestRunTaskMultiActionTurnDispatchesSequentially(t *testing.T) {
	chat := &scriptedChat{turns: []string{
		"<information><content>note</content></information><finish><status>SUCCESS</status></finish>",
	}}
	mem := newMemory(t)
	dispatch := runtime.New(&fakeSandbox{result: codeact.ActionResult{Status: codeact.StatusSuccess}}, nil, nil, nil, nil, nil, "")
	l := New(Config{}, chat, nil, mem, dispatch, nil, nil)

	res, err := l.RunTask(context.Background(), &TaskState{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinished, res.Outcome)
}
