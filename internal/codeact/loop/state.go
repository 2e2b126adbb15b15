// Package loop implements component F: the per-task agent control loop that
// drives component A (the LLM stream) through repeated turns, parses each
// turn's actions with component B, dispatches them through component D,
// records the conversation in component E, and consults component I between
// turns, until the model emits a valid finish or the task is paused or
// hard-failed on retries.
package loop

import "codeact/internal/codeact"

// PromptMode selects the role/system-prompt variant component G renders.
// It starts in "build" and flips to "codecorrector" after a terminal_run
// failure, back to "build" on the next terminal_run success.
type PromptMode string

const (
	ModeBuild         PromptMode = "build"
	ModeCodeCorrector PromptMode = "codecorrector"
)

// Outcome is the terminal disposition RunTask returns.
type Outcome string

const (
	OutcomeFinished   Outcome = "finished"
	OutcomePaused     Outcome = "paused"
	OutcomeHardFailed Outcome = "hard_failed"
)

// TaskState is the per-task control state threaded through every iteration
// of RunTask. Callers construct one per task and reuse it across process
// restarts by rehydrating it alongside the memory file it was saved with.
type TaskState struct {
	ConversationID string
	TaskKey        string
	UUID           string
	UserID         string

	RootGoal           string
	CurrentRequirement string

	PromptMode          PromptMode
	RetryCount          int
	TotalRetryAttempts  int
	LastTerminalFailure string
	LastFinishStatus    string // "", "SUCCESS", "FAILED"
	Reflection          string
	ErrorFeedback       string

	// PendingReadFileErrors tracks read_file paths that previously failed
	// with a transient-looking error (anything but NOT_FOUND), so the next
	// iteration can silently retry them before building a new prompt.
	PendingReadFileErrors map[string]string
}

func (s *TaskState) ensureInit() {
	if s.PromptMode == "" {
		s.PromptMode = ModeBuild
	}
	if s.PendingReadFileErrors == nil {
		s.PendingReadFileErrors = map[string]string{}
	}
}

// Result is what RunTask returns once the task finishes, pauses for human
// input, or gives up after exhausting its retry budget.
type Result struct {
	Outcome    Outcome
	Status     string // the finish status, when Outcome == OutcomeFinished
	Message    string
	Iterations int
	LastResult codeact.ActionResult
}
