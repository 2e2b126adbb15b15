package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"codeact/internal/codeact"
	"codeact/internal/codeact/codememory"
	"codeact/internal/codeact/llmstream"
	"codeact/internal/codeact/parser"
	"codeact/internal/codeact/runtime"
	"codeact/internal/codeact/telemetry"
)

var tracer = otel.Tracer("codeact/loop")

// ChatClient is the narrow contract F needs from component A.
type ChatClient interface {
	Chat(ctx context.Context, history []llmstream.Message, options map[string]any, onToken llmstream.OnToken) (string, error)
}

// PromptBuilder is the narrow contract F needs from component G. Build
// returns the full prompt text (system + task framing) for the current
// state; F appends the memory log's messages after it.
type PromptBuilder interface {
	Build(ctx context.Context, state *TaskState) (string, error)
}

// ReflectionAdapter is the narrow contract F needs from component I.
type ReflectionAdapter interface {
	Reflect(ctx context.Context, requirement string, result codeact.ActionResult) (status string, comments string, err error)
}

// Config carries F's tunable retry knobs.
type Config struct {
	MaxRetryTimes   int // hard-fail once RetryCount reaches this; default 10
	MaxTotalRetries int // 0 disables the lifetime cap (open question, left to the caller)
}

// Loop is component F.
type Loop struct {
	cfg      Config
	chat     ChatClient
	prompt   PromptBuilder
	mem      *codememory.Memory
	dispatch *runtime.Dispatcher
	reflect  ReflectionAdapter
	tel      telemetry.Sink
}

// New constructs a Loop. prompt and reflect may be nil; RunTask falls back
// to a minimal inline prompt and skips reflection when so configured. tel
// may be nil, in which case iteration events are discarded.
func New(cfg Config, chat ChatClient, prompt PromptBuilder, mem *codememory.Memory, dispatch *runtime.Dispatcher, reflect ReflectionAdapter, tel telemetry.Sink) *Loop {
	if cfg.MaxRetryTimes <= 0 {
		cfg.MaxRetryTimes = 10
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	return &Loop{cfg: cfg, chat: chat, prompt: prompt, mem: mem, dispatch: dispatch, reflect: reflect, tel: tel}
}

// RunTask drives one task to completion, pause, or hard failure. It is not
// safe to call concurrently on the same TaskState/Memory pair.
func (l *Loop) RunTask(ctx context.Context, state *TaskState) (Result, error) {
	state.ensureInit()

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		res, err := l.runIteration(ctx, state, iteration)
		if err != nil {
			return Result{}, err
		}
		if res != nil {
			return *res, nil
		}
	}
}

func (l *Loop) runIteration(ctx context.Context, state *TaskState, iteration int) (result *Result, err error) {
	ctx, span := tracer.Start(ctx, "loop.iteration",
		trace.WithAttributes(
			attribute.String("conversation_id", state.ConversationID),
			attribute.Int("iteration", iteration),
			attribute.String("prompt_mode", string(state.PromptMode)),
		))
	defer span.End()

	start := time.Now()
	actionType := ""
	status := "ok"
	defer func() {
		if err != nil {
			status = "error"
		} else if result != nil {
			status = string(result.Outcome)
		}
		l.tel.RecordIteration(ctx, telemetry.IterationEvent{
			ConversationID: state.ConversationID,
			TaskKey:        state.TaskKey,
			Iteration:      iteration,
			PromptMode:     string(state.PromptMode),
			ActionType:     actionType,
			Status:         status,
			RetryCount:     state.RetryCount,
			TotalRetries:   state.TotalRetryAttempts,
			Duration:       time.Since(start),
		})
	}()

	l.revalidateReadFileFailures(ctx, state)

	raw, chatErr := l.askModel(ctx, state)
	if chatErr != nil {
		err = fmt.Errorf("llm chat: %w", chatErr)
		return nil, err
	}

	if strings.TrimSpace(raw) == "" {
		status = "empty_output"
		if res, done := l.penalize(state, "Your previous response was empty. Emit exactly one recognized tool-call block."); done {
			res.Iterations = iteration
			return &res, nil
		}
		return nil, nil
	}

	if addErr := l.mem.AddMessage(codeact.RoleAssistant, raw, "", false, codeact.MessageMeta{}); addErr != nil {
		err = fmt.Errorf("append assistant turn: %w", addErr)
		return nil, err
	}

	actions := parser.ParseActions(raw)
	if len(actions) == 0 {
		status = "parse_error"
		if res, done := l.penalize(state, "No recognized tool-call block was found in your response. Emit exactly one."); done {
			res.Iterations = iteration
			return &res, nil
		}
		return nil, nil
	}
	actionType = string(actions[len(actions)-1].Type)

	if len(actions) > 1 {
		// Drop the combined raw turn; runTurn re-appends one canonical
		// single-action message per action right before dispatching it,
		// so each tool call's result stays adjacent to its own call
		// (prune_hash pairing in E depends on this).
		l.mem.RemoveLastAssistantMessage()
	}

	res, done, turnErr := l.runTurn(ctx, state, actions, iteration)
	if turnErr != nil {
		err = turnErr
		return nil, err
	}
	if done {
		return &res, nil
	}
	return nil, nil
}

// askModel assembles the prompt and calls component A with the full memory
// log translated to the wire message shape.
func (l *Loop) askModel(ctx context.Context, state *TaskState) (string, error) {
	system, err := l.buildPrompt(ctx, state)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	history := make([]llmstream.Message, 0, len(l.mem.Messages())+1)
	history = append(history, llmstream.Message{Role: "system", Content: system})
	for _, msg := range l.mem.Messages() {
		if msg.Meta.Pruned {
			continue
		}
		role := string(msg.Role)
		if role == string(codeact.RoleDeveloper) {
			role = "system"
		}
		history = append(history, llmstream.Message{Role: role, Content: msg.Content})
	}

	return l.chat.Chat(ctx, history, nil, nil)
}

func (l *Loop) buildPrompt(ctx context.Context, state *TaskState) (string, error) {
	if l.prompt != nil {
		return l.prompt.Build(ctx, state)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\ngoal: %s\nrequirement: %s\n", state.PromptMode, state.RootGoal, state.CurrentRequirement)
	if state.ErrorFeedback != "" {
		fmt.Fprintf(&b, "error feedback:\n%s\n", state.ErrorFeedback)
	}
	if mem := l.mem.MemorizedContent(); mem != "" {
		fmt.Fprintf(&b, "memorized:\n%s\n", mem)
	}
	return b.String(), nil
}

// revalidateReadFileFailures silently re-attempts every read_file path that
// previously failed with a transient-looking error, before the next prompt
// is built, without touching the message log.
func (l *Loop) revalidateReadFileFailures(ctx context.Context, state *TaskState) {
	for path := range state.PendingReadFileErrors {
		act := codeact.Action{Type: codeact.ActionReadFile, Params: map[string]any{"path": path}}
		res := l.dispatch.Dispatch(ctx, state.ConversationID, state.UUID, state.UserID, act)
		if res.Ok() {
			delete(state.PendingReadFileErrors, path)
		}
	}
}

// penalize appends a corrective user message, counts it against the retry
// budget, and reports whether the task must now hard-fail.
func (l *Loop) penalize(state *TaskState, correction string) (Result, bool) {
	state.RetryCount++
	state.TotalRetryAttempts++
	_ = l.mem.AddMessage(codeact.RoleUser, correction, "", true, codeact.MessageMeta{})
	return l.checkRetryCeiling(state)
}

func (l *Loop) checkRetryCeiling(state *TaskState) (Result, bool) {
	if state.RetryCount >= l.cfg.MaxRetryTimes {
		return Result{Outcome: OutcomeHardFailed, Message: fmt.Sprintf("exceeded max retry times (%d)", l.cfg.MaxRetryTimes)}, true
	}
	if l.cfg.MaxTotalRetries > 0 && state.TotalRetryAttempts > l.cfg.MaxTotalRetries {
		return Result{Outcome: OutcomeHardFailed, Message: fmt.Sprintf("exceeded max total retries (%d)", l.cfg.MaxTotalRetries)}, true
	}
	return Result{}, false
}

// runTurn dispatches every action of one parsed turn in emission order,
// applying the per-action-type rules, and reports whether the task reached
// a terminal state.
func (l *Loop) runTurn(ctx context.Context, state *TaskState, actions []codeact.Action, iteration int) (Result, bool, error) {
	var lastResult codeact.ActionResult

	for _, act := range actions {
		if len(actions) > 1 {
			a := act
			_ = l.mem.AddMessage(codeact.RoleAssistant, parser.Serialize(a), a.Type, false, codeact.MessageMeta{Action: &a})
		}
		switch act.Type {
		case codeact.ActionRevisePlan:
			return Result{Outcome: OutcomePaused, Message: "revise_plan requested", Iterations: iteration}, true, nil

		case "pause_for_user_input":
			return Result{Outcome: OutcomePaused, Message: "pause_for_user_input requested", Iterations: iteration}, true, nil

		case codeact.ActionPatchComplete:
			state.PromptMode = ModeBuild
			_ = l.mem.AddMessage(codeact.RoleUser, "Acknowledged.", "", true, codeact.MessageMeta{})
			continue

		case codeact.ActionInformation:
			log.Info().Str("conversation_id", state.ConversationID).Str("content", act.Param("content")).Msg("information")
			_ = l.mem.AddMessage(codeact.RoleUser, "Acknowledged.", "", false, codeact.MessageMeta{})
			continue

		case codeact.ActionEvaluation:
			// A structurally/argument-invalid block the parser rejected.
			// Only that action fails; the turn is not retried wholesale.
			_ = l.mem.AddMessage(codeact.RoleUser, fmt.Sprintf("Action rejected: %s", act.Param("comments")), "", true, codeact.MessageMeta{})
			continue

		case codeact.ActionFinish:
			status := strings.ToUpper(strings.TrimSpace(act.Param("status")))
			if status != "SUCCESS" && status != "FAILED" {
				// Soft-fail: correct and retry, no penalty.
				_ = l.mem.AddMessage(codeact.RoleUser, "finish requires status of SUCCESS or FAILED.", "", true, codeact.MessageMeta{})
				continue
			}
			state.LastFinishStatus = status
			if err := l.dispatch.ArchiveWorkspace(ctx, state.ConversationID, state.TaskKey); err != nil {
				log.Warn().Err(err).Str("conversation_id", state.ConversationID).Msg("workspace archival failed")
			}
			return Result{Outcome: OutcomeFinished, Status: status, Message: act.Param("message"), Iterations: iteration, LastResult: lastResult}, true, nil

		default:
			result := l.dispatch.Dispatch(ctx, state.ConversationID, state.UUID, state.UserID, act)
			lastResult = result
			l.recordReadFileFailure(state, act, result)
			l.appendToolResult(act, result)
			l.updatePromptMode(state, act, result)

			if ceiling, done := l.classifyRetry(state, act, result); done {
				return ceiling, true, nil
			}
		}
	}

	l.runReflection(ctx, state, lastResult)
	return Result{}, false, nil
}

func (l *Loop) appendToolResult(act codeact.Action, result codeact.ActionResult) {
	content := result.Content
	if content == "" && result.Error != "" {
		content = result.Error
	}
	if result.Meta.RunID != "" {
		content += fmt.Sprintf("\n[terminal_run_id:%s]", result.Meta.RunID)
	}
	_ = l.mem.AddMessage(codeact.RoleUser, content, act.Type, true, codeact.MessageMeta{
		ActionType: act.Type,
		ExitCode:   result.Meta.ExitCode,
		RunID:      result.Meta.RunID,
		OriginCwd:  result.Meta.OriginCwd,
		OriginPath: result.Meta.OriginPath,
	})
}

// recordReadFileFailure tracks a non-NOT_FOUND read_file failure so the
// next iteration silently retries it before building a new prompt.
func (l *Loop) recordReadFileFailure(state *TaskState, act codeact.Action, result codeact.ActionResult) {
	if act.Type != codeact.ActionReadFile || result.Ok() {
		return
	}
	code, _ := result.Extra["error_code"].(string)
	if code == "NOT_FOUND" {
		return
	}
	state.PendingReadFileErrors[act.Param("path")] = result.Error
}

// updatePromptMode flips between build and codecorrector around terminal_run
// outcomes; every other action type leaves the mode untouched.
func (l *Loop) updatePromptMode(state *TaskState, act codeact.Action, result codeact.ActionResult) {
	if act.Type != codeact.ActionTerminalRun {
		return
	}
	if result.Ok() {
		state.PromptMode = ModeBuild
		state.LastTerminalFailure = ""
	} else {
		state.PromptMode = ModeCodeCorrector
		state.LastTerminalFailure = result.Content
	}
}

// classifyRetry applies two independent exemptions to a terminal_run
// failure, neither of which counts against the retry budget: a recognized
// test runner whose output carries a strict test-failure signature (an
// expected signal, not an agent mistake), and a plain non-fatal exit 1
// regardless of command recognition. Every other action failure counts.
func (l *Loop) classifyRetry(state *TaskState, act codeact.Action, result codeact.ActionResult) (Result, bool) {
	if result.Ok() {
		return Result{}, false
	}
	if act.Type == codeact.ActionTerminalRun {
		cmd := act.Param("command")
		if runtime.IsTestRunnerCommand(cmd) && runtime.HasTestFailureSignature(result.Content+result.Stdout+result.Stderr) {
			return Result{}, false
		}
		if result.Meta.ExitCode != nil && *result.Meta.ExitCode == 1 {
			return Result{}, false
		}
	}
	state.RetryCount++
	state.TotalRetryAttempts++
	return l.checkRetryCeiling(state)
}

// runReflection calls component I once per turn against the turn's last
// dispatched action result, and folds its verdict into the next prompt's
// error-feedback block.
func (l *Loop) runReflection(ctx context.Context, state *TaskState, lastResult codeact.ActionResult) {
	if l.reflect == nil || lastResult.Status == "" {
		return
	}
	status, comments, err := l.reflect.Reflect(ctx, state.CurrentRequirement, lastResult)
	if err != nil {
		log.Warn().Err(err).Msg("reflection_failed")
		return
	}
	state.Reflection = comments
	if status != "SUCCESS" {
		state.ErrorFeedback = comments
	} else {
		state.ErrorFeedback = ""
	}
}
