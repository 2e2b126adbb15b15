// Command codeact runs a single code-acting task from the command line
// against the in-process LocalSandboxClient, for local development and
// scripted smoke tests of the control loop without standing up codeactd.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codeact/internal/codeact/codememory"
	"codeact/internal/codeact/llmstream"
	"codeact/internal/codeact/loop"
	"codeact/internal/codeact/prompt"
	"codeact/internal/codeact/reflect"
	"codeact/internal/codeact/runtime"
	"codeact/internal/codeact/telemetry"
	"codeact/internal/config"
	"codeact/internal/observability"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	goal := flag.String("q", "", "root goal for the task")
	taskKey := flag.String("task", "cli", "task key, used to key the memory file")
	conv := flag.String("conv", "", "conversation id (random if omitted)")
	flag.Parse()
	if *goal == "" {
		fmt.Fprintln(os.Stderr, "usage: codeact -q \"...\"")
		os.Exit(2)
	}
	if *conv == "" {
		*conv = uuid.NewString()
	}

	if err := run(cfg, *goal, *taskKey, *conv); err != nil {
		log.Fatal().Err(err).Msg("codeact")
	}
}

func run(cfg config.Config, goal, taskKey, convID string) error {
	ctx := context.Background()

	httpClient := observability.NewHTTPClient(nil)
	chat := llmstream.New(cfg.SSE, httpClient)

	reflectAdapter, err := reflect.Build(cfg.Reflection, httpClient)
	if err != nil {
		log.Warn().Err(err).Msg("reflection adapter disabled")
		reflectAdapter = nil
	}

	convPrefix := "Conversation_" + convID
	memDir := cfg.Store.MemoryDir
	if memDir == "" {
		memDir = "memory"
	}
	store := codememory.NewFileStore(memDir, "user_cli", convPrefix+"_"+taskKey)
	limits := codememory.Limits{
		RepeatDetectWindow: cfg.Limits.RepeatDetectWindow,
		PruneKeepOccurs:    cfg.Limits.PruneKeepOccurs,
		PruneMaxChars:      cfg.Limits.PruneMaxChars,
	}
	mem, err := codememory.New(store, limits, codememory.NewPathSanitizer())
	if err != nil {
		return fmt.Errorf("init memory: %w", err)
	}

	root := filepath.Join(cfg.WorkspaceRoot, "user_cli", convPrefix)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	timeout := time.Duration(cfg.Limits.TerminalRunTimeout) * time.Millisecond
	sandbox := runtime.NewLocalSandboxClient(root, timeout)

	web := runtime.NewHTTPWebAdapter(cfg.Web.SearchURL, cfg.Web.SearchAPIKey)
	browser := runtime.NewChromeDPBrowserAdapter(cfg.Browser.NavigateURL)
	dispatch := runtime.New(sandbox, web, browser, nil, nil, nil, "")

	promptBuilder := prompt.New(cfg.WorkspaceRoot, mem, nil, nil)
	loopCfg := loop.Config{MaxRetryTimes: cfg.Limits.MaxRetryTimes, MaxTotalRetries: cfg.Limits.MaxTotalRetries}
	l := loop.New(loopCfg, chat, promptBuilder, mem, dispatch, reflectAdapter, telemetry.Noop())

	state := &loop.TaskState{
		ConversationID: convID,
		TaskKey:        taskKey,
		UUID:           uuid.NewString(),
		UserID:         "cli",
		RootGoal:       goal,
	}

	result, err := l.RunTask(ctx, state)
	if err != nil {
		return fmt.Errorf("run task: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
