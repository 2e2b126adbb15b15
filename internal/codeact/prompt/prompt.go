// Package prompt implements component G: assembling the per-iteration
// system prompt the control loop (F) hands to component A. The role header
// switches between a build-phase voice and a corrective codecorrector voice
// depending on TaskState.PromptMode; everything else (tool catalog,
// workspace listing, memorized content, error feedback) is common.
package prompt

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"codeact/internal/codeact/loop"
	"codeact/internal/hostinfo"
)

const cacheTTL = 5 * time.Minute

// MemorizedContentSource supplies component E's memorized-message digest.
type MemorizedContentSource interface {
	MemorizedContent() string
}

// Builder is component G.
type Builder struct {
	workspaceRoot string
	memory        MemorizedContentSource
	mcp           MCPCatalog
	cache         Cache
}

// New constructs a Builder. mcp and cache may be nil.
func New(workspaceRoot string, memory MemorizedContentSource, mcp MCPCatalog, cache Cache) *Builder {
	return &Builder{workspaceRoot: workspaceRoot, memory: memory, mcp: mcp, cache: cache}
}

// Build renders the full system prompt for the current task state.
func (b *Builder) Build(ctx context.Context, state *loop.TaskState) (string, error) {
	var sys strings.Builder

	sys.WriteString(roleHeader(state.PromptMode))
	sys.WriteString("\n\n")
	sys.WriteString(b.systemDescriptor())
	sys.WriteString("\n\n")
	sys.WriteString("Available tools:\n")
	sys.WriteString(b.renderCatalog(ctx))
	sys.WriteString("\n\n")
	sys.WriteString("Workspace listing:\n")
	sys.WriteString(b.renderListing(ctx))
	sys.WriteString("\n\n")

	if b.memory != nil {
		if mem := b.memory.MemorizedContent(); strings.TrimSpace(mem) != "" {
			fmt.Fprintf(&sys, "Memorized context from earlier in this conversation:\n%s\n\n", mem)
		}
	}

	fmt.Fprintf(&sys, "Root goal: %s\nCurrent requirement: %s\n", state.RootGoal, state.CurrentRequirement)

	if state.ErrorFeedback != "" && state.LastFinishStatus != "SUCCESS" {
		fmt.Fprintf(&sys, "\nError feedback from the previous attempt:\n%s\n", state.ErrorFeedback)
	}

	sys.WriteString("\nEmit exactly one recognized XML tool-call block per action. When a task is genuinely complete, emit finish with status SUCCESS or FAILED.")

	return sys.String(), nil
}

func roleHeader(mode loop.PromptMode) string {
	if mode == loop.ModeCodeCorrector {
		return "You are a careful code-correction agent. The previous terminal command failed; " +
			"diagnose the failure from the output below and make the minimal change needed to fix it " +
			"before attempting anything else."
	}
	return "You are a code-acting agent. Plan briefly, then make progress by emitting tool-call actions " +
		"against the workspace one turn at a time."
}

func (b *Builder) systemDescriptor() string {
	info, err := hostinfo.GetHostInfo()
	if err != nil {
		return fmt.Sprintf("Environment: unknown (hostinfo error: %v). Current time: %s.", err, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("Environment: %s/%s, %d CPUs. Current time: %s.",
		info.OS, info.Arch, info.CPUs, time.Now().UTC().Format(time.RFC3339))
}

func (b *Builder) renderCatalog(ctx context.Context) string {
	key := "prompt:catalog"
	if cached, ok := getCached(b.cache, ctx, key); ok {
		return cached
	}

	catalog := append([]ToolSpec{}, staticCatalog...)
	if b.mcp != nil {
		catalog = append(catalog, b.mcp.Tools()...)
	}

	var lines []string
	for _, t := range catalog {
		lines = append(lines, fmt.Sprintf("- %s(%s): %s", t.Name, strings.Join(t.Fields, ", "), t.Description))
	}
	out := strings.Join(lines, "\n")
	setCached(b.cache, ctx, key, out)
	return out
}

func (b *Builder) renderListing(ctx context.Context) string {
	key := "prompt:listing:" + hashString(b.workspaceRoot)
	if cached, ok := getCached(b.cache, ctx, key); ok {
		return cached
	}
	out := renderWorkspaceListing(b.workspaceRoot)
	setCached(b.cache, ctx, key, out)
	return out
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

// getCached/setCached tolerate a nil Cache (caching disabled).
func getCached(cache Cache, ctx context.Context, key string) (string, bool) {
	if cache == nil {
		return "", false
	}
	return cache.Get(ctx, key)
}

func setCached(cache Cache, ctx context.Context, key, value string) {
	if cache == nil {
		return
	}
	cache.Set(ctx, key, value, cacheTTL)
}
