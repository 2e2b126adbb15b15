// Package codememory implements component E: the ordered, persisted
// per-(conversation, task) message log with anti-loop detection, key-based
// grouping and the two pruning passes (occurrence-based and
// character-budget).
package codememory

import (
	"fmt"
	"strings"
	"sync"

	"codeact/internal/codeact"
)

// Limits carries the tunable anti-loop/pruning constants.
type Limits struct {
	RepeatDetectWindow int
	PruneKeepOccurs    int
	PruneMaxChars      int
}

// Persister loads and atomically saves the message slice for one
// (conversation, task) file.
type Persister interface {
	Load() ([]codeact.Message, error)
	Save([]codeact.Message) error
}

// Memory is the per-task message log. Not safe for use by more than one
// task loop concurrently on the same file.
type Memory struct {
	mu       sync.Mutex
	limits   Limits
	sanitize func(string) string
	persist  Persister

	messages      []codeact.Message
	pendingRepeat string // queued "repeated output" error text, if any
}

// New constructs a Memory backed by persist, with content sanitized by
// sanitizeFn (stripping conversation-workspace path fragments).
func New(persist Persister, limits Limits, sanitizeFn func(string) string) (*Memory, error) {
	msgs, err := persist.Load()
	if err != nil {
		return nil, err
	}
	if sanitizeFn == nil {
		sanitizeFn = func(s string) string { return s }
	}
	return &Memory{limits: limits, sanitize: sanitizeFn, persist: persist, messages: msgs}, nil
}

// Messages returns a snapshot of the current message slice.
func (m *Memory) Messages() []codeact.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]codeact.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// AddMessage runs the full sanitize/key-derivation/dedup/prune pipeline
// and persists the result.
func (m *Memory) AddMessage(role codeact.Role, content string, actionType codeact.ActionType, memorized bool, meta codeact.MessageMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	content = m.sanitize(content)
	if actionType == "" {
		actionType = detectActionType(content)
	}
	meta.ActionType = actionType

	msg := codeact.Message{Role: role, Content: content, ActionType: actionType, Memorized: memorized, Meta: meta}

	// Inject any pending repeat-forcing error by replacing the next
	// "Acknowledged." user message, or prepending before the next
	// assistant append (step 3).
	if m.pendingRepeat != "" {
		if role == codeact.RoleUser && strings.TrimSpace(content) == "Acknowledged." {
			msg.Content = m.pendingRepeat
			m.pendingRepeat = ""
		} else if role == codeact.RoleAssistant {
			m.messages = append(m.messages, codeact.Message{
				Role: codeact.RoleUser, Content: m.pendingRepeat, Memorized: true,
			})
			m.pendingRepeat = ""
		}
	}
	// Step 3: anti-loop detection on assistant messages; the error it
	// queues is injected on a later append.
	if role == codeact.RoleAssistant {
		h := repeatHash(content)
		msg.Meta.RepeatHash = h
		if m.matchesRecentAssistantHash(h) {
			m.queueRepeatError()
		}
	}

	// Step 4: adjacent de-duplication.
	if n := len(m.messages); n > 0 {
		last := m.messages[n-1]
		if last.Role == msg.Role && last.Content == msg.Content {
			return m.persist.Save(m.messages)
		}
	}

	// Step 5: key derivation.
	m.deriveKeys(&msg)

	// Steps 6-7: pruning, evaluated against history plus the about-to-be
	// appended message.
	if err := m.pruneOccurrences(msg); err != nil {
		return err
	}
	m.pruneByCharBudget(msg)

	m.messages = append(m.messages, msg)
	return m.persist.Save(m.messages)
}

func (m *Memory) matchesRecentAssistantHash(h string) bool {
	window := m.limits.RepeatDetectWindow
	if window <= 0 {
		return false
	}
	count := 0
	for i := len(m.messages) - 1; i >= 0 && count < window; i-- {
		msg := m.messages[i]
		if msg.Role != codeact.RoleAssistant || msg.Meta.Pruned {
			continue
		}
		if msg.Meta.RepeatHash == h {
			return true
		}
		count++
	}
	return false
}

func (m *Memory) queueRepeatError() {
	m.pendingRepeat = "Repeated output detected: the previous assistant message duplicates an earlier one within the anti-loop window. Produce a different action or explain why repeating is necessary."
}

// RemoveLastAssistantMessage drops the last message if it is from the
// assistant (used by F to discard an invalid turn).
func (m *Memory) RemoveLastAssistantMessage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.messages)
	if n == 0 || m.messages[n-1].Role != codeact.RoleAssistant {
		return false
	}
	m.messages = m.messages[:n-1]
	_ = m.persist.Save(m.messages)
	return true
}

// PopLastMessage removes and returns the last message regardless of role.
func (m *Memory) PopLastMessage() (codeact.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.messages)
	if n == 0 {
		return codeact.Message{}, false
	}
	last := m.messages[n-1]
	m.messages = m.messages[:n-1]
	_ = m.persist.Save(m.messages)
	return last, true
}

// RemoveMessagesWhere deletes every message matching pred, returning the
// count removed. A caller can purge a terminal run with a predicate that
// matches on meta.run_id or the "[terminal_run_id:<id>]" text marker.
func (m *Memory) RemoveMessagesWhere(pred func(codeact.Message) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.messages[:0:0]
	removed := 0
	for _, msg := range m.messages {
		if pred(msg) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	_ = m.persist.Save(m.messages)
	return removed
}

// MemorizedContent concatenates action_memory (or a synthesized
// "TYPE: content" fallback) for every memorized message, sanitized.
func (m *Memory) MemorizedContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	for _, msg := range m.messages {
		if !msg.Memorized {
			continue
		}
		entry := msg.Meta.ActionMemory
		if entry == "" {
			entry = fmt.Sprintf("%s: %s", msg.ActionType, msg.Content)
		}
		b.WriteString(m.sanitize(entry))
		b.WriteString("\n")
	}
	return b.String()
}

// detectActionType looks for an XML opener at the start of content (after
// stripping a leading <think>...</think> block).
func detectActionType(content string) codeact.ActionType {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "<think>") {
		if end := strings.Index(s, "</think>"); end >= 0 {
			s = strings.TrimSpace(s[end+len("</think>"):])
		}
	}
	if !strings.HasPrefix(s, "<") {
		return ""
	}
	end := strings.IndexAny(s[1:], " \t\n>")
	if end < 0 {
		return ""
	}
	return codeact.ActionType(s[1 : 1+end])
}
