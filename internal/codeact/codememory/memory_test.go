package codememory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeact/internal/codeact"
)

type memPersister struct {
	saved []codeact.Message
}

func (p *memPersister) Load() ([]codeact.Message, error) { return nil, nil }
func (p *memPersister) Save(msgs []codeact.Message) error {
	p.saved = append([]codeact.Message{}, msgs...)
	return nil
}

func newTestMemory(t *testing.T, limits Limits) (*Memory, *memPersister) {
	t.Helper()
	p := &memPersister{}
	m, err := New(p, limits, NewPathSanitizer())
	require.NoError(t, err)
	return m, p
}

func writeCodeAction(path, content string) codeact.Action {
	return codeact.Action{Type: codeact.ActionWriteCode, Params: map[string]any{"path": path, "content": content}}
}

func appendToolCall(t *testing.T, m *Memory, path, content string, seq int) {
	t.Helper()
	act := writeCodeAction(path, content)
	body := "<write_code><path>" + path + "</path><!--" + string(rune('a'+seq)) + "--></write_code>"
	err := m.AddMessage(codeact.RoleAssistant, body, codeact.ActionWriteCode, true, codeact.MessageMeta{Action: &act})
	require.NoError(t, err)
}

func TestOccurrencePruningKeepsLatestN(t *testing.T) {
	m, _ := newTestMemory(t, Limits{PruneKeepOccurs: 3, RepeatDetectWindow: 2})
	for i := 0; i < 4; i++ {
		appendToolCall(t, m, "a.py", "content", i)
	}
	msgs := m.Messages()
	prunedCount := 0
	liveCount := 0
	for _, msg := range msgs {
		if msg.ActionType != codeact.ActionWriteCode {
			continue
		}
		if msg.Meta.Pruned {
			prunedCount++
		} else {
			liveCount++
		}
	}
	assert.Equal(t, 3, liveCount, "expected 3 live occurrences")
	assert.Equal(t, 1, prunedCount, "expected 1 pruned occurrence")
}

func TestAdjacentDeduplication(t *testing.T) {
	m, p := newTestMemory(t, Limits{PruneKeepOccurs: 3})
	require.NoError(t, m.AddMessage(codeact.RoleUser, "hello", "", true, codeact.MessageMeta{}))
	require.NoError(t, m.AddMessage(codeact.RoleUser, "hello", "", true, codeact.MessageMeta{}))
	assert.Len(t, p.saved, 1, "expected duplicate to be dropped")
}

func TestSanitizeStripsConversationPath(t *testing.T) {
	m, _ := newTestMemory(t, Limits{PruneKeepOccurs: 3})
	err := m.AddMessage(codeact.RoleUser, "see /workspace/user_12/Conversation_abc123/file.py", "", true, codeact.MessageMeta{})
	require.NoError(t, err)

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.NotEmpty(t, msgs[0].Content)
	for _, bad := range []string{"/workspace/user_12/Conversation_abc123/", "Conversation_abc123/"} {
		assert.NotContains(t, msgs[0].Content, bad)
	}
}

func TestCharBudgetPruneDropsOldGroups(t *testing.T) {
	m, _ := newTestMemory(t, Limits{PruneKeepOccurs: 100, PruneMaxChars: 50})
	big := strings.Repeat("x", 40)
	for i := 0; i < 3; i++ {
		content := big + string(rune('a'+i))
		require.NoError(t, m.AddMessage(codeact.RoleUser, content, "", true, codeact.MessageMeta{}))
	}
	msgs := m.Messages()
	total := 0
	for _, msg := range msgs {
		total += estimateCost(msg)
	}
	assert.LessOrEqual(t, total, 50, "expected budget-pruned total")
}
