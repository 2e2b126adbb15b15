package codememory

import (
	"fmt"

	"codeact/internal/codeact"
)

// occurrence is one (assistant tool-call message, optional adjacent user
// result) pair sharing a toolCallKey.
type occurrence struct {
	callIdx   int
	resultIdx int // -1 if no adjacent result
}

// pruneOccurrences operates on the about-to-be-appended message's
// toolCallKey (if any), and blanks every occurrence beyond the newest
// PRUNE_KEEP_OCCURRENCES-1 already in history (the incoming message itself
// is the Nth kept occurrence).
func (m *Memory) pruneOccurrences(incoming codeact.Message) error {
	if incoming.Meta.ToolCallKey == "" {
		return nil
	}
	key := incoming.Meta.ToolCallKey

	var occurrences []occurrence
	for i, msg := range m.messages {
		if msg.Role != codeact.RoleAssistant || msg.Meta.ToolCallKey != key {
			continue
		}
		if msg.Meta.PruneHash != incoming.Meta.PruneHash {
			return fmt.Errorf("prune safety violation: toolCallKey %s has divergent prune_hash", key)
		}
		occ := occurrence{callIdx: i, resultIdx: -1}
		if i+1 < len(m.messages) {
			next := m.messages[i+1]
			if next.Role == codeact.RoleUser && next.Meta.PruneHash == msg.Meta.PruneHash {
				occ.resultIdx = i + 1
			}
		}
		occurrences = append(occurrences, occ)
	}

	keepFromHistory := m.limits.PruneKeepOccurs - 1
	if keepFromHistory < 0 {
		keepFromHistory = 0
	}
	if len(occurrences) <= keepFromHistory {
		return nil
	}
	toBlank := occurrences[:len(occurrences)-keepFromHistory]
	for _, occ := range toBlank {
		m.blank(occ.callIdx)
		if occ.resultIdx >= 0 {
			m.blank(occ.resultIdx)
		}
	}
	return nil
}

func (m *Memory) blank(idx int) {
	msg := &m.messages[idx]
	msg.Content = ""
	msg.Memorized = false
	msg.Meta.Pruned = true
	msg.Meta.PrunedReason = "occurrence limit exceeded"
	msg.Meta.ActionMemory = ""
	msg.Meta.Diff = ""
	msg.Meta.Stdout = ""
	msg.Meta.Stderr = ""
	msg.Meta.Result = ""
	if msg.Meta.Action != nil {
		delete(msg.Meta.Action.Params, "content")
		delete(msg.Meta.Action.Params, "diff")
		delete(msg.Meta.Action.Params, "code_block")
	}
}

// pruneByCharBudget groups contiguous messages by prune_hash, walks newest
// to oldest accumulating cost, and drops whole older groups (never
// splitting one) once the budget is exceeded.
func (m *Memory) pruneByCharBudget(incoming codeact.Message) {
	budget := m.limits.PruneMaxChars
	if budget <= 0 {
		return
	}

	groups := groupByPruneHash(m.messages)
	total := estimateCost(incoming)
	keepFrom := len(groups)
	for i := len(groups) - 1; i >= 0; i-- {
		cost := 0
		for _, idx := range groups[i] {
			cost += estimateCost(m.messages[idx])
		}
		if total+cost > budget {
			keepFrom = i + 1
			break
		}
		total += cost
		keepFrom = i
	}
	if keepFrom == 0 {
		return
	}

	dropUpTo := 0
	if keepFrom > 0 && keepFrom <= len(groups) {
		grp := groups[keepFrom-1]
		dropUpTo = grp[len(grp)-1] + 1
	}
	if dropUpTo == 0 {
		return
	}
	m.messages = append([]codeact.Message{}, m.messages[dropUpTo:]...)
}

// groupByPruneHash partitions messages into maximal contiguous runs
// sharing the same (non-empty) prune_hash; messages with no prune_hash
// form singleton groups.
func groupByPruneHash(messages []codeact.Message) [][]int {
	var groups [][]int
	var cur []int
	var curHash string
	for i, msg := range messages {
		h := msg.Meta.PruneHash
		if len(cur) > 0 && h != "" && h == curHash {
			cur = append(cur, i)
			continue
		}
		if len(cur) > 0 {
			groups = append(groups, cur)
		}
		cur = []int{i}
		curHash = h
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func estimateCost(msg codeact.Message) int {
	return len(msg.Content) + len(msg.ActionType) + len(msg.Meta.ActionMemory)
}
