package session

import (
	"sync"

	"github.com/hrygo/lily/plugin/ai"
)

// Transcript is the ordered list of turns of one session.
// Insertion order is conversation order; turns are never edited in place.
type Transcript struct {
	mu    sync.RWMutex
	turns []ai.Turn
}

// Append builds a turn from role and text and appends it.
func (t *Transcript) Append(role ai.Role, text string) {
	var turn ai.Turn
	switch role {
	case ai.RoleAssistant:
		turn = ai.AssistantTurn(text)
	default:
		turn = ai.UserTurn(text)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// RemoveLastUser removes the final turn if it is a user turn.
// Assistant turns are never removed. Reports whether a turn was removed.
func (t *Transcript) RemoveLastUser() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.turns)
	if n == 0 || t.turns[n-1].Role != ai.RoleUser {
		return false
	}
	t.turns[n-1] = ai.Turn{}
	t.turns = t.turns[:n-1]
	return true
}

// Trim drops the oldest turns so that at most maxTurns remain.
// Turns are dropped in user/assistant pairs and the result always starts
// with a user turn. maxTurns <= 0 disables trimming. Returns the number dropped.
func (t *Transcript) Trim(maxTurns int) int {
	if maxTurns <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.turns)
	if n <= maxTurns {
		return 0
	}

	drop := n - maxTurns
	if drop%2 == 1 {
		drop++
	}
	for drop < n && t.turns[drop].Role != ai.RoleUser {
		drop++
	}
	if drop > n {
		drop = n
	}

	kept := make([]ai.Turn, n-drop, max(maxTurns, n-drop))
	copy(kept, t.turns[drop:])
	t.turns = kept
	return drop
}

// Turns returns a copy of the turns.
func (t *Transcript) Turns() []ai.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ai.Turn, len(t.turns))
	copy(result, t.turns)
	return result
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
