package session

import (
	"sync"

	"github.com/user/hausbot/internal/types"
)

// DefaultMaxTurns bounds the context window when no explicit limit is
// configured.
const DefaultMaxTurns = 20

// Window is the bounded, ordered list of turns sent to the backend on
// every request. Index 0 is always the system turn and is never evicted;
// when the window overflows, the oldest non-system turns are dropped.
//
// The internal mutex makes individual reads and writes safe, but turn
// ordering (user/assistant alternation) is guaranteed by the Store's
// per-session lock, not here.
type Window struct {
	mu       sync.RWMutex
	turns    []types.Turn
	maxTurns int
}

// NewWindow creates a window seeded with the system turn. maxTurns counts
// the system turn; values below 2 fall back to DefaultMaxTurns.
func NewWindow(systemPrompt string, maxTurns int) *Window {
	if maxTurns < 2 {
		maxTurns = DefaultMaxTurns
	}
	w := &Window{
		turns:    make([]types.Turn, 0, maxTurns),
		maxTurns: maxTurns,
	}
	w.turns = append(w.turns, types.Turn{Role: types.RoleSystem, Content: systemPrompt})
	return w
}

// Append adds a turn, dropping the oldest non-system turns when the
// window exceeds its limit.
func (w *Window) Append(turn types.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.turns = append(w.turns, turn)
	for len(w.turns) > w.maxTurns {
		w.turns = append(w.turns[:1], w.turns[2:]...)
	}
}

// Snapshot returns a copy of the current turns, safe to hand to the
// backend request builder after the session lock is released.
func (w *Window) Snapshot() []types.Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Len returns the number of turns including the system turn.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Reset drops all turns except a fresh system turn.
func (w *Window) Reset(systemPrompt string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.turns = w.turns[:0]
	w.turns = append(w.turns, types.Turn{Role: types.RoleSystem, Content: systemPrompt})
}
