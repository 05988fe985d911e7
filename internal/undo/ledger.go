// Package undo keeps per-user stacks of removed strokes awaiting redo.
// State is in-memory only; redo history is a convenience and is lost on
// restart.
package undo

import (
	"sync"

	"whiteboard-backend/internal/model"
)

// Ledger is keyed by user id. A user's redo history is global across boards:
// undoing on one board and redoing on another replays the same stack.
// Scoping by (user, board) is a pending product decision.
type Ledger struct {
	mu     sync.Mutex
	stacks map[string][]model.Stroke
}

func NewLedger() *Ledger {
	return &Ledger{
		stacks: make(map[string][]model.Stroke),
	}
}

// RecordRemoval pushes a removed stroke snapshot onto the user's stack.
// Depth is unbounded.
func (l *Ledger) RecordRemoval(userID string, stroke model.Stroke) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stacks[userID] = append(l.stacks[userID], stroke)
}

// PopForRedo removes and returns the most recently pushed snapshot. An empty
// or absent stack is a normal outcome, reported via ok=false.
func (l *Ledger) PopForRedo(userID string) (model.Stroke, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack := l.stacks[userID]
	if len(stack) == 0 {
		return model.Stroke{}, false
	}

	stroke := stack[len(stack)-1]
	l.stacks[userID] = stack[:len(stack)-1]
	if len(l.stacks[userID]) == 0 {
		delete(l.stacks, userID)
	}
	return stroke, true
}

// Clear empties the user's stack. Every fresh stroke by the user clears it:
// linear history, no redo after a new edit.
func (l *Ledger) Clear(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.stacks, userID)
}

// Depth returns the user's current stack size.
func (l *Ledger) Depth(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.stacks[userID])
}
