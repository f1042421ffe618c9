// Package guard implements the scoped compensation pattern used by the
// saga aggregates: every outbound effect that would need undoing acquires a
// guard carrying the compensating action, and a handler that returns early
// leaves its guards uncommitted, firing the compensations.
package guard

import "sync"

// Guard holds one deferred compensating action. Release without a prior
// Commit schedules the action asynchronously (fire and forget); Commit
// discards it. The action must be idempotent — the scheduler gives no
// ordering guarantee across retries.
type Guard struct {
	mu     sync.Mutex
	action func()
}

// New wraps a compensating action.
func New(action func()) *Guard {
	return &Guard{action: action}
}

// Commit discards the compensation; the guarded effect is now permanent.
func (g *Guard) Commit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.action = nil
}

// Release fires the compensation in the background unless Commit ran first.
// Intended for use with defer directly after acquiring the guard.
func (g *Guard) Release() {
	g.mu.Lock()
	action := g.action
	g.action = nil
	g.mu.Unlock()
	if action != nil {
		go action()
	}
}
