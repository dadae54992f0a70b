package main

import (
	"sync"
)

// maxAttempts is the per-player guess limit within one session.
const maxAttempts = 3

// AttemptTracker counts guess submissions per (session, player). It
// lives outside the Session entity so counts reset cleanly with the
// session and concurrent submissions serialize on a narrower resource
// than the whole session.
type AttemptTracker struct {
	mu       sync.Mutex
	attempts map[string]map[string]int
}

func newAttemptTracker() *AttemptTracker {
	return &AttemptTracker{
		attempts: make(map[string]map[string]int),
	}
}

// Get returns the current count, zero if nothing was ever recorded.
func (t *AttemptTracker) Get(sessionID, playerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.attempts[sessionID][playerID]
}

// Increment bumps the count, creating entries lazily on first use.
func (t *AttemptTracker) Increment(sessionID, playerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.attempts[sessionID] == nil {
		t.attempts[sessionID] = make(map[string]int)
	}
	t.attempts[sessionID][playerID]++

	return t.attempts[sessionID][playerID]
}

// ClearSession discards every count for a session. Called when the
// session is deleted; there is no implicit cascade.
func (t *AttemptTracker) ClearSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.attempts, sessionID)
}

// ClearPlayer discards one player's count, so a departing player's
// slot does not pass attempts on to whoever joins next.
func (t *AttemptTracker) ClearPlayer(sessionID, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.attempts[sessionID], playerID)
}
