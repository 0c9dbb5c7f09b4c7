// session.go implements the immersive follow-up session table: one live
// session per (group, user), armed when the agent replies to that user and
// consumed by their next message within the TTL.
package attention

import (
	"log/slog"
	"sync"
	"time"
)

// SessionKey identifies an immersive session.
type SessionKey struct {
	GroupID string
	UserID  string
}

// immersiveSession is a single armed follow-up slot. Guarded by the table
// mutex; never escapes the table.
type immersiveSession struct {
	// token distinguishes this session from any later session armed for
	// the same key, so a stale expiry callback cannot remove a successor.
	token uint64

	snapshot Snapshot
	expiry   *time.Timer
}

// SessionTable holds at most one live immersive session per (group, user).
// Arm, TryConsume, Invalidate and expiry all linearize on one mutex, which
// is held only for the map mutation, never across a decision call.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[SessionKey]*immersiveSession
	nextTok  uint64
	logger   *slog.Logger
}

// NewSessionTable creates an empty session table.
func NewSessionTable(logger *slog.Logger) *SessionTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTable{
		sessions: make(map[SessionKey]*immersiveSession),
		logger:   logger.With("component", "sessions"),
	}
}

// Arm installs a live session for key, replacing (and cancelling the expiry
// of) any existing one. The snapshot is returned verbatim by a later
// TryConsume. After ttl the session silently removes itself.
func (t *SessionTable) Arm(key SessionKey, snapshot Snapshot, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.sessions[key]; ok {
		prev.expiry.Stop()
	}

	t.nextTok++
	s := &immersiveSession{
		token:    t.nextTok,
		snapshot: snapshot,
	}
	tok := s.token
	s.expiry = time.AfterFunc(ttl, func() {
		t.expire(key, tok)
	})
	t.sessions[key] = s

	t.logger.Debug("session armed",
		"group", key.GroupID, "user", key.UserID, "ttl", ttl)
}

// TryConsume atomically removes the live session for key and returns its
// snapshot. This is the single linearization point that rules out both
// double consumption and consume-after-expiry.
func (t *SessionTable) TryConsume(key SessionKey) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key]
	if !ok {
		return Snapshot{}, false
	}
	s.expiry.Stop()
	delete(t.sessions, key)

	t.logger.Debug("session consumed", "group", key.GroupID, "user", key.UserID)
	return s.snapshot, true
}

// Invalidate cancels and removes the session for key, if any. Idempotent.
// Used when the user's next message turns out to be a command rather than
// a follow-up.
func (t *SessionTable) Invalidate(key SessionKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key]
	if !ok {
		return
	}
	s.expiry.Stop()
	delete(t.sessions, key)

	t.logger.Debug("session invalidated", "group", key.GroupID, "user", key.UserID)
}

// Clear cancels every live session. Called on shutdown.
func (t *SessionTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, s := range t.sessions {
		s.expiry.Stop()
		delete(t.sessions, key)
	}
}

// Len reports the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// expire removes a session on TTL expiry. The token check makes a late
// callback from a superseded session a no-op: a fresh session armed for
// the same key carries a newer token.
func (t *SessionTable) expire(key SessionKey, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key]
	if !ok || s.token != token {
		return
	}
	delete(t.sessions, key)

	t.logger.Debug("session expired", "group", key.GroupID, "user", key.UserID)
}
