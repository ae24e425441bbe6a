package session

import (
	"sort"
	"sync"
	"time"

	"github.com/user/hausbot/internal/types"
)

// DefaultTTL is how long an idle session survives before the sweep
// removes it.
const DefaultTTL = 300 * time.Second

// Session holds one conversation's window and activity time. The mu field
// serializes all turns against the session: a caller owns the session from
// Acquire until Release and no other turn for the same key can interleave.
type Session struct {
	Key    types.SessionKey
	Window *Window

	lastActivity time.Time
	mu           sync.Mutex
}

// Store is the in-memory session map and the only shared mutable state in
// the gateway. Operations on different keys proceed independently; all
// operations against one key are mutually exclusive via the session lock.
type Store struct {
	mu       sync.Mutex
	sessions map[types.SessionKey]*Session
	maxTurns int
}

// NewStore creates an empty store whose windows hold at most maxTurns
// turns each.
func NewStore(maxTurns int) *Store {
	return &Store{
		sessions: make(map[types.SessionKey]*Session),
		maxTurns: maxTurns,
	}
}

// Acquire returns the session for key with its lock held, creating it
// seeded with the system turn on first use. The caller must call Release
// when the turn is finished. Activity is bumped so an in-flight session is
// never considered idle.
func (s *Store) Acquire(key types.SessionKey, systemPrompt string) *Session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[key]
		if !ok {
			sess = &Session{
				Key:          key,
				Window:       NewWindow(systemPrompt, s.maxTurns),
				lastActivity: time.Now(),
			}
			s.sessions[key] = sess
		}
		s.mu.Unlock()

		sess.mu.Lock()

		// The sweep may have removed the session between the map lookup
		// and taking the session lock. Only proceed if it is still the
		// current entry for the key; otherwise start over.
		s.mu.Lock()
		current := s.sessions[key] == sess
		if current {
			sess.lastActivity = time.Now()
		}
		s.mu.Unlock()
		if current {
			return sess
		}
		sess.mu.Unlock()
	}
}

// Release unlocks a session previously returned by Acquire.
func (s *Store) Release(sess *Session) {
	sess.mu.Unlock()
}

// Append adds a turn to an acquired session's window and bumps activity.
// The caller must hold the session via Acquire.
func (s *Store) Append(sess *Session, turn types.Turn) {
	sess.Window.Append(turn)
	s.mu.Lock()
	sess.lastActivity = time.Now()
	s.mu.Unlock()
}

// Peek returns a snapshot of the session's window without taking the
// session lock, so it never waits behind an in-flight turn. The window's
// own mutex makes the read safe; the snapshot may be mid-turn stale.
func (s *Store) Peek(key types.SessionKey) ([]types.Turn, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return sess.Window.Snapshot(), true
}

// Reset clears the conversation for key back to just the system turn.
// It is a no-op for unknown keys.
func (s *Store) Reset(key types.SessionKey, systemPrompt string) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	sess.Window.Reset(systemPrompt)
	sess.mu.Unlock()

	s.mu.Lock()
	sess.lastActivity = time.Now()
	s.mu.Unlock()
}

// Sweep removes every session idle longer than ttl, skipping sessions
// whose lock is currently held by an in-flight turn. Returns the number
// of sessions removed.
func (s *Store) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.lastActivity) <= ttl {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		delete(s.sessions, key)
		sess.mu.Unlock()
		removed++
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats returns a point-in-time view of all sessions, sorted by key for
// stable output.
func (s *Store) Stats() []types.SessionStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]types.SessionStat, 0, len(s.sessions))
	for _, sess := range s.sessions {
		stats = append(stats, types.SessionStat{
			Key:          sess.Key,
			Turns:        sess.Window.Len(),
			LastActivity: sess.lastActivity,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Stat returns the view for one session, if it exists.
func (s *Store) Stat(key types.SessionKey) (types.SessionStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return types.SessionStat{}, false
	}
	return types.SessionStat{
		Key:          sess.Key,
		Turns:        sess.Window.Len(),
		LastActivity: sess.lastActivity,
	}, true
}
