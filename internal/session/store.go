// ABOUTME: Lock-guarded registry of live sessions keyed by id, in creation order.
// ABOUTME: Resolves the implicit target of legacy message posts.

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store tracks open sessions. The id map and the creation-order slice always
// hold exactly the same ids; both change only under the write lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // ids, oldest first
	seq      uint64
	logger   *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "sessions"),
	}
}

// Create registers a new session for id writing to ch.
func (st *Store) Create(id string, ch Channel) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	if ch == nil {
		return nil, errors.New("session channel is required")
	}

	st.mu.Lock()
	if _, exists := st.sessions[id]; exists {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSessionID, id)
	}
	st.seq++
	sess := newSession(id, ch, st, st.seq)
	st.sessions[id] = sess
	st.order = append(st.order, id)
	count := len(st.sessions)
	st.mu.Unlock()

	st.logger.Debug("session created", "session_id", id, "order", sess.order, "active", count)
	return sess, nil
}

// Get returns the live session registered under id. A session that has
// started closing is not live.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || sess.Closed() {
		return nil, false
	}
	return sess, true
}

// Remove drops id from the store and closes its session. It reports whether
// the id was present; removing an unknown id is a no-op.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if ok {
		st.removeLocked(id)
	}
	st.mu.Unlock()

	if !ok {
		return false
	}
	_ = sess.Close()
	return true
}

// release is called by Session.Close. It removes the entry only if it still
// points at s.
func (st *Store) release(s *Session) {
	st.mu.Lock()
	current, ok := st.sessions[s.id]
	if ok && current == s {
		st.removeLocked(s.id)
	}
	count := len(st.sessions)
	st.mu.Unlock()

	if ok {
		st.logger.Debug("session removed", "session_id", s.id, "active", count)
	}
}

func (st *Store) removeLocked(id string) {
	delete(st.sessions, id)
	for i, candidate := range st.order {
		if candidate == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
}

// ResolveImplicit picks the target for a message that names no session:
// none when no session is open, the only session when exactly one is open, and
// the most recently created session otherwise. With several concurrent clients
// the last case can route a message to the wrong client.
func (st *Store) ResolveImplicit() (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if len(st.order) == 0 {
		return nil, false
	}
	sess, ok := st.sessions[st.order[len(st.order)-1]]
	return sess, ok
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the open session ids, oldest first.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, len(st.order))
	copy(ids, st.order)
	return ids
}

// CloseAll closes every open session. Used on shutdown so stream handlers return.
func (st *Store) CloseAll() {
	st.mu.RLock()
	open := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		open = append(open, sess)
	}
	st.mu.RUnlock()

	for _, sess := range open {
		_ = sess.Close()
	}
	st.logger.Debug("all sessions closed", "count", len(open))
}
