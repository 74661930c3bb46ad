// ABOUTME: A Session is one addressable, ordered channel to one connected client.
// ABOUTME: Close is idempotent: release the channel, then drop out of the store.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Session errors
var (
	ErrChannelClosed      = errors.New("session channel closed")
	ErrDuplicateSessionID = errors.New("duplicate session id")
	ErrSessionNotFound    = errors.New("session not found")
)

// Channel is the write side of one client connection. Write must return
// ErrChannelClosed once Close has been called, including for writes that are
// blocked at that moment.
type Channel interface {
	Write(ctx context.Context, msg []byte) error
	Close() error
}

// Session owns exactly one Channel. Messages sent through a session reach the
// channel in the order Send was called.
type Session struct {
	id        string
	order     uint64
	createdAt time.Time
	ch        Channel
	store     *Store

	sendMu    sync.Mutex
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a session that is not tracked by any store. The stdio binding
// uses this for its single process-lifetime session.
func New(id string, ch Channel) *Session {
	return newSession(id, ch, nil, 0)
}

func newSession(id string, ch Channel, store *Store, order uint64) *Session {
	return &Session{
		id:        id,
		order:     order,
		createdAt: time.Now(),
		ch:        ch,
		store:     store,
		done:      make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedOrder returns the position of the session in its store's creation
// sequence. Untracked sessions report 0.
func (s *Session) CreatedOrder() uint64 {
	return s.order
}

// CreatedAt returns when the session was established.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Send encodes msg as JSON and writes it to the session channel.
func (s *Session) Send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return s.SendRaw(ctx, data)
}

// SendRaw writes an already encoded message to the session channel.
func (s *Session) SendRaw(ctx context.Context, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return ErrChannelClosed
	}
	if err := s.ch.Write(ctx, data); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			return ErrChannelClosed
		}
		return fmt.Errorf("writing to session %s: %w", s.id, err)
	}
	return nil
}

// Close tears the session down. The first call removes the session from its
// store before signalling Done and releasing the channel; later calls return
// the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.store != nil {
			s.store.release(s)
		}
		close(s.done)
		s.closeErr = s.ch.Close()
	})
	return s.closeErr
}
