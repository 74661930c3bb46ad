// ABOUTME: Buffered FIFO Channel drained by a single stream writer.
// ABOUTME: Blocked writers are released with ErrChannelClosed on Close.

package session

import (
	"context"
	"sync"
)

// DefaultQueueSize is the buffer used when NewQueue is given a non-positive size.
const DefaultQueueSize = 64

// Queue is a Channel backed by a buffered Go channel. The transport binding
// reads Messages and writes them to the wire; Write never touches the wire.
type Queue struct {
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewQueue creates a queue holding up to size undelivered messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		messages: make(chan []byte, size),
		done:     make(chan struct{}),
	}
}

// Write enqueues msg. It blocks while the queue is full and returns
// ErrChannelClosed as soon as the queue is closed.
func (q *Queue) Write(ctx context.Context, msg []byte) error {
	select {
	case <-q.done:
		return ErrChannelClosed
	default:
	}

	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the queue closed. The messages channel itself is never closed,
// so readers must also watch Done.
func (q *Queue) Close() error {
	q.once.Do(func() {
		close(q.done)
	})
	return nil
}

// Messages returns the stream of enqueued messages.
func (q *Queue) Messages() <-chan []byte {
	return q.messages
}

// Done is closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
