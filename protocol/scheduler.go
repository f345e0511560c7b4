package protocol

import (
	"context"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const schedulerBufferSize = 256

// Dispatcher is the interface to queue received messages.
type Dispatcher interface {
	Dispatch(context.Context, Msg) error
}

// Consumer is the interface to read queued messages.
type Consumer interface {
	Messages() <-chan Msg
}

// Scheduler queues the messages received on a connection so they are
// handled one at a time by a single goroutine.
type Scheduler struct {
	msgs      chan Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		msgs: make(chan Msg, schedulerBufferSize),
		done: make(chan struct{}),
	}
}

// Dispatch queues a message. It blocks while the queue is full.
func (s *Scheduler) Dispatch(ctx context.Context, msg Msg) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-s.done:
		return errors.New("scheduler is closed")

	case s.msgs <- msg:
		return nil
	}
}

// Messages returns the channel where queued messages are read.
func (s *Scheduler) Messages() <-chan Msg {
	return s.msgs
}

// Close stops accepting messages.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
