package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var (
	// ErrQueueFull is returned when the async queue cannot take another event.
	ErrQueueFull = errors.New("notify queue full")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("notifier closed")
)

const publishTimeout = 5 * time.Second

// Async decouples callers from a slow Publisher with a bounded queue drained
// by a single worker. Publish never blocks.
type Async struct {
	inner Publisher
	queue chan *Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(inner Publisher, size int) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{
		inner: inner,
		queue: make(chan *Event, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	l := log.L()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.inner.Publish(ctx, event); err != nil {
			l.Warn().Err(err).Str("event_type", event.Type).Msg("notify publish failed")
		}
		cancel()
	}
}

// Publish enqueues event, dropping it when the queue is full.
func (a *Async) Publish(ctx context.Context, event *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- event:
		return nil
	default:
		l := log.Ctx(ctx)
		l.Warn().Str("event_type", event.Type).Msg("notify queue full, event dropped")
		return ErrQueueFull
	}
}

// Close drains queued events and closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.inner.Close()
}
