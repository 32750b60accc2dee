package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/idgen"
)

// DefaultCapacity is the number of messages replayed to joining participants.
const DefaultCapacity = 100

// Buffer is a bounded, insertion-ordered log of recent chat messages. It is
// the ordering authority: ids and timestamps are assigned inside Append
// under the buffer lock, so id order equals append order.
type Buffer struct {
	mu   sync.RWMutex
	ring []domain.ChatMessage
	head int // index of the oldest entry
	size int
	ids  idgen.Generator
	now  func() time.Time
}

// NewBuffer creates a buffer holding at most capacity messages. A
// non-positive capacity selects DefaultCapacity.
func NewBuffer(capacity int, ids idgen.Generator) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		ring: make([]domain.ChatMessage, capacity),
		ids:  ids,
		now:  time.Now,
	}
}

// Append assigns msg an id and timestamp, stores it and returns the stored
// copy. When full, the oldest message is overwritten.
func (b *Buffer) Append(msg domain.ChatMessage) (domain.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, err := b.ids.Generate()
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("failed to assign message id: %w", err)
	}
	msg.ID = id
	msg.Timestamp = b.now().UTC()

	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.head+b.size)%capacity] = msg
		b.size++
	} else {
		b.ring[b.head] = msg
		b.head = (b.head + 1) % capacity
	}

	return msg, nil
}

// Snapshot returns the buffered messages oldest first. The slice is a copy
// and never nil.
func (b *Buffer) Snapshot() []domain.ChatMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.ChatMessage, b.size)
	capacity := len(b.ring)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%capacity]
	}
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer bound.
func (b *Buffer) Cap() int {
	return len(b.ring)
}
