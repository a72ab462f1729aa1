package realtime

import (
	"context"
	"strings"
	"sync"
)

// MemoryBroker is an in-process Broker used in tests and single-node setups.
type MemoryBroker struct {
	mu         sync.Mutex
	subs       map[string]map[int]chan InvitationEvent
	nextID     int
	bufferSize int
}

// NewMemoryBroker constructs a MemoryBroker.
func NewMemoryBroker(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &MemoryBroker{subs: make(map[string]map[int]chan InvitationEvent), bufferSize: bufferSize}
}

// Publish delivers the event to every live subscriber for the email.
func (b *MemoryBroker) Publish(ctx context.Context, event InvitationEvent) error {
	key := strings.ToLower(event.StudentEmail)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[key] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for the email until cancel is called.
func (b *MemoryBroker) Subscribe(ctx context.Context, studentEmail string) (<-chan InvitationEvent, func(), error) {
	key := strings.ToLower(studentEmail)
	ch := make(chan InvitationEvent, b.bufferSize)

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan InvitationEvent)
	}
	id := b.nextID
	b.nextID++
	b.subs[key][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
