package eventgraph

import (
	"context"
	"sync"
)

// Bus wraps an EventStore and pushes every appended event to in-process
// subscribers, such as open SSE streams.
type Bus struct {
	EventStore
	mu sync.RWMutex
	// subs maps each channel to the task it follows; "" follows every task.
	subs map[chan *Event]string
}

// NewBus creates a Bus wrapping the given store.
func NewBus(store EventStore) *Bus {
	return &Bus{
		EventStore: store,
		subs:       make(map[chan *Event]string),
	}
}

// Append stores the event, then delivers it to matching subscribers.
// A subscriber whose buffer is full misses the event.
func (b *Bus) Append(ctx context.Context, eventType, source, taskID string, content map[string]any) (*Event, error) {
	e, err := b.EventStore.Append(ctx, eventType, source, taskID, content)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, follow := range b.subs {
		if follow != "" && follow != e.TaskID {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
	return e, nil
}

// Subscribe returns a buffered channel of new events. An empty taskID
// receives events for every task.
func (b *Bus) Subscribe(taskID string) chan *Event {
	ch := make(chan *Event, 64)
	b.mu.Lock()
	b.subs[ch] = taskID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
