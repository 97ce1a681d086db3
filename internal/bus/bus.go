package bus

import (
	"sync"

	"github.com/google/uuid"
)

// Event is a state-change notification fanned out to subscribed surfaces.
// ContextID is empty for process-wide events (auth state changes), which
// are delivered to every subscriber regardless of scope.
type Event struct {
	ContextID string      `json:"contextId,omitempty"`
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
}

type subscriber struct {
	scope map[string]struct{} // empty scope = all contexts
	ch    chan Event
}

// Bus fans out events to subscribers. Delivery is best effort and
// at-most-once: a full subscriber buffer drops the event rather than
// blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

const subscriberBuffer = 16

// New creates an empty bus
func New() *Bus {
	return &Bus{
		subs: make(map[string]*subscriber),
	}
}

// Subscribe registers a subscriber scoped to the given contextIDs.
// An empty contextIDs list subscribes to every event. The returned
// handle is passed to Unsubscribe when the surface disconnects.
func (b *Bus) Subscribe(contextIDs []string) (string, <-chan Event) {
	sub := &subscriber{
		scope: make(map[string]struct{}, len(contextIDs)),
		ch:    make(chan Event, subscriberBuffer),
	}
	for _, id := range contextIDs {
		sub.scope[id] = struct{}{}
	}

	handle := uuid.New().String()

	b.mu.Lock()
	b.subs[handle] = sub
	b.mu.Unlock()

	return handle, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown
// handles are ignored so disconnect paths can call it unconditionally.
func (b *Bus) Unsubscribe(handle string) {
	b.mu.Lock()
	sub, ok := b.subs[handle]
	if ok {
		delete(b.subs, handle)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber whose scope matches.
// It never blocks: slow consumers lose events and must re-query to
// catch up. Sends happen under the read lock so Unsubscribe, which
// needs the write lock to close a channel, cannot race a send.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of registered subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *subscriber) wants(event Event) bool {
	// process-wide events and unscoped subscribers see everything
	if event.ContextID == "" || len(s.scope) == 0 {
		return true
	}
	_, ok := s.scope[event.ContextID]
	return ok
}
