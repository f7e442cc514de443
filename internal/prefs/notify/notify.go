// Package notify provides the publish/subscribe channel the preference store
// announces its occurrences on.
//
// Subscribers register for one event kind and receive a typed payload. The
// returned Subscription is the unsubscribe token. Delivery is synchronous:
// Publish returns after every matching handler has run, on the publishing
// goroutine, in subscription order.
package notify

import (
	"sort"
	"sync"
)

// Kind identifies the class of event.
type Kind int

const (
	// KindChange is published after a document commit.
	KindChange Kind = iota

	// KindInvalid is published when an update is rejected by validation.
	KindInvalid

	// KindSaved is published after the document reached storage.
	KindSaved

	// KindError is published when storage fails outside validation.
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindChange:
		return "change"
	case KindInvalid:
		return "invalid"
	case KindSaved:
		return "saved"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Kinds returns every event kind.
func Kinds() []Kind {
	return []Kind{KindChange, KindInvalid, KindSaved, KindError}
}

// Handler receives an event payload.
type Handler[T any] func(event T)

type unsubscriber interface {
	unsubscribe(id uint64)
}

// Subscription represents an active handler registration.
type Subscription struct {
	id    uint64
	kind  Kind
	owner unsubscriber
	once  sync.Once
}

// Kind returns the event kind the subscription listens to.
func (s *Subscription) Kind() Kind {
	return s.kind
}

// Unsubscribe removes this subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.owner == nil {
		return
	}
	s.once.Do(func() {
		s.owner.unsubscribe(s.id)
	})
}

// Notifier manages subscriptions for payload type T.
type Notifier[T any] struct {
	mu sync.RWMutex

	handlers map[Kind]map[uint64]Handler[T]
	nextID   uint64
	closed   bool
}

// New creates a new Notifier.
func New[T any]() *Notifier[T] {
	return &Notifier[T]{
		handlers: make(map[Kind]map[uint64]Handler[T]),
	}
}

// Subscribe registers a handler for one event kind.
func (n *Notifier[T]) Subscribe(kind Kind, handler Handler[T]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++

	if n.handlers[kind] == nil {
		n.handlers[kind] = make(map[uint64]Handler[T])
	}
	n.handlers[kind][id] = handler

	return &Subscription{id: id, kind: kind, owner: n}
}

// Publish delivers an event to every handler of the given kind.
// Handlers run outside the notifier lock, so they may subscribe, unsubscribe
// or publish themselves.
func (n *Notifier[T]) Publish(kind Kind, event T) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	byID := n.handlers[kind]
	ids := make([]uint64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler[T], len(ids))
	for i, id := range ids {
		handlers[i] = byID[id]
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Close drops every subscription; later publishes are ignored.
// It is safe to call Close multiple times.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.handlers = make(map[Kind]map[uint64]Handler[T])
}

func (n *Notifier[T]) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for kind, byID := range n.handlers {
		delete(byID, id)
		if len(byID) == 0 {
			delete(n.handlers, kind)
		}
	}
}
