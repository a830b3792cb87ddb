// Package event is the synchronous publish/subscribe surface used to deliver
// decoded tables, media fragments and diagnostics to callers.
//
// A Topic carries one payload type. Producers query Count before doing decode
// work so that nothing is parsed for a topic nobody listens to. Topics are not
// safe for concurrent use; they belong to a single reader session and are
// driven from the goroutine that calls Push.
package event

// Subscription identifies a handler registered on a Topic. The zero value is
// never issued.
type Subscription uint64

type subscriber[T any] struct {
	id Subscription
	fn func(T)
}

// Topic is a typed list of handlers.
type Topic[T any] struct {
	subs   []subscriber[T]
	next   Subscription
	closed bool
}

// Subscribe registers fn and returns a handle for Unsubscribe. Subscribing to
// a closed topic, or with a nil handler, is a no-op that returns 0.
func (t *Topic[T]) Subscribe(fn func(T)) Subscription {
	if t.closed || fn == nil {
		return 0
	}
	t.next++
	// Copy on write so a Publish in progress keeps iterating its snapshot.
	subs := make([]subscriber[T], len(t.subs), len(t.subs)+1)
	copy(subs, t.subs)
	t.subs = append(subs, subscriber[T]{id: t.next, fn: fn})
	return t.next
}

// Unsubscribe removes the handler registered under id and reports whether it
// was present.
func (t *Topic[T]) Unsubscribe(id Subscription) bool {
	for i, s := range t.subs {
		if s.id != id {
			continue
		}
		subs := make([]subscriber[T], 0, len(t.subs)-1)
		subs = append(subs, t.subs[:i]...)
		t.subs = append(subs, t.subs[i+1:]...)
		return true
	}
	return false
}

// Publish calls every handler in subscription order.
func (t *Topic[T]) Publish(v T) {
	for _, s := range t.subs {
		s.fn(v)
	}
}

// Count returns the number of registered handlers.
func (t *Topic[T]) Count() int {
	return len(t.subs)
}

// Close detaches every handler. Later Subscribe calls are ignored.
func (t *Topic[T]) Close() {
	t.subs = nil
	t.closed = true
}

// Counter is the read side of a Topic used for listener gating.
type Counter interface {
	Count() int
}

// Any reports whether at least one of the counters has a listener.
func Any(cs ...Counter) bool {
	for _, c := range cs {
		if c.Count() > 0 {
			return true
		}
	}
	return false
}
