package feed

import (
	"context"
	"sync"
	"sync/atomic"
)

// EventType is the kind of row change carried by a Change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Resource names a subscribable row set.
type Resource string

const (
	Bookmarks   Resource = "bookmarks"
	Collections Resource = "collections"
)

// ParseResource maps a path segment to a Resource.
func ParseResource(s string) (Resource, bool) {
	switch r := Resource(s); r {
	case Bookmarks, Collections:
		return r, true
	default:
		return "", false
	}
}

// Change is one committed row change. New is set for inserts and updates,
// Old for updates and deletes.
type Change[T any] struct {
	Type EventType `json:"eventType"`
	New  *T        `json:"new,omitempty"`
	Old  *T        `json:"old,omitempty"`
}

// Subscription is one consumer's live view of an owner's rows of a single
// resource. It ends when Unsubscribe is called, when the feed closes or
// when the consumer falls so far behind that its queue overflows.
type Subscription[T any] struct {
	ID       string
	Owner    string
	Resource Resource

	events  chan Change[T]
	done    chan struct{}
	once    sync.Once
	dropped atomic.Bool
	hub     *hub[T]
}

// Events exposes the raw queue. It is closed when the subscription ends.
// Prefer Next, which never yields an event after Unsubscribe returned.
func (s *Subscription[T]) Events() <-chan Change[T] {
	return s.events
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Dropped reports whether the feed ended the subscription because the
// consumer could not keep up.
func (s *Subscription[T]) Dropped() bool {
	return s.dropped.Load()
}

// Next blocks for the next change. It returns false once the subscription
// has ended or ctx is done.
func (s *Subscription[T]) Next(ctx context.Context) (Change[T], bool) {
	select {
	case <-s.done:
		return Change[T]{}, false
	default:
	}

	select {
	case c, ok := <-s.events:
		if !ok {
			return Change[T]{}, false
		}
		select {
		case <-s.done:
			return Change[T]{}, false
		default:
			return c, true
		}
	case <-s.done:
		return Change[T]{}, false
	case <-ctx.Done():
		return Change[T]{}, false
	}
}

// Unsubscribe ends the subscription and releases it from the feed. It is
// safe to call more than once and from any goroutine.
func (s *Subscription[T]) Unsubscribe() {
	s.end(false)
}

func (s *Subscription[T]) end(dropped bool) {
	s.once.Do(func() {
		if dropped {
			s.dropped.Store(true)
		}
		s.hub.remove(s)
		close(s.done)
	})
}
