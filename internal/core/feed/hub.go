package feed

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/seckatie/arkive/internal/logger"
)

// hub fans changes for one resource out to subscribers, keyed by owner.
type hub[T any] struct {
	resource Resource
	buffer   int
	log      logger.Logger

	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription[T]
	closed bool
}

func newHub[T any](resource Resource, buffer int, log logger.Logger) *hub[T] {
	return &hub[T]{
		resource: resource,
		buffer:   buffer,
		log:      log,
		subs:     make(map[string]map[string]*Subscription[T]),
	}
}

func (h *hub[T]) subscribe(owner string) (*Subscription[T], error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	s := &Subscription[T]{
		ID:       id,
		Owner:    owner,
		Resource: h.resource,
		events:   make(chan Change[T], h.buffer),
		done:     make(chan struct{}),
		hub:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[string]*Subscription[T])
	}
	h.subs[owner][id] = s

	h.log.Debug("subscription opened",
		logger.String("id", id),
		logger.String("owner", owner),
		logger.String("resource", string(h.resource)))
	return s, nil
}

// remove detaches s and closes its queue. Publishers hold the read lock
// while sending, so nothing can be sent on the queue after it is closed.
func (h *hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	owned := h.subs[s.Owner]
	if _, ok := owned[s.ID]; !ok {
		return
	}
	delete(owned, s.ID)
	if len(owned) == 0 {
		delete(h.subs, s.Owner)
	}
	close(s.events)
}

// publish delivers c to every subscriber of owner without blocking.
// Subscribers whose queue is full are ended.
func (h *hub[T]) publish(owner string, c Change[T]) int {
	var delivered int
	var slow []*Subscription[T]

	h.mu.RLock()
	for _, s := range h.subs[owner] {
		select {
		case s.events <- c:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("dropping slow subscriber",
			logger.String("id", s.ID),
			logger.String("owner", owner),
			logger.String("resource", string(h.resource)))
		s.end(true)
	}
	return delivered
}

func (h *hub[T]) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, owned := range h.subs {
		n += len(owned)
	}
	return n
}

// close ends every subscription and refuses new ones.
func (h *hub[T]) close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription[T]
	for _, owned := range h.subs {
		for _, s := range owned {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
}
