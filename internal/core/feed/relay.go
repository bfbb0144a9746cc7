package feed

import (
	"context"
	"time"

	"github.com/seckatie/arkive/internal/logger"
)

// Envelope carries one change between processes.
type Envelope struct {
	Origin     string            `json:"origin"`
	Resource   Resource          `json:"resource"`
	Owner      string            `json:"owner"`
	Bookmark   *BookmarkChange   `json:"bookmark,omitempty"`
	Collection *CollectionChange `json:"collection,omitempty"`
}

// Relay moves envelopes between feeds in different processes.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Listen blocks, passing every received envelope to deliver, until
	// ctx is done or the connection fails.
	Listen(ctx context.Context, deliver func(Envelope)) error
}

const (
	outboxSize     = 1024
	publishTimeout = 3 * time.Second
)

// RunRelay connects the feed to r until ctx is done: local changes are
// published in order and changes from other origins are delivered to the
// local subscribers.
func (f *Feed) RunRelay(ctx context.Context, r Relay) error {
	outbox := make(chan Envelope, outboxSize)
	f.relayMu.Lock()
	f.outbox = outbox
	f.relayMu.Unlock()

	defer func() {
		f.relayMu.Lock()
		f.outbox = nil
		f.relayMu.Unlock()
	}()

	go f.drain(ctx, r, outbox)
	return r.Listen(ctx, f.receive)
}

func (f *Feed) drain(ctx context.Context, r Relay, outbox <-chan Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.Publish(pubCtx, env); err != nil {
				f.log.Warn("relay publish failed",
					logger.String("resource", string(env.Resource)),
					logger.String("owner", env.Owner),
					logger.Error(err))
			}
			cancel()
		}
	}
}

// forward queues a locally published change for the relay.
func (f *Feed) forward(env Envelope) {
	f.relayMu.RLock()
	defer f.relayMu.RUnlock()
	if f.outbox == nil {
		return
	}
	select {
	case f.outbox <- env:
	default:
		f.log.Warn("relay outbox full, change not forwarded",
			logger.String("resource", string(env.Resource)),
			logger.String("owner", env.Owner))
	}
}

// receive delivers an envelope from another process to local subscribers.
func (f *Feed) receive(env Envelope) {
	if env.Origin == f.origin {
		return
	}
	switch {
	case env.Resource == Bookmarks && env.Bookmark != nil:
		f.bookmarks.publish(env.Owner, *env.Bookmark)
	case env.Resource == Collections && env.Collection != nil:
		f.collections.publish(env.Owner, *env.Collection)
	default:
		f.log.Warn("ignoring malformed relay envelope",
			logger.String("origin", env.Origin),
			logger.String("resource", string(env.Resource)))
	}
}
