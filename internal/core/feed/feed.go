// Package feed delivers committed bookmark and collection changes to live
// subscribers of the same owner.
//
// Delivery is best effort: a subscriber that stops reading is dropped
// rather than slowing down writers, and nothing is replayed for a new
// subscription. Consumers reload their state whenever they (re)subscribe.
package feed

import (
	"errors"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/logger"
)

// ErrClosed is returned when subscribing to a closed feed.
var ErrClosed = errors.New("feed closed")

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

type (
	BookmarkChange   = Change[db.Bookmark]
	CollectionChange = Change[db.Collection]
)

// Feed multiplexes store changes onto per-owner subscriptions. With a
// Relay it also exchanges changes with other processes.
type Feed struct {
	origin      string
	log         logger.Logger
	bookmarks   *hub[db.Bookmark]
	collections *hub[db.Collection]

	relayMu sync.RWMutex
	outbox  chan Envelope
}

// New creates a feed. buffer <= 0 uses DefaultBuffer.
func New(buffer int, log logger.Logger) *Feed {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	origin, err := gonanoid.New()
	if err != nil {
		origin = "local"
	}
	return &Feed{
		origin:      origin,
		log:         log,
		bookmarks:   newHub[db.Bookmark](Bookmarks, buffer, log),
		collections: newHub[db.Collection](Collections, buffer, log),
	}
}

// Origin identifies this feed on a relay.
func (f *Feed) Origin() string {
	return f.origin
}

func (f *Feed) SubscribeBookmarks(owner string) (*Subscription[db.Bookmark], error) {
	return f.bookmarks.subscribe(owner)
}

func (f *Feed) SubscribeCollections(owner string) (*Subscription[db.Collection], error) {
	return f.collections.subscribe(owner)
}

// Subscribers returns the number of open subscriptions per resource.
func (f *Feed) Subscribers() map[Resource]int {
	return map[Resource]int{
		Bookmarks:   f.bookmarks.count(),
		Collections: f.collections.count(),
	}
}

// PublishBookmark delivers c to owner's local bookmark subscribers and
// forwards it to the relay, if any.
func (f *Feed) PublishBookmark(owner string, c BookmarkChange) {
	f.bookmarks.publish(owner, c)
	f.forward(Envelope{Origin: f.origin, Resource: Bookmarks, Owner: owner, Bookmark: &c})
}

func (f *Feed) PublishCollection(owner string, c CollectionChange) {
	f.collections.publish(owner, c)
	f.forward(Envelope{Origin: f.origin, Resource: Collections, Owner: owner, Collection: &c})
}

// Attach publishes every change committed by store.
func (f *Feed) Attach(store *db.DB) {
	store.RegisterEventListener(db.OnBookmarkCreatedEvent, func(e db.Event) error {
		ev := e.(db.BookmarkCreatedEvent)
		f.PublishBookmark(ev.Owner(), BookmarkChange{Type: Insert, New: &ev.Bookmark})
		return nil
	})
	store.RegisterEventListener(db.OnBookmarkUpdatedEvent, func(e db.Event) error {
		ev := e.(db.BookmarkUpdatedEvent)
		f.PublishBookmark(ev.Owner(), BookmarkChange{Type: Update, New: &ev.Bookmark, Old: &ev.Previous})
		return nil
	})
	store.RegisterEventListener(db.OnBookmarkDeletedEvent, func(e db.Event) error {
		ev := e.(db.BookmarkDeletedEvent)
		f.PublishBookmark(ev.Owner(), BookmarkChange{Type: Delete, Old: &ev.Bookmark})
		return nil
	})
	store.RegisterEventListener(db.OnCollectionCreatedEvent, func(e db.Event) error {
		ev := e.(db.CollectionCreatedEvent)
		f.PublishCollection(ev.Owner(), CollectionChange{Type: Insert, New: &ev.Collection})
		return nil
	})
	store.RegisterEventListener(db.OnCollectionUpdatedEvent, func(e db.Event) error {
		ev := e.(db.CollectionUpdatedEvent)
		f.PublishCollection(ev.Owner(), CollectionChange{Type: Update, New: &ev.Collection, Old: &ev.Previous})
		return nil
	})
	store.RegisterEventListener(db.OnCollectionDeletedEvent, func(e db.Event) error {
		ev := e.(db.CollectionDeletedEvent)
		f.PublishCollection(ev.Owner(), CollectionChange{Type: Delete, Old: &ev.Collection})
		return nil
	})
}

// Close ends every subscription. Subscribing afterwards fails.
func (f *Feed) Close() {
	f.bookmarks.close()
	f.collections.close()
}
