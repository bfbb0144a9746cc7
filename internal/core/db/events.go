package db

import "github.com/seckatie/arkive/internal/logger"

// ------------------------------
// Event System
// ------------------------------
//
// The DB emits typed events after a write transaction commits. Events from
// one DB leave in commit order. Register listeners to react to changes:
//
//	db.RegisterEventListener(db.OnBookmarkCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.BookmarkCreatedEvent)
//	    log.Printf("New bookmark for %s: %s", ev.Bookmark.UserID, ev.Bookmark.URL)
//	    return nil
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
	// Owner is the user whose data changed.
	Owner() string
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	OnBookmarkCreatedEvent EventKind = iota
	OnBookmarkDeletedEvent
	OnBookmarkUpdatedEvent
	OnCollectionCreatedEvent
	OnCollectionDeletedEvent
	OnCollectionUpdatedEvent
)

// EventKinds lists every kind, for listeners that want all of them.
var EventKinds = []EventKind{
	OnBookmarkCreatedEvent,
	OnBookmarkDeletedEvent,
	OnBookmarkUpdatedEvent,
	OnCollectionCreatedEvent,
	OnCollectionDeletedEvent,
	OnCollectionUpdatedEvent,
}

func (k EventKind) String() string {
	switch k {
	case OnBookmarkCreatedEvent:
		return "bookmark_created"
	case OnBookmarkDeletedEvent:
		return "bookmark_deleted"
	case OnBookmarkUpdatedEvent:
		return "bookmark_updated"
	case OnCollectionCreatedEvent:
		return "collection_created"
	case OnCollectionDeletedEvent:
		return "collection_deleted"
	case OnCollectionUpdatedEvent:
		return "collection_updated"
	default:
		return "unknown"
	}
}

// BookmarkCreatedEvent is emitted after a new bookmark is inserted.
type BookmarkCreatedEvent struct {
	Bookmark Bookmark
}

func (e BookmarkCreatedEvent) Kind() EventKind { return OnBookmarkCreatedEvent }
func (e BookmarkCreatedEvent) Owner() string   { return e.Bookmark.UserID }

// BookmarkUpdatedEvent is emitted after any bookmark field changes,
// including a collection cascade that clears collection_id.
type BookmarkUpdatedEvent struct {
	Bookmark Bookmark
	Previous Bookmark
}

func (e BookmarkUpdatedEvent) Kind() EventKind { return OnBookmarkUpdatedEvent }
func (e BookmarkUpdatedEvent) Owner() string   { return e.Bookmark.UserID }

// BookmarkDeletedEvent is emitted after a bookmark is deleted.
// The Bookmark field contains the state before deletion.
type BookmarkDeletedEvent struct {
	Bookmark Bookmark
}

func (e BookmarkDeletedEvent) Kind() EventKind { return OnBookmarkDeletedEvent }
func (e BookmarkDeletedEvent) Owner() string   { return e.Bookmark.UserID }

type CollectionCreatedEvent struct {
	Collection Collection
}

func (e CollectionCreatedEvent) Kind() EventKind { return OnCollectionCreatedEvent }
func (e CollectionCreatedEvent) Owner() string   { return e.Collection.UserID }

type CollectionUpdatedEvent struct {
	Collection Collection
	Previous   Collection
}

func (e CollectionUpdatedEvent) Kind() EventKind { return OnCollectionUpdatedEvent }
func (e CollectionUpdatedEvent) Owner() string   { return e.Collection.UserID }

// CollectionDeletedEvent follows the events for every bookmark the
// deletion cascaded to.
type CollectionDeletedEvent struct {
	Collection Collection
}

func (e CollectionDeletedEvent) Kind() EventKind { return OnCollectionDeletedEvent }
func (e CollectionDeletedEvent) Owner() string   { return e.Collection.UserID }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the
// transaction commits; they must not write to the DB.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	db.listenersMu.Lock()
	defer db.listenersMu.Unlock()
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	db.listenersMu.RLock()
	listeners := db.eventListeners[event.Kind()]
	db.listenersMu.RUnlock()

	for _, listener := range listeners {
		if err := listener(event); err != nil {
			db.log.Warn("event listener failed",
				logger.String("kind", event.Kind().String()),
				logger.String("owner", event.Owner()),
				logger.Error(err))
		}
	}
}
