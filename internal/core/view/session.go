package view

import (
	"context"
	"sync"

	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/errors"
	"github.com/seckatie/arkive/internal/logger"
)

// Backend is the repository surface a session reads and writes through.
// *db.DB implements it.
type Backend interface {
	ListBookmarks(ctx context.Context, owner string, filter db.Filter, collectionID string) ([]db.Bookmark, error)
	ListCollectionsWithCounts(ctx context.Context, owner string) ([]db.Collection, error)
	CreateBookmark(ctx context.Context, owner string, in db.NewBookmark) (db.Bookmark, error)
	SetStarred(ctx context.Context, id, owner string, starred bool) (db.Bookmark, error)
	SetUnread(ctx context.Context, id, owner string, unread bool) (db.Bookmark, error)
	DeleteBookmark(ctx context.Context, id, owner string) error
}

// Source opens live subscriptions. *feed.Feed implements it.
type Source interface {
	SubscribeBookmarks(owner string) (*feed.Subscription[db.Bookmark], error)
	SubscribeCollections(owner string) (*feed.Subscription[db.Collection], error)
}

// Notice is a user-visible report of a failed action.
type Notice struct {
	Action     string
	BookmarkID string
	Message    string
	// Retry is set when the failure was a connectivity problem.
	Retry bool
	Err   error
}

const noticeBuffer = 16

// Session keeps one owner's view state current.
type Session struct {
	owner   string
	backend Backend
	source  Source
	deriver core.Deriver
	log     logger.Logger

	Bookmarks   *Bookmarks
	Collections *Collections

	notices chan Notice
	changed chan struct{}

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

type Option func(*Session)

// WithDeriver sets the deriver used for optimistic placeholders.
func WithDeriver(d core.Deriver) Option {
	return func(s *Session) { s.deriver = d }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

func NewSession(owner string, backend Backend, source Source, opts ...Option) *Session {
	s := &Session{
		owner:       owner,
		backend:     backend,
		source:      source,
		deriver:     core.Deriver{FaviconURL: core.DefaultFaviconURL},
		log:         logger.Nop(),
		Bookmarks:   NewBookmarks(),
		Collections: NewCollections(),
		notices:     make(chan Notice, noticeBuffer),
		changed:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("owner", owner))
	return s
}

// Notices delivers failure notices. Notices are dropped when nobody reads.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// Changed receives a signal whenever the state may have changed.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

// Reload replaces both lists with a fresh read from the backend.
func (s *Session) Reload(ctx context.Context) error {
	bookmarks, err := s.backend.ListBookmarks(ctx, s.owner, db.FilterAll, "")
	if err != nil {
		return err
	}
	collections, err := s.backend.ListCollectionsWithCounts(ctx, s.owner)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.Bookmarks.Load(bookmarks)
	s.Collections.Load(collections)
	s.notify()
	return nil
}

// Run subscribes, loads and then applies live changes until ctx is done or
// Close is called. When the feed drops the subscriptions it subscribes
// again and reloads, since changes may have been missed.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	for {
		bsub, err := s.source.SubscribeBookmarks(s.owner)
		if err != nil {
			return err
		}
		csub, err := s.source.SubscribeCollections(s.owner)
		if err != nil {
			bsub.Unsubscribe()
			return err
		}

		// Subscribing first means nothing committed after the read is lost.
		if err := s.Reload(ctx); err != nil {
			bsub.Unsubscribe()
			csub.Unsubscribe()
			return err
		}

		resync := s.pump(ctx, bsub, csub)
		bsub.Unsubscribe()
		csub.Unsubscribe()
		if !resync || ctx.Err() != nil || s.isClosed() {
			return nil
		}
		s.log.Warn("live updates interrupted, reloading")
	}
}

// pump applies changes until a subscription ends. It reports whether the
// end was the feed dropping a subscription.
func (s *Session) pump(ctx context.Context, bsub *feed.Subscription[db.Bookmark], csub *feed.Subscription[db.Collection]) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case c, ok := <-bsub.Events():
			if !ok {
				return bsub.Dropped()
			}
			s.apply(func() bool { return s.Bookmarks.Apply(c) })
		case c, ok := <-csub.Events():
			if !ok {
				return csub.Dropped()
			}
			s.apply(func() bool { return s.Collections.Apply(c) })
		}
	}
}

// apply runs fn unless the session is closed. Close takes the same lock,
// so nothing is applied once Close has returned.
func (s *Session) apply(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if fn() {
		s.notify()
	}
}

// Close stops Run. It is safe to call at any time and more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Session) report(action, id string, err error) {
	n := Notice{
		Action:     action,
		BookmarkID: id,
		Message:    errors.UserMessage(err),
		Retry:      errors.Is(err, errors.ErrTransient),
		Err:        err,
	}
	s.log.Warn("action failed",
		logger.String("action", action),
		logger.String("bookmark_id", id),
		logger.Error(err))
	select {
	case s.notices <- n:
	default:
	}
}
