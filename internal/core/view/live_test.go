package view

import (
	"context"
	"testing"
	"time"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewSQLiteDB(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	report, err := store.Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.NoError(t, store.RegisterIdentity(context.Background(), db.Identity{ID: "alice", Email: "alice@example.com"}))
	return store
}

func startSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	t.Cleanup(s.Close)
	return done
}

func TestSessionFollowsStore(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	f := feed.New(16, logger.Nop())
	defer f.Close()
	f.Attach(store)

	existing, err := store.CreateBookmark(ctx, "alice", db.NewBookmark{URL: "https://example.com/existing"})
	require.NoError(t, err)

	s := NewSession("alice", store, f)
	startSession(t, s)
	require.Eventually(t, func() bool { return s.Bookmarks.Len() == 1 }, time.Second, 5*time.Millisecond)

	// another device adds and stars
	other, err := store.CreateBookmark(ctx, "alice", db.NewBookmark{URL: "https://github.com/user/repo"})
	require.NoError(t, err)
	_, err = store.SetStarred(ctx, existing.ID, "alice", true)
	require.NoError(t, err)
	col, err := store.CreateCollection(ctx, "alice", db.NewCollection{Name: "Later"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		b, _ := s.Bookmarks.Get(existing.ID)
		_, hasOther := s.Bookmarks.Get(other.ID)
		_, hasCol := s.Collections.Get(col.ID)
		return b.Starred && hasOther && hasCol
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Delete(ctx, other.ID))
	_, err = store.GetBookmark(ctx, other.ID, "alice")
	assert.Error(t, err)
	require.Eventually(t, func() bool { return s.Bookmarks.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionReloadsAfterDrop(t *testing.T) {
	backend := &fakeBackend{bookmarks: []db.Bookmark{bookmark("a", 0)}}
	f := feed.New(1, logger.Nop())
	defer f.Close()

	s := NewSession("alice", backend, f)
	startSession(t, s)
	require.Eventually(t, func() bool { return f.Subscribers()[feed.Bookmarks] == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return backend.listCount() == 1 }, time.Second, 5*time.Millisecond)

	// hold the session's lock so it cannot drain, then overflow its queue
	s.mu.Lock()
	for _, id := range []string{"x", "y", "z"} {
		b := bookmark(id, 0)
		f.PublishBookmark("alice", feed.BookmarkChange{Type: feed.Insert, New: &b})
	}
	backend.mu.Lock()
	backend.bookmarks = append(backend.bookmarks, bookmark("b", 1))
	backend.mu.Unlock()
	s.mu.Unlock()

	require.Eventually(t, func() bool { return backend.listCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := s.Bookmarks.Get("b")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCloseStopsUpdates(t *testing.T) {
	backend := &fakeBackend{}
	f := feed.New(16, logger.Nop())
	defer f.Close()

	s := NewSession("alice", backend, f)
	done := startSession(t, s)
	require.Eventually(t, func() bool { return f.Subscribers()[feed.Bookmarks] == 1 }, time.Second, 5*time.Millisecond)

	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	b := bookmark("late", 0)
	f.PublishBookmark("alice", feed.BookmarkChange{Type: feed.Insert, New: &b})
	s.apply(func() bool { return s.Bookmarks.Apply(feed.BookmarkChange{Type: feed.Insert, New: &b}) })
	assert.Equal(t, 0, s.Bookmarks.Len())
	assert.Equal(t, 0, f.Subscribers()[feed.Bookmarks])
}
