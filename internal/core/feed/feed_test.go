package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, owners ...string) *db.DB {
	t.Helper()
	store, err := db.NewSQLiteDB(":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	report, err := store.Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())

	for _, o := range owners {
		require.NoError(t, store.RegisterIdentity(context.Background(), db.Identity{ID: o, Email: o + "@example.com"}))
	}
	return store
}

func next[T any](t *testing.T, s *Subscription[T]) Change[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, ok := s.Next(ctx)
	require.True(t, ok, "expected a change")
	return c
}

func assertQuiet[T any](t *testing.T, s *Subscription[T]) {
	t.Helper()
	select {
	case c, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFeedDeliversStoreChanges(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "alice", "bob")
	f := New(8, logger.Nop())
	defer f.Close()
	f.Attach(store)

	alice, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)
	bob, err := f.SubscribeBookmarks("bob")
	require.NoError(t, err)

	b, err := store.CreateBookmark(ctx, "alice", db.NewBookmark{URL: "https://github.com/user/repo"})
	require.NoError(t, err)

	c := next(t, alice)
	assert.Equal(t, Insert, c.Type)
	require.NotNil(t, c.New)
	assert.Equal(t, b.ID, c.New.ID)
	assert.Nil(t, c.Old)

	_, err = store.SetStarred(ctx, b.ID, "alice", true)
	require.NoError(t, err)
	c = next(t, alice)
	assert.Equal(t, Update, c.Type)
	assert.True(t, c.New.Starred)
	assert.False(t, c.Old.Starred)

	require.NoError(t, store.DeleteBookmark(ctx, b.ID, "alice"))
	c = next(t, alice)
	assert.Equal(t, Delete, c.Type)
	assert.Nil(t, c.New)
	assert.Equal(t, b.ID, c.Old.ID)

	assertQuiet(t, bob)
}

func TestFeedCollectionCascade(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "alice")
	f := New(16, logger.Nop())
	defer f.Close()
	f.Attach(store)

	col, err := store.CreateCollection(ctx, "alice", db.NewCollection{Name: "Reading"})
	require.NoError(t, err)
	for _, u := range []string{"https://a.example.com", "https://b.example.com"} {
		_, err := store.CreateBookmark(ctx, "alice", db.NewBookmark{URL: u, CollectionID: col.ID})
		require.NoError(t, err)
	}

	bookmarks, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)
	collections, err := f.SubscribeCollections("alice")
	require.NoError(t, err)

	n, err := store.DeleteCollection(ctx, col.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for range 2 {
		c := next(t, bookmarks)
		assert.Equal(t, Update, c.Type)
		assert.Nil(t, c.New.CollectionID)
		assert.True(t, c.Old.InCollection(col.ID))
	}
	c := next(t, collections)
	assert.Equal(t, Delete, c.Type)
	assert.Equal(t, col.ID, c.Old.ID)
}

func TestSubscriptionUnsubscribe(t *testing.T) {
	f := New(4, logger.Nop())
	s, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers()[Bookmarks])

	s.Unsubscribe()
	s.Unsubscribe()
	assert.Equal(t, 0, f.Subscribers()[Bookmarks])
	assert.False(t, s.Dropped())

	f.PublishBookmark("alice", BookmarkChange{Type: Insert, New: &db.Bookmark{ID: "x"}})
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	f := New(2, logger.Nop())
	slow, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)
	fast, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var got []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 3 {
			c, ok := fast.Next(context.Background())
			if !ok {
				return
			}
			got = append(got, c.New.ID)
		}
	}()

	for _, id := range []string{"1", "2", "3"} {
		f.PublishBookmark("alice", BookmarkChange{Type: Insert, New: &db.Bookmark{ID: id}})
		// let the fast reader keep up
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []string{"1", "2", "3"}, got)
	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not dropped")
	}
	assert.True(t, slow.Dropped())
	assert.Equal(t, 1, f.Subscribers()[Bookmarks])
}

func TestCloseEndsSubscriptions(t *testing.T) {
	f := New(4, logger.Nop())
	s, err := f.SubscribeCollections("alice")
	require.NoError(t, err)

	f.Close()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription still open after Close")
	}

	_, err = f.SubscribeCollections("alice")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNextHonoursContext(t *testing.T) {
	f := New(4, logger.Nop())
	defer f.Close()
	s, err := f.SubscribeBookmarks("alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := s.Next(ctx)
	assert.False(t, ok)
}

func TestParseResource(t *testing.T) {
	r, ok := ParseResource("bookmarks")
	assert.True(t, ok)
	assert.Equal(t, Bookmarks, r)

	r, ok = ParseResource("collections")
	assert.True(t, ok)
	assert.Equal(t, Collections, r)

	_, ok = ParseResource("profiles")
	assert.False(t, ok)
}
