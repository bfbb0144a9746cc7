package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func bookmark(id string, age int) db.Bookmark {
	return db.Bookmark{
		ID:        id,
		UserID:    "alice",
		Title:     "Title " + id,
		URL:       "https://example.com/" + id,
		Domain:    "example.com",
		Unread:    true,
		CreatedAt: db.NewTimestamp(epoch.Add(-time.Duration(age) * time.Minute)),
	}
}

func ids(items []db.Bookmark) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = b.ID
	}
	return out
}

func TestBookmarksLoadOrdersNewestFirst(t *testing.T) {
	s := NewBookmarks()
	s.Load([]db.Bookmark{bookmark("old", 10), bookmark("new", 0), bookmark("mid", 5)})
	assert.Equal(t, []string{"new", "mid", "old"}, ids(s.Snapshot()))
}

func TestBookmarksApply(t *testing.T) {
	t.Run("insert dedupes by id", func(t *testing.T) {
		s := NewBookmarks()
		s.Load([]db.Bookmark{bookmark("a", 5)})

		b := bookmark("b", 0)
		assert.True(t, s.Apply(feed.BookmarkChange{Type: feed.Insert, New: &b}))
		assert.False(t, s.Apply(feed.BookmarkChange{Type: feed.Insert, New: &b}))
		assert.Equal(t, []string{"b", "a"}, ids(s.Snapshot()))
	})

	t.Run("insert keeps recency order", func(t *testing.T) {
		s := NewBookmarks()
		s.Load([]db.Bookmark{bookmark("a", 0), bookmark("c", 10)})
		b := bookmark("b", 5)
		s.Apply(feed.BookmarkChange{Type: feed.Insert, New: &b})
		assert.Equal(t, []string{"a", "b", "c"}, ids(s.Snapshot()))
	})

	t.Run("update replaces matching row", func(t *testing.T) {
		s := NewBookmarks()
		s.Load([]db.Bookmark{bookmark("a", 0), bookmark("b", 1)})

		old := bookmark("b", 1)
		updated := old
		updated.Starred = true
		updated.Title = "Renamed"
		s.Apply(feed.BookmarkChange{Type: feed.Update, New: &updated, Old: &old})
		s.Apply(feed.BookmarkChange{Type: feed.Update, New: &updated, Old: &old})

		got, ok := s.Get("b")
		require.True(t, ok)
		assert.True(t, got.Starred)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("update of unknown row is ignored", func(t *testing.T) {
		s := NewBookmarks()
		ghost := bookmark("ghost", 0)
		assert.False(t, s.Apply(feed.BookmarkChange{Type: feed.Update, New: &ghost}))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("delete twice equals delete once", func(t *testing.T) {
		s := NewBookmarks()
		s.Load([]db.Bookmark{bookmark("a", 0), bookmark("b", 1)})

		c := feed.BookmarkChange{Type: feed.Delete, Old: &db.Bookmark{ID: "a"}}
		assert.True(t, s.Apply(c))
		once := s.Snapshot()
		assert.False(t, s.Apply(c))
		assert.Equal(t, once, s.Snapshot())
		assert.Equal(t, []string{"b"}, ids(once))
	})

	t.Run("insert after delete does not revive the row", func(t *testing.T) {
		s := NewBookmarks()
		b := bookmark("a", 0)
		s.Load([]db.Bookmark{b})

		assert.True(t, s.Apply(feed.BookmarkChange{Type: feed.Delete, Old: &b}))
		assert.False(t, s.Apply(feed.BookmarkChange{Type: feed.Insert, New: &b}))
		assert.Zero(t, s.Len())
	})

	t.Run("deleted ids are remembered up to a bound", func(t *testing.T) {
		s := NewBookmarks()
		first := bookmark("first", 0)
		s.Apply(feed.BookmarkChange{Type: feed.Delete, Old: &first})
		for i := range deletedMemory {
			gone := bookmark(fmt.Sprintf("gone-%d", i), 0)
			s.Apply(feed.BookmarkChange{Type: feed.Delete, Old: &gone})
		}
		assert.Len(t, s.deleted, deletedMemory)
		assert.True(t, s.Apply(feed.BookmarkChange{Type: feed.Insert, New: &first}))
	})

	t.Run("malformed changes are ignored", func(t *testing.T) {
		s := NewBookmarks()
		s.Load([]db.Bookmark{bookmark("a", 0)})
		assert.False(t, s.Apply(feed.BookmarkChange{Type: feed.Insert}))
		assert.False(t, s.Apply(feed.BookmarkChange{Type: feed.Delete}))
		assert.False(t, s.Apply(feed.BookmarkChange{Type: "TRUNCATE"}))
		assert.Equal(t, 1, s.Len())
	})
}

func TestBookmarksProject(t *testing.T) {
	col := "reading"
	var items []db.Bookmark
	for i := range 8 {
		b := bookmark(fmt.Sprintf("b%d", i), i)
		b.Starred = i%2 == 0
		b.Unread = i < 3
		if i >= 6 {
			b.CollectionID = &col
		}
		items = append(items, b)
	}
	items[7].Title = "Go Memory Model"
	items[4].Description = "notes on the GO scheduler"
	items[1].Domain = "golang.org"

	s := NewBookmarks()
	s.Load(items)

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all", Query{}, []string{"b0", "b1", "b2", "b3", "b4", "b5", "b6", "b7"}},
		{"starred", Query{Filter: db.FilterStarred}, []string{"b0", "b2", "b4", "b6"}},
		{"unread", Query{Filter: db.FilterUnread}, []string{"b0", "b1", "b2"}},
		{"recent is first five", Query{Filter: db.FilterRecent}, []string{"b0", "b1", "b2", "b3", "b4"}},
		{"collection", Query{CollectionID: col}, []string{"b6", "b7"}},
		{"collection wins over quick filter", Query{CollectionID: col, Filter: db.FilterUnread}, []string{"b6", "b7"}},
		{"search is case insensitive", Query{Search: "  go "}, []string{"b1", "b4", "b7"}},
		{"search wins over collection", Query{Search: "go", CollectionID: col, Filter: db.FilterStarred}, []string{"b1", "b4", "b7"}},
		{"search matches url", Query{Search: "example.com/b3"}, []string{"b3"}},
		{"no match", Query{Search: "nothing here"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(s.Project(tt.query)))
		})
	}
}

func TestCollections(t *testing.T) {
	c1 := db.Collection{ID: "c1", Name: "One", CreatedAt: db.NewTimestamp(epoch)}
	c2 := db.Collection{ID: "c2", Name: "Two", CreatedAt: db.NewTimestamp(epoch.Add(time.Minute))}
	c3 := db.Collection{ID: "c3", Name: "Three", CreatedAt: db.NewTimestamp(epoch.Add(2 * time.Minute))}

	s := NewCollections()
	s.Load([]db.Collection{c3, c1})
	assert.True(t, s.Apply(feed.CollectionChange{Type: feed.Insert, New: &c2}))
	assert.False(t, s.Apply(feed.CollectionChange{Type: feed.Insert, New: &c2}))

	var names []string
	for _, c := range s.Snapshot() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"One", "Two", "Three"}, names)

	renamed := c2
	renamed.Name = "Deux"
	s.Apply(feed.CollectionChange{Type: feed.Update, New: &renamed, Old: &c2})
	got, ok := s.Get("c2")
	require.True(t, ok)
	assert.Equal(t, "Deux", got.Name)

	b1, b2, b3 := bookmark("a", 0), bookmark("b", 1), bookmark("c", 2)
	b1.CollectionID, b2.CollectionID = &c1.ID, &c1.ID
	b3.CollectionID = &c3.ID
	counts := map[string]int{}
	for _, c := range s.WithCounts([]db.Bookmark{b1, b2, b3, bookmark("d", 3)}) {
		counts[c.ID] = c.Count
	}
	assert.Equal(t, map[string]int{"c1": 2, "c2": 0, "c3": 1}, counts)

	del := feed.CollectionChange{Type: feed.Delete, Old: &c1}
	assert.True(t, s.Apply(del))
	assert.False(t, s.Apply(del))
	assert.Len(t, s.Snapshot(), 2)
}
