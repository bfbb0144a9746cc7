// Package view keeps the bookmark and collection lists a client renders
// in step with the store: an initial load, live feed changes and local
// optimistic edits all flow through the same reducer.
package view

import (
	"slices"
	"strings"
	"sync"

	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
)

// Query selects what part of the canonical list is shown.
type Query struct {
	Search       string
	CollectionID string
	Filter       db.Filter
}

// deletedMemory bounds how many deleted ids a list remembers.
const deletedMemory = 256

// Bookmarks is the canonical bookmark list of one owner, newest first.
type Bookmarks struct {
	mu    sync.RWMutex
	items []db.Bookmark

	// Ids the feed reported deleted, oldest first. An insert for one of
	// them is stale and never brings the row back.
	deleted  map[string]struct{}
	deletedQ []string
}

func NewBookmarks() *Bookmarks {
	return &Bookmarks{}
}

// Load replaces the whole list.
func (s *Bookmarks) Load(items []db.Bookmark) {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, newestFirst)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = sorted
}

// Apply folds one feed change into the list and reports whether anything
// changed. Applying the same change twice is a no-op the second time.
func (s *Bookmarks) Apply(c feed.BookmarkChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Type {
	case feed.Insert:
		if c.New == nil {
			return false
		}
		return s.insertLocked(*c.New)
	case feed.Update:
		if c.New == nil {
			return false
		}
		i := s.indexLocked(c.New.ID)
		if i < 0 || s.items[i] == *c.New {
			return false
		}
		s.items[i] = *c.New
		return true
	case feed.Delete:
		if c.Old == nil {
			return false
		}
		s.forgetLocked(c.Old.ID)
		_, ok := s.removeLocked(c.Old.ID)
		return ok
	default:
		return false
	}
}

// Get returns the bookmark with id, if present.
func (s *Bookmarks) Get(id string) (db.Bookmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return db.Bookmark{}, false
}

func (s *Bookmarks) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a copy of the list.
func (s *Bookmarks) Snapshot() []db.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Project returns the bookmarks matching q. A search term takes precedence
// over everything else, and a collection wins over a quick filter.
func (s *Bookmarks) Project(q Query) []db.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		return filter(s.items, func(b db.Bookmark) bool { return matches(b, term) })
	}
	if q.CollectionID != "" {
		return filter(s.items, func(b db.Bookmark) bool { return b.InCollection(q.CollectionID) })
	}
	switch q.Filter {
	case db.FilterStarred:
		return filter(s.items, func(b db.Bookmark) bool { return b.Starred })
	case db.FilterUnread:
		return filter(s.items, func(b db.Bookmark) bool { return b.Unread })
	case db.FilterRecent:
		return slices.Clone(s.items[:min(len(s.items), core.ViewRecentLimit)])
	default:
		return slices.Clone(s.items)
	}
}

// update applies fn to the bookmark with id and returns the value it had
// before.
func (s *Bookmarks) update(id string, fn func(*db.Bookmark)) (db.Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return db.Bookmark{}, false
	}
	prev := s.items[i]
	fn(&s.items[i])
	return prev, true
}

func (s *Bookmarks) insert(b db.Bookmark) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(b)
}

// forgetLocked records id as deleted.
func (s *Bookmarks) forgetLocked(id string) {
	if s.deleted == nil {
		s.deleted = make(map[string]struct{})
	}
	if _, ok := s.deleted[id]; ok {
		return
	}
	s.deleted[id] = struct{}{}
	s.deletedQ = append(s.deletedQ, id)
	if len(s.deletedQ) > deletedMemory {
		delete(s.deleted, s.deletedQ[0])
		s.deletedQ = s.deletedQ[1:]
	}
}

// remove deletes id and returns the row with its position.
func (s *Bookmarks) remove(id string) (db.Bookmark, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return db.Bookmark{}, -1, false
	}
	b := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return b, i, true
}

// restore puts b back at pos unless a row with its id arrived meanwhile.
func (s *Bookmarks) restore(b db.Bookmark, pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(b.ID) >= 0 {
		return
	}
	s.items = slices.Insert(s.items, min(max(pos, 0), len(s.items)), b)
}

func (s *Bookmarks) insertLocked(b db.Bookmark) bool {
	if _, gone := s.deleted[b.ID]; gone || s.indexLocked(b.ID) >= 0 {
		return false
	}
	i, _ := slices.BinarySearchFunc(s.items, b, newestFirst)
	s.items = slices.Insert(s.items, i, b)
	return true
}

func (s *Bookmarks) removeLocked(id string) (db.Bookmark, bool) {
	i := s.indexLocked(id)
	if i < 0 {
		return db.Bookmark{}, false
	}
	b := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return b, true
}

func (s *Bookmarks) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(b db.Bookmark) bool { return b.ID == id })
}

// newestFirst orders by creation time, newest first.
func newestFirst(a, b db.Bookmark) int {
	return b.CreatedAt.Compare(a.CreatedAt.Time)
}

func matches(b db.Bookmark, term string) bool {
	for _, field := range []string{b.Title, b.Description, b.URL, b.Domain} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func filter(items []db.Bookmark, keep func(db.Bookmark) bool) []db.Bookmark {
	out := make([]db.Bookmark, 0, len(items))
	for _, b := range items {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}
