package view

import (
	"slices"
	"sync"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
)

// Collections is the canonical collection list of one owner, oldest first.
type Collections struct {
	mu    sync.RWMutex
	items []db.Collection
}

func NewCollections() *Collections {
	return &Collections{}
}

func (s *Collections) Load(items []db.Collection) {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, oldestFirst)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = sorted
}

// Apply folds one feed change into the list. It is idempotent.
func (s *Collections) Apply(c feed.CollectionChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Type {
	case feed.Insert:
		if c.New == nil || s.indexLocked(c.New.ID) >= 0 {
			return false
		}
		i, _ := slices.BinarySearchFunc(s.items, *c.New, oldestFirst)
		s.items = slices.Insert(s.items, i+countEqual(s.items[i:], *c.New), *c.New)
		return true
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
		i := s.indexLocked(c.Old.ID)
		if i < 0 {
			return false
		}
		s.items = slices.Delete(s.items, i, i+1)
		return true
	default:
		return false
	}
}

func (s *Collections) Get(id string) (db.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return db.Collection{}, false
}

func (s *Collections) Snapshot() []db.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// WithCounts returns the collections with Count recomputed from bookmarks.
func (s *Collections) WithCounts(bookmarks []db.Bookmark) []db.Collection {
	counts := make(map[string]int)
	for _, b := range bookmarks {
		if b.CollectionID != nil {
			counts[*b.CollectionID]++
		}
	}

	out := s.Snapshot()
	for i := range out {
		out[i].Count = counts[out[i].ID]
	}
	return out
}

func (s *Collections) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(c db.Collection) bool { return c.ID == id })
}

func oldestFirst(a, b db.Collection) int {
	return a.CreatedAt.Compare(b.CreatedAt.Time)
}

// countEqual counts leading items created at the same time as c, so new
// collections land after older ties.
func countEqual(items []db.Collection, c db.Collection) int {
	n := 0
	for n < len(items) && items[n].CreatedAt.Equal(c.CreatedAt.Time) {
		n++
	}
	return n
}
