package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/logger"
)

// Index is an in-memory full-text index over bookmarks. It is rebuilt
// from the database at startup and kept current through DB events.
//
// All methods are safe for concurrent use.
type Index struct {
	index bleve.Index
	log   logger.Logger
	mu    sync.RWMutex
}

func New(log logger.Logger) (*Index, error) {
	if log == nil {
		log = logger.Nop()
	}
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &Index{index: idx, log: log}, nil
}

func toDocument(b db.Bookmark) document {
	return document{
		OwnerID:     b.UserID,
		Title:       b.Title,
		Description: b.Description,
		Domain:      b.Domain,
		CreatedAt:   float64(b.CreatedAt.UnixNano()),
	}
}

// Put indexes or reindexes a bookmark.
func (i *Index) Put(b db.Bookmark) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.index.Index(b.ID, toDocument(b)); err != nil {
		return fmt.Errorf("failed to index bookmark %s: %w", b.ID, err)
	}
	return nil
}

func (i *Index) Remove(id string) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.index.Delete(id); err != nil {
		return fmt.Errorf("failed to remove bookmark %s from index: %w", id, err)
	}
	return nil
}

// Rebuild replaces the index contents with bookmarks.
func (i *Index) Rebuild(bookmarks []db.Bookmark) error {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create search index: %w", err)
	}
	batch := fresh.NewBatch()
	for _, b := range bookmarks {
		if err := batch.Index(b.ID, toDocument(b)); err != nil {
			return fmt.Errorf("failed to batch bookmark %s: %w", b.ID, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}

	i.mu.Lock()
	old := i.index
	i.index = fresh
	i.mu.Unlock()

	if err := old.Close(); err != nil {
		i.log.Warn("failed to close previous search index", logger.Error(err))
	}
	i.log.Info("search index rebuilt", logger.Int("documents", len(bookmarks)))
	return nil
}

// Load rebuilds the index from every bookmark in store.
func (i *Index) Load(ctx context.Context, store *db.DB) error {
	all, err := store.AllBookmarks(ctx)
	if err != nil {
		return err
	}
	return i.Rebuild(all)
}

// Attach keeps the index in step with store and installs it as the
// store's ranker.
func (i *Index) Attach(store *db.DB) {
	put := func(b db.Bookmark) error { return i.Put(b) }
	store.RegisterEventListener(db.OnBookmarkCreatedEvent, func(e db.Event) error {
		return put(e.(db.BookmarkCreatedEvent).Bookmark)
	})
	store.RegisterEventListener(db.OnBookmarkUpdatedEvent, func(e db.Event) error {
		return put(e.(db.BookmarkUpdatedEvent).Bookmark)
	})
	store.RegisterEventListener(db.OnBookmarkDeletedEvent, func(e db.Event) error {
		return i.Remove(e.(db.BookmarkDeletedEvent).Bookmark.ID)
	})
	store.SetSearcher(i)
}

// Query returns the owner's bookmark ids ranked by relevance, newest first
// among equal scores.
func (i *Index) Query(ctx context.Context, owner, text string, limit int) ([]db.SearchHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(owner, text), limit, 0, false)
	req.SortBy([]string{"-_score", "-created_at"})

	i.mu.RLock()
	res, err := i.index.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]db.SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, db.SearchHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

func buildQuery(owner, text string) query.Query {
	ownerQuery := bleve.NewTermQuery(owner)
	ownerQuery.SetField("owner_id")

	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(2.0)

	desc := bleve.NewMatchQuery(text)
	desc.SetField("description")

	domain := bleve.NewMatchQuery(text)
	domain.SetField("domain")
	domain.SetBoost(1.5)

	textQueries := []query.Query{title, desc, domain}
	if !strings.ContainsAny(text, " \t") {
		prefix := bleve.NewPrefixQuery(strings.ToLower(text))
		prefix.SetField("title")
		prefix.SetBoost(0.5)
		textQueries = append(textQueries, prefix)
	}

	return bleve.NewConjunctionQuery(ownerQuery, bleve.NewDisjunctionQuery(textQueries...))
}
