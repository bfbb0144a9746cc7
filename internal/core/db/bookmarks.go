package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/errors"
	"github.com/seckatie/arkive/internal/logger"
)

const bookmarkColumns = `id, user_id, collection_id, title, url, domain, description, image,
	favicon, dominant_color, starred, unread, created_at, updated_at`

// NewBookmark is the input to CreateBookmark.
type NewBookmark struct {
	URL          string
	CollectionID string
	// Override wins over derived metadata field by field when non-empty.
	Override core.Metadata
}

// BookmarkPatch holds the fields UpdateBookmark may change. Nil fields are
// left alone. CollectionID pointing at "" files the bookmark under no
// collection.
type BookmarkPatch struct {
	Title         *string
	Description   *string
	Image         *string
	Favicon       *string
	DominantColor *string
	Starred       *bool
	Unread        *bool
	CollectionID  *string
}

func (p BookmarkPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Image == nil && p.Favicon == nil &&
		p.DominantColor == nil && p.Starred == nil && p.Unread == nil && p.CollectionID == nil
}

// ------------------------------
// Bookmark methods
// ------------------------------

func (db *DB) GetBookmark(ctx context.Context, id, owner string) (Bookmark, error) {
	return getBookmark(ctx, db.db, id, owner)
}

func getBookmark(ctx context.Context, q sqlx.QueryerContext, id, owner string) (Bookmark, error) {
	var b Bookmark
	err := sqlx.GetContext(ctx, q, &b,
		"SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ? AND user_id = ?", id, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, missing(ctx, q, "bookmarks", "bookmark", id)
		}
		return Bookmark{}, classify("get bookmark", err)
	}
	return b, nil
}

// missing reports an absent row. A row owned by somebody else is
// Forbidden, which callers outside the store treat exactly like NotFound.
func missing(ctx context.Context, q sqlx.QueryerContext, table, noun, id string) error {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)", table)
	if err := sqlx.GetContext(ctx, q, &exists, query, id); err == nil && exists {
		return errors.Forbidden(fmt.Sprintf("%s belongs to another owner: %s", noun, id))
	}
	return errors.NotFound(fmt.Sprintf("%s not found: %s", noun, id))
}

// CheckDuplicate reports whether owner already saved url. url is
// normalized first.
func (db *DB) CheckDuplicate(ctx context.Context, owner, rawURL string) (bool, error) {
	u, err := core.Normalize(rawURL)
	if err != nil {
		return false, err
	}
	return checkDuplicate(ctx, db.db, owner, u)
}

func checkDuplicate(ctx context.Context, q sqlx.QueryerContext, owner, normalized string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists,
		"SELECT EXISTS (SELECT 1 FROM bookmarks WHERE user_id = ? AND url = ?)", owner, normalized); err != nil {
		return false, classify("check duplicate", err)
	}
	return exists, nil
}

// CreateBookmark normalizes the URL, derives metadata and stores a new
// unread, unstarred bookmark. A collection's color replaces the derived
// dominant color.
//
// Emits a BookmarkCreatedEvent after the insert commits.
func (db *DB) CreateBookmark(ctx context.Context, owner string, in NewBookmark) (Bookmark, error) {
	normalized, err := core.Normalize(in.URL)
	if err != nil {
		return Bookmark{}, err
	}
	md := db.deriver.Derive(normalized).Merge(in.Override)
	if strings.TrimSpace(md.Title) == "" {
		md.Title = normalized
	}
	if strings.TrimSpace(md.Domain) == "" {
		md.Domain = core.UnknownDomain
	}
	if md.DominantColor == "" {
		md.DominantColor = core.NeutralColor
	}

	var created Bookmark
	err = db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		dup, err := checkDuplicate(ctx, tx, owner, normalized)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, errors.Duplicate(fmt.Sprintf("bookmark already exists: %s", normalized))
		}

		var collectionID *string
		if in.CollectionID != "" {
			c, err := getCollection(ctx, tx, in.CollectionID, owner)
			if err != nil {
				return nil, asForbidden(err)
			}
			collectionID = &c.ID
			if c.Color != "" {
				md.DominantColor = c.Color
			}
		}

		now := db.timestamp()
		created = Bookmark{
			ID:            uuid.NewString(),
			UserID:        owner,
			CollectionID:  collectionID,
			Title:         strings.TrimSpace(md.Title),
			URL:           normalized,
			Domain:        md.Domain,
			Description:   md.Description,
			Image:         md.Image,
			Favicon:       md.Favicon,
			DominantColor: md.DominantColor,
			Starred:       false,
			Unread:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO bookmarks (`+bookmarkColumns+`)
			VALUES (:id, :user_id, :collection_id, :title, :url, :domain, :description, :image,
				:favicon, :dominant_color, :starred, :unread, :created_at, :updated_at)
		`, created); err != nil {
			return nil, classify("add bookmark", err)
		}
		return []Event{BookmarkCreatedEvent{Bookmark: created}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	return created, nil
}

// asForbidden turns a missing referenced collection into Forbidden: the
// caller asked to file a bookmark somewhere it may not.
func asForbidden(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return errors.Forbidden(err.Error())
	}
	return err
}

// UpdateBookmark applies patch to the owner's bookmark. updated_at is
// refreshed by the database.
//
// Emits a BookmarkUpdatedEvent after the update commits.
func (db *DB) UpdateBookmark(ctx context.Context, id, owner string, patch BookmarkPatch) (Bookmark, error) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return Bookmark{}, errors.Validation("title must not be empty")
		}
		add("title", title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Image != nil {
		add("image", *patch.Image)
	}
	if patch.Favicon != nil {
		add("favicon", *patch.Favicon)
	}
	if patch.DominantColor != nil {
		color := strings.TrimSpace(*patch.DominantColor)
		if color == "" {
			color = core.NeutralColor
		}
		add("dominant_color", color)
	}
	if patch.Starred != nil {
		add("starred", *patch.Starred)
	}
	if patch.Unread != nil {
		add("unread", *patch.Unread)
	}

	var updated Bookmark
	err := db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		before, err := getBookmark(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}
		if patch.empty() {
			updated = before
			return nil, nil
		}

		if patch.CollectionID != nil {
			if *patch.CollectionID == "" {
				add("collection_id", nil)
			} else {
				if _, err := getCollection(ctx, tx, *patch.CollectionID, owner); err != nil {
					return nil, asForbidden(err)
				}
				add("collection_id", *patch.CollectionID)
			}
		}

		query := "UPDATE bookmarks SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
		if _, err := tx.ExecContext(ctx, query, append(args, id, owner)...); err != nil {
			return nil, classify("update bookmark", err)
		}

		updated, err = getBookmark(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}
		return []Event{BookmarkUpdatedEvent{Bookmark: updated, Previous: before}}, nil
	})
	if err != nil {
		return Bookmark{}, err
	}
	return updated, nil
}

func (db *DB) SetStarred(ctx context.Context, id, owner string, starred bool) (Bookmark, error) {
	return db.UpdateBookmark(ctx, id, owner, BookmarkPatch{Starred: &starred})
}

func (db *DB) SetUnread(ctx context.Context, id, owner string, unread bool) (Bookmark, error) {
	return db.UpdateBookmark(ctx, id, owner, BookmarkPatch{Unread: &unread})
}

// MoveBookmark files the bookmark under collectionID, or under no
// collection when collectionID is empty.
func (db *DB) MoveBookmark(ctx context.Context, id, owner, collectionID string) (Bookmark, error) {
	return db.UpdateBookmark(ctx, id, owner, BookmarkPatch{CollectionID: &collectionID})
}

// DeleteBookmark removes the owner's bookmark.
// Emits a BookmarkDeletedEvent after the delete commits.
func (db *DB) DeleteBookmark(ctx context.Context, id, owner string) error {
	return db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		b, err := getBookmark(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ? AND user_id = ?", id, owner); err != nil {
			return nil, classify("delete bookmark", err)
		}
		return []Event{BookmarkDeletedEvent{Bookmark: b}}, nil
	})
}

// ListBookmarks returns the owner's bookmarks, newest first. A non-empty
// collectionID takes precedence over filter.
func (db *DB) ListBookmarks(ctx context.Context, owner string, filter Filter, collectionID string) ([]Bookmark, error) {
	query := "SELECT " + bookmarkColumns + " FROM bookmarks WHERE user_id = ?"
	args := []any{owner}
	limit := 0

	switch {
	case collectionID != "":
		query += " AND collection_id = ?"
		args = append(args, collectionID)
	case filter == FilterStarred:
		query += " AND starred = 1"
	case filter == FilterUnread:
		query += " AND unread = 1"
	case filter == FilterRecent:
		limit = db.recentLimit
	}

	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	out := []Bookmark{}
	if err := db.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, classify("list bookmarks", err)
	}
	return out, nil
}

// AllBookmarks returns every stored bookmark regardless of owner. It is
// meant for rebuilding derived indexes.
func (db *DB) AllBookmarks(ctx context.Context) ([]Bookmark, error) {
	out := []Bookmark{}
	if err := db.db.SelectContext(ctx, &out,
		"SELECT "+bookmarkColumns+" FROM bookmarks ORDER BY created_at DESC, rowid DESC"); err != nil {
		return nil, classify("list all bookmarks", err)
	}
	return out, nil
}

// SearchHit is one ranked full-text match.
type SearchHit struct {
	ID    string
	Score float64
}

// Searcher ranks an owner's bookmarks by text relevance.
type Searcher interface {
	Query(ctx context.Context, owner, text string, limit int) ([]SearchHit, error)
}

// SetSearcher installs the full-text ranker used by SearchBookmarks.
func (db *DB) SetSearcher(s Searcher) {
	db.searcher = s
}

// SearchBookmarks ranks the owner's bookmarks for text. Full-text hits
// over title, description and domain come first by score; a plain
// substring match on title or url catches what the tokenizer misses.
// Ties go to the newest bookmark.
func (db *DB) SearchBookmarks(ctx context.Context, owner, text string, limit int) ([]Bookmark, error) {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		limit = core.DefaultSearchLimit
	}
	if text == "" {
		return []Bookmark{}, nil
	}

	scores := map[string]float64{}
	var ids []string
	if db.searcher != nil {
		hits, err := db.searcher.Query(ctx, owner, text, limit)
		if err != nil {
			db.log.Warn("full-text search failed, using substring match only", logger.Error(err))
		}
		for _, h := range hits {
			scores[h.ID] = h.Score
			ids = append(ids, h.ID)
		}
	}

	var matches []Bookmark
	if len(ids) > 0 {
		query, args, err := sqlx.In(
			"SELECT "+bookmarkColumns+" FROM bookmarks WHERE user_id = ? AND id IN (?)", owner, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to build search query: %w", err)
		}
		if err := db.db.SelectContext(ctx, &matches, db.db.Rebind(query), args...); err != nil {
			return nil, classify("search bookmarks", err)
		}
	}

	pattern := "%" + escapeLike(text) + "%"
	substring := `SELECT ` + bookmarkColumns + ` FROM bookmarks
		WHERE user_id = ? AND (title LIKE ? ESCAPE '\' OR url LIKE ? ESCAPE '\'`
	args := []any{owner, pattern, pattern}
	if db.searcher == nil {
		substring += ` OR description LIKE ? ESCAPE '\' OR domain LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	substring += `) ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	var fallback []Bookmark
	if err := db.db.SelectContext(ctx, &fallback, substring, args...); err != nil {
		return nil, classify("search bookmarks", err)
	}

	seen := make(map[string]bool, len(matches))
	for _, b := range matches {
		seen[b.ID] = true
	}
	for _, b := range fallback {
		if !seen[b.ID] {
			seen[b.ID] = true
			matches = append(matches, b)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		si, sj := scores[matches[i].ID], scores[matches[j].ID]
		if si != sj {
			return si > sj
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt.Time)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	if matches == nil {
		matches = []Bookmark{}
	}
	return matches, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
