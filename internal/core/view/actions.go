package view

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/errors"
)

// PendingPrefix marks the id of a placeholder shown while a create is in
// flight.
const PendingPrefix = "pending-"

// ToggleStar flips the starred flag locally, then persists it. On failure
// only the starred field is put back.
func (s *Session) ToggleStar(ctx context.Context, id string) error {
	var want bool
	prev, ok := s.Bookmarks.update(id, func(b *db.Bookmark) {
		b.Starred = !b.Starred
		want = b.Starred
	})
	if !ok {
		return errors.NotFound("bookmark not found")
	}
	s.notify()

	if _, err := s.backend.SetStarred(ctx, id, s.owner, want); err != nil {
		s.Bookmarks.update(id, func(b *db.Bookmark) { b.Starred = prev.Starred })
		s.notify()
		s.report("star", id, err)
		return err
	}
	return nil
}

// SetUnread sets the unread flag locally, then persists it.
func (s *Session) SetUnread(ctx context.Context, id string, unread bool) error {
	prev, ok := s.Bookmarks.update(id, func(b *db.Bookmark) { b.Unread = unread })
	if !ok {
		return errors.NotFound("bookmark not found")
	}
	if prev.Unread == unread {
		return nil
	}
	s.notify()

	if _, err := s.backend.SetUnread(ctx, id, s.owner, unread); err != nil {
		s.Bookmarks.update(id, func(b *db.Bookmark) { b.Unread = prev.Unread })
		s.notify()
		s.report("unread", id, err)
		return err
	}
	return nil
}

// Delete removes the bookmark locally, then in the store. A bookmark the
// store no longer has counts as deleted.
func (s *Session) Delete(ctx context.Context, id string) error {
	prev, pos, ok := s.Bookmarks.remove(id)
	if !ok {
		return nil
	}
	s.notify()

	err := s.backend.DeleteBookmark(ctx, id, s.owner)
	if err == nil || errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	s.Bookmarks.restore(prev, pos)
	s.notify()
	s.report("delete", id, err)
	return err
}

// Create shows a placeholder right away and swaps it for the stored row
// once the store accepts it.
func (s *Session) Create(ctx context.Context, in db.NewBookmark) (db.Bookmark, error) {
	normalized, err := core.Normalize(in.URL)
	if err != nil {
		s.report("create", "", err)
		return db.Bookmark{}, err
	}
	in.URL = normalized

	placeholder := s.placeholder(in)
	s.Bookmarks.insert(placeholder)
	s.notify()

	created, err := s.backend.CreateBookmark(ctx, s.owner, in)
	s.Bookmarks.remove(placeholder.ID)
	if err != nil {
		s.notify()
		s.report("create", "", err)
		return db.Bookmark{}, err
	}

	// The feed may already have delivered the row, or its deletion.
	s.apply(func() bool { return s.Bookmarks.insert(created) })
	s.notify()
	return created, nil
}

func (s *Session) placeholder(in db.NewBookmark) db.Bookmark {
	md := s.deriver.Derive(in.URL).Merge(in.Override)
	id, err := gonanoid.New()
	if err != nil {
		id = time.Now().Format(time.RFC3339Nano)
	}

	b := db.Bookmark{
		ID:            PendingPrefix + id,
		UserID:        s.owner,
		Title:         md.Title,
		URL:           in.URL,
		Domain:        md.Domain,
		Description:   md.Description,
		Image:         md.Image,
		Favicon:       md.Favicon,
		DominantColor: md.DominantColor,
		Unread:        true,
		CreatedAt:     db.NewTimestamp(time.Now()),
		UpdatedAt:     db.NewTimestamp(time.Now()),
	}
	if in.CollectionID != "" {
		cid := in.CollectionID
		b.CollectionID = &cid
		if c, ok := s.Collections.Get(cid); ok && c.Color != "" {
			b.DominantColor = c.Color
		}
	}
	return b
}

// NewPreview returns a debouncer for an add-bookmark form. Each settled
// input is normalized and derived; a URL the owner already saved is
// delivered with a duplicate error alongside its metadata.
func (s *Session) NewPreview(delay time.Duration, deliver func(core.PreviewResult)) *core.PreviewDebouncer {
	return core.NewPreviewDebouncer(delay, s.deriver, func(ctx context.Context, input string) (string, core.Metadata, error) {
		u, err := core.Normalize(input)
		if err != nil {
			return "", core.Metadata{}, err
		}
		md := s.deriver.Derive(u)
		if s.hasURL(u) {
			return u, md, errors.ErrDuplicateBookmark
		}
		return u, md, nil
	}, deliver)
}

func (s *Session) hasURL(u string) bool {
	for _, b := range s.Bookmarks.Snapshot() {
		if b.URL == u {
			return true
		}
	}
	return false
}
