package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/errors"
)

const collectionColumns = "c.id, c.user_id, c.name, c.icon, c.color, c.created_at, c.updated_at"

const collectionCount = `(SELECT COUNT(*) FROM bookmarks b WHERE b.collection_id = c.id AND b.user_id = c.user_id) AS count`

type NewCollection struct {
	Name  string
	Icon  string
	Color string
}

// CollectionPatch holds the fields UpdateCollection may change.
type CollectionPatch struct {
	Name  *string
	Icon  *string
	Color *string
}

// ------------------------------
// Collection methods
// ------------------------------

func (db *DB) GetCollection(ctx context.Context, id, owner string) (Collection, error) {
	return getCollection(ctx, db.db, id, owner)
}

func getCollection(ctx context.Context, q sqlx.QueryerContext, id, owner string) (Collection, error) {
	var c Collection
	err := sqlx.GetContext(ctx, q, &c,
		"SELECT "+collectionColumns+", "+collectionCount+" FROM collections c WHERE c.id = ? AND c.user_id = ?", id, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Collection{}, missing(ctx, q, "collections", "collection", id)
		}
		return Collection{}, classify("get collection", err)
	}
	return c, nil
}

// CreateCollection stores a new, empty collection. Icon and color fall
// back to defaults when blank.
//
// Emits a CollectionCreatedEvent after the insert commits.
func (db *DB) CreateCollection(ctx context.Context, owner string, in NewCollection) (Collection, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Collection{}, errors.Validation("collection name must not be empty")
	}
	icon := strings.TrimSpace(in.Icon)
	if icon == "" {
		icon = core.DefaultCollectionIcon
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = core.NeutralColor
	}

	now := db.timestamp()
	created := Collection{
		ID:        uuid.NewString(),
		UserID:    owner,
		Name:      name,
		Icon:      icon,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO collections (id, user_id, name, icon, color, created_at, updated_at)
			VALUES (:id, :user_id, :name, :icon, :color, :created_at, :updated_at)
		`, created); err != nil {
			return nil, classify("add collection", err)
		}
		return []Event{CollectionCreatedEvent{Collection: created}}, nil
	})
	if err != nil {
		return Collection{}, err
	}
	return created, nil
}

// UpdateCollection applies patch to the owner's collection.
// Emits a CollectionUpdatedEvent after the update commits.
func (db *DB) UpdateCollection(ctx context.Context, id, owner string, patch CollectionPatch) (Collection, error) {
	var sets []string
	var args []any
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Collection{}, errors.Validation("collection name must not be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if patch.Icon != nil {
		icon := strings.TrimSpace(*patch.Icon)
		if icon == "" {
			icon = core.DefaultCollectionIcon
		}
		sets = append(sets, "icon = ?")
		args = append(args, icon)
	}
	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		if color == "" {
			color = core.NeutralColor
		}
		sets = append(sets, "color = ?")
		args = append(args, color)
	}

	var updated Collection
	err := db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		before, err := getCollection(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}
		if len(sets) == 0 {
			updated = before
			return nil, nil
		}
		query := "UPDATE collections SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
		if _, err := tx.ExecContext(ctx, query, append(args, id, owner)...); err != nil {
			return nil, classify("update collection", err)
		}
		updated, err = getCollection(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}
		return []Event{CollectionUpdatedEvent{Collection: updated, Previous: before}}, nil
	})
	if err != nil {
		return Collection{}, err
	}
	return updated, nil
}

// DeleteCollection removes the owner's collection in one transaction.
// With deleteContents its bookmarks are deleted too; otherwise they are
// kept and filed under no collection. It returns the number of bookmarks
// affected.
//
// Emits one bookmark event per affected bookmark, then a
// CollectionDeletedEvent.
func (db *DB) DeleteCollection(ctx context.Context, id, owner string, deleteContents bool) (int, error) {
	affected := 0
	err := db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		c, err := getCollection(ctx, tx, id, owner)
		if err != nil {
			return nil, err
		}

		var contents []Bookmark
		if err := tx.SelectContext(ctx, &contents,
			"SELECT "+bookmarkColumns+" FROM bookmarks WHERE collection_id = ? AND user_id = ? ORDER BY created_at DESC, rowid DESC",
			id, owner); err != nil {
			return nil, classify("list collection contents", err)
		}

		var events []Event
		if deleteContents {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM bookmarks WHERE collection_id = ? AND user_id = ?", id, owner); err != nil {
				return nil, classify("delete collection contents", err)
			}
			for _, b := range contents {
				events = append(events, BookmarkDeletedEvent{Bookmark: b})
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				"UPDATE bookmarks SET collection_id = NULL WHERE collection_id = ? AND user_id = ?", id, owner); err != nil {
				return nil, classify("detach collection contents", err)
			}
			for _, before := range contents {
				after, err := getBookmark(ctx, tx, before.ID, owner)
				if err != nil {
					return nil, err
				}
				events = append(events, BookmarkUpdatedEvent{Bookmark: after, Previous: before})
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ? AND user_id = ?", id, owner); err != nil {
			return nil, classify("delete collection", err)
		}
		affected = len(contents)
		return append(events, CollectionDeletedEvent{Collection: c}), nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// ListCollectionsWithCounts returns the owner's collections, oldest first,
// each with its current bookmark count.
func (db *DB) ListCollectionsWithCounts(ctx context.Context, owner string) ([]Collection, error) {
	out := []Collection{}
	if err := db.db.SelectContext(ctx, &out,
		"SELECT "+collectionColumns+", "+collectionCount+" FROM collections c WHERE c.user_id = ? ORDER BY c.created_at ASC, c.rowid ASC",
		owner); err != nil {
		return nil, classify("list collections", err)
	}
	return out, nil
}
