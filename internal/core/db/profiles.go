package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/seckatie/arkive/internal/errors"
)

// RegisterIdentity records an authenticated identity the first time it is
// seen. The database provisions the matching profile. Registering a known
// identity again is a no-op.
func (db *DB) RegisterIdentity(ctx context.Context, id Identity) error {
	if strings.TrimSpace(id.ID) == "" || strings.TrimSpace(id.Email) == "" {
		return errors.Validation("identity requires an id and an email")
	}
	return db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, full_name, avatar_url, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, id.ID, id.Email, id.FullName, id.AvatarURL, db.timestamp())
		return nil, classify("register identity", err)
	})
}

func (db *DB) GetProfile(ctx context.Context, owner string) (Profile, error) {
	var p Profile
	err := db.db.GetContext(ctx, &p, `
		SELECT id, email, full_name, avatar_url, created_at, updated_at
		FROM profiles WHERE id = ?
	`, owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, errors.NotFound(fmt.Sprintf("profile not found: %s", owner))
		}
		return Profile{}, classify("get profile", err)
	}
	return p, nil
}

// UpdateProfile changes the display fields of the owner's profile.
func (db *DB) UpdateProfile(ctx context.Context, owner string, fullName, avatarURL *string) (Profile, error) {
	var sets []string
	var args []any
	if fullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, strings.TrimSpace(*fullName))
	}
	if avatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, strings.TrimSpace(*avatarURL))
	}
	if len(sets) > 0 {
		err := db.write(ctx, func(tx *sqlx.Tx) ([]Event, error) {
			res, err := tx.ExecContext(ctx,
				"UPDATE profiles SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, owner)...)
			if err != nil {
				return nil, classify("update profile", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return nil, errors.NotFound(fmt.Sprintf("profile not found: %s", owner))
			}
			return nil, nil
		})
		if err != nil {
			return Profile{}, err
		}
	}
	return db.GetProfile(ctx, owner)
}
