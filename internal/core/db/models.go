package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Identity is the authenticated user as reported by the auth provider.
type Identity struct {
	ID        string `db:"id" json:"id"`
	Email     string `db:"email" json:"email"`
	FullName  string `db:"full_name" json:"full_name"`
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
}

type Profile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt Timestamp `db:"updated_at" json:"updated_at"`
}

type Collection struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Icon      string    `db:"icon" json:"icon"`
	Color     string    `db:"color" json:"color"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt Timestamp `db:"updated_at" json:"updated_at"`
	// Count is the number of bookmarks filed under the collection.
	Count int `db:"count" json:"count"`
}

type Bookmark struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	CollectionID  *string   `db:"collection_id" json:"collection_id"`
	Title         string    `db:"title" json:"title"`
	URL           string    `db:"url" json:"url"`
	Domain        string    `db:"domain" json:"domain"`
	Description   string    `db:"description" json:"description"`
	Image         string    `db:"image" json:"image"`
	Favicon       string    `db:"favicon" json:"favicon"`
	DominantColor string    `db:"dominant_color" json:"dominant_color"`
	Starred       bool      `db:"starred" json:"starred"`
	Unread        bool      `db:"unread" json:"unread"`
	CreatedAt     Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt     Timestamp `db:"updated_at" json:"updated_at"`
}

// InCollection reports whether b is filed under collection id.
func (b Bookmark) InCollection(id string) bool {
	return b.CollectionID != nil && *b.CollectionID == id
}

// Filter selects a quick-filter view of an owner's bookmarks.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterStarred Filter = "starred"
	FilterUnread  Filter = "unread"
	FilterRecent  Filter = "recent"
)

// ParseFilter maps user input to a Filter; empty input means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "", FilterAll:
		return FilterAll, nil
	case FilterStarred, FilterUnread, FilterRecent:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp stores times as UTC text and reads back whatever form
// SQLite hands over.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(timeLayout), nil
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
