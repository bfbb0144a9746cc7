// Package importer reads browser bookmark exports in the Netscape HTML
// format into an owner's collections and bookmarks.
package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/errors"
	"github.com/seckatie/arkive/internal/logger"
)

// Entry is one link found in an export.
type Entry struct {
	URL    string
	Title  string
	Folder string
}

// Store is the repository surface the importer writes through.
type Store interface {
	ListCollectionsWithCounts(ctx context.Context, owner string) ([]db.Collection, error)
	CreateCollection(ctx context.Context, owner string, in db.NewCollection) (db.Collection, error)
	CreateBookmark(ctx context.Context, owner string, in db.NewBookmark) (db.Bookmark, error)
}

// Result summarises an import.
type Result struct {
	Collections int `json:"collections"`
	Created     int `json:"created"`
	Duplicates  int `json:"duplicates"`
	Invalid     int `json:"invalid"`
}

type Importer struct {
	store Store
	log   logger.Logger
}

func New(store Store, log logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{store: store, log: log}
}

// Parse extracts every link of a Netscape bookmark file. Links inside a
// folder carry the name of their innermost folder.
func Parse(r io.Reader) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bookmark file: %w", err)
	}

	var entries []Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		entries = append(entries, Entry{
			URL:    href,
			Title:  strings.TrimSpace(a.Text()),
			Folder: folderOf(a),
		})
	})
	return entries, nil
}

// folderOf finds the H3 heading of the list holding a. The parser may nest
// the list inside the heading's DT or leave it as the heading's sibling.
func folderOf(a *goquery.Selection) string {
	dl := a.Closest("dl")
	if dl.Length() == 0 {
		return ""
	}
	h3 := dl.PrevAllFiltered("h3").First()
	if h3.Length() == 0 {
		h3 = dl.Parent().ChildrenFiltered("h3").First()
	}
	return strings.TrimSpace(h3.Text())
}

// Import stores the links of r for owner. Folders become collections,
// reusing existing collections with the same name. Links the owner
// already has are counted, not treated as failures.
func (i *Importer) Import(ctx context.Context, owner string, r io.Reader) (Result, error) {
	entries, err := Parse(r)
	if err != nil {
		return Result{}, errors.Validation(err.Error())
	}

	existing, err := i.store.ListCollectionsWithCounts(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	collections := make(map[string]string, len(existing))
	for _, c := range existing {
		collections[strings.ToLower(c.Name)] = c.ID
	}

	var res Result
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		normalized, err := core.Normalize(e.URL)
		if err != nil || foreignScheme(e.URL) {
			res.Invalid++
			i.log.Debug("skipping link", logger.String("url", e.URL))
			continue
		}

		in := db.NewBookmark{URL: normalized, Override: core.Metadata{Title: e.Title}}
		if e.Folder != "" {
			id, ok := collections[strings.ToLower(e.Folder)]
			if !ok {
				c, err := i.store.CreateCollection(ctx, owner, db.NewCollection{Name: e.Folder})
				if err != nil {
					return res, err
				}
				id = c.ID
				collections[strings.ToLower(e.Folder)] = id
				res.Collections++
			}
			in.CollectionID = id
		}

		_, err = i.store.CreateBookmark(ctx, owner, in)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, errors.ErrDuplicateBookmark):
			res.Duplicates++
		case errors.Is(err, errors.ErrValidation):
			res.Invalid++
			i.log.Debug("skipping link", logger.String("url", e.URL), logger.Error(err))
		default:
			return res, err
		}
	}

	i.log.Info("import finished",
		logger.String("owner", owner),
		logger.Int("created", res.Created),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("invalid", res.Invalid),
		logger.Int("collections", res.Collections))
	return res, nil
}

// foreignScheme reports whether raw names a scheme other than http(s),
// such as javascript: or place: links.
func foreignScheme(raw string) bool {
	scheme, rest, ok := strings.Cut(raw, ":")
	if !ok || scheme == "" {
		return false
	}
	for _, r := range scheme {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	if strings.Trim(strings.SplitN(rest, "/", 2)[0], "0123456789") == "" && rest != "" && rest[0] != '/' {
		// host:port
		return false
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return false
	default:
		return true
	}
}
