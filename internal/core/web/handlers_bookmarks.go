package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/errors"
)

type createBookmarkRequest struct {
	URL           string `json:"url" validate:"required,max=2048"`
	CollectionID  string `json:"collection_id" validate:"max=64"`
	Title         string `json:"title" validate:"max=500"`
	Description   string `json:"description" validate:"max=2000"`
	Image         string `json:"image" validate:"max=2048"`
	Favicon       string `json:"favicon" validate:"max=2048"`
	DominantColor string `json:"dominant_color" validate:"max=64"`
}

type updateBookmarkRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=1,max=500"`
	Description   *string `json:"description" validate:"omitempty,max=2000"`
	Image         *string `json:"image" validate:"omitempty,max=2048"`
	Favicon       *string `json:"favicon" validate:"omitempty,max=2048"`
	DominantColor *string `json:"dominant_color" validate:"omitempty,max=64"`
	Starred       *bool   `json:"starred"`
	Unread        *bool   `json:"unread"`
	CollectionID  *string `json:"collection_id" validate:"omitempty,max=64"`
}

type starRequest struct {
	Starred *bool `json:"starred" validate:"required"`
}

type unreadRequest struct {
	Unread *bool `json:"unread" validate:"required"`
}

type moveRequest struct {
	// Empty or null files the bookmark under no collection.
	CollectionID *string `json:"collection_id" validate:"omitempty,max=64"`
}

// listBookmarks serves GET /bookmarks?filter=&collection_id=&q=&limit=.
// A search term ignores the other parameters.
func (ws *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	q := r.URL.Query()

	if term := q.Get("q"); term != "" {
		limit := core.DefaultSearchLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				ws.writeError(w, r, errors.Validation("limit must be a positive integer"))
				return
			}
			limit = n
		}
		bookmarks, err := ws.db.SearchBookmarks(r.Context(), owner, term, limit)
		if err != nil {
			ws.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bookmarks)
		return
	}

	filter, err := db.ParseFilter(q.Get("filter"))
	if err != nil {
		ws.writeError(w, r, errors.Validation(err.Error()))
		return
	}
	bookmarks, err := ws.db.ListBookmarks(r.Context(), owner, filter, q.Get("collection_id"))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

func (ws *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	b, err := ws.db.CreateBookmark(r.Context(), ownerFrom(r.Context()), db.NewBookmark{
		URL:          req.URL,
		CollectionID: req.CollectionID,
		Override: core.Metadata{
			Title:         req.Title,
			Description:   req.Description,
			Image:         req.Image,
			Favicon:       req.Favicon,
			DominantColor: req.DominantColor,
		},
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// checkDuplicate serves GET /bookmarks/check?url=.
func (ws *Server) checkDuplicate(w http.ResponseWriter, r *http.Request) {
	exists, err := ws.db.CheckDuplicate(r.Context(), ownerFrom(r.Context()), r.URL.Query().Get("url"))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (ws *Server) getBookmark(w http.ResponseWriter, r *http.Request) {
	b, err := ws.db.GetBookmark(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (ws *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	var req updateBookmarkRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}

	b, err := ws.db.UpdateBookmark(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), db.BookmarkPatch{
		Title:         req.Title,
		Description:   req.Description,
		Image:         req.Image,
		Favicon:       req.Favicon,
		DominantColor: req.DominantColor,
		Starred:       req.Starred,
		Unread:        req.Unread,
		CollectionID:  req.CollectionID,
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (ws *Server) starBookmark(w http.ResponseWriter, r *http.Request) {
	var req starRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	b, err := ws.db.SetStarred(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), *req.Starred)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (ws *Server) markUnread(w http.ResponseWriter, r *http.Request) {
	var req unreadRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	b, err := ws.db.SetUnread(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), *req.Unread)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (ws *Server) moveBookmark(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	var target string
	if req.CollectionID != nil {
		target = *req.CollectionID
	}
	b, err := ws.db.MoveBookmark(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), target)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (ws *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := ws.db.DeleteBookmark(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context())); err != nil {
		ws.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importBookmarks serves POST /bookmarks/import with a Netscape bookmark
// file as the body.
func (ws *Server) importBookmarks(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 16*maxBodyBytes)
	res, err := ws.importer.Import(r.Context(), ownerFrom(r.Context()), body)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
