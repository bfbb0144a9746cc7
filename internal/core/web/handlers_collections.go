package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/errors"
)

type createCollectionRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Icon  string `json:"icon" validate:"max=64"`
	Color string `json:"color" validate:"max=64"`
}

type updateCollectionRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Icon  *string `json:"icon" validate:"omitempty,max=64"`
	Color *string `json:"color" validate:"omitempty,max=64"`
}

func (ws *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := ws.db.ListCollectionsWithCounts(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collections)
}

func (ws *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	c, err := ws.db.CreateCollection(r.Context(), ownerFrom(r.Context()), db.NewCollection{
		Name:  req.Name,
		Icon:  req.Icon,
		Color: req.Color,
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (ws *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := ws.db.GetCollection(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (ws *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	var req updateCollectionRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	c, err := ws.db.UpdateCollection(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), db.CollectionPatch{
		Name:  req.Name,
		Icon:  req.Icon,
		Color: req.Color,
	})
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteCollection serves DELETE /collections/{id}?delete_contents=true.
func (ws *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	deleteContents := false
	if raw := r.URL.Query().Get("delete_contents"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			ws.writeError(w, r, errors.Validation("delete_contents must be true or false"))
			return
		}
		deleteContents = v
	}

	n, err := ws.db.DeleteCollection(r.Context(), chi.URLParam(r, "id"), ownerFrom(r.Context()), deleteContents)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"affected": n})
}
