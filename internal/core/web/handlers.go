package web

import (
	"context"
	"net/http"
	"time"

	"github.com/seckatie/arkive/internal/core"
)

type updateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
}

type metadataResponse struct {
	URL string `json:"url"`
	core.Metadata
}

func (ws *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := ws.db.Ping(ctx); err != nil {
		writeMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": ws.feed.Subscribers(),
	})
}

// handleMetadata serves GET /metadata?url= with the metadata a new
// bookmark for url would get.
func (ws *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	normalized, err := core.Normalize(r.URL.Query().Get("url"))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse{URL: normalized, Metadata: ws.deriver.Derive(normalized)})
}

func (ws *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := ws.db.GetProfile(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (ws *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := ws.decode(w, r, &req); err != nil {
		ws.writeError(w, r, err)
		return
	}
	p, err := ws.db.UpdateProfile(r.Context(), ownerFrom(r.Context()), req.FullName, req.AvatarURL)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
