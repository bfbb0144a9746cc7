package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/errors"
	"github.com/seckatie/arkive/internal/logger"
)

// handleFeed serves GET /feed/{resource} as server-sent events. Each
// change is a "change" event. A "resync" event tells the client it fell
// behind and must reload before reconnecting.
func (ws *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	resource, ok := feed.ParseResource(chi.URLParam(r, "resource"))
	if !ok {
		ws.writeError(w, r, errors.NotFound("unknown feed resource"))
		return
	}
	owner := ownerFrom(r.Context())

	switch resource {
	case feed.Bookmarks:
		sub, err := ws.feed.SubscribeBookmarks(owner)
		if err != nil {
			ws.writeError(w, r, errors.Transient("feed unavailable", err))
			return
		}
		serveStream(ws, w, r, sub)
	case feed.Collections:
		sub, err := ws.feed.SubscribeCollections(owner)
		if err != nil {
			ws.writeError(w, r, errors.Transient("feed unavailable", err))
			return
		}
		serveStream(ws, w, r, sub)
	}
}

func serveStream[T any](ws *Server, w http.ResponseWriter, r *http.Request, sub *feed.Subscription[T]) {
	defer sub.Unsubscribe()

	log := ws.log.With(
		logger.String("subscription", sub.ID),
		logger.String("owner", sub.Owner),
		logger.String("resource", string(sub.Resource)))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		log.Warn("streaming not supported", logger.Error(err))
		return
	}

	if err := sendEvent(rc, w, "connected", map[string]string{"subscription": sub.ID}); err != nil {
		return
	}

	heartbeat := time.NewTicker(ws.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream client went away")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case c, ok := <-sub.Events():
			if !ok {
				if sub.Dropped() {
					log.Warn("stream fell behind, asking client to resync")
					_ = sendEvent(rc, w, "resync", map[string]string{"reason": "subscriber too slow"})
				}
				return
			}
			if err := sendEvent(rc, w, "change", c); err != nil {
				log.Debug("stream write failed", logger.Error(err))
				return
			}
		}
	}
}

func sendEvent(rc *http.ResponseController, w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return rc.Flush()
}
