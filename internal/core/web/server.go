// Package web serves the JSON API and live change streams over HTTP.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/seckatie/arkive/internal/core"
	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/core/importer"
	"github.com/seckatie/arkive/internal/logger"
)

// Options tunes a Server. Zero values pick defaults.
type Options struct {
	Addr            string
	RateLimit       float64 // requests per second per owner, 0 disables
	RateBurst       int
	Deriver         core.Deriver
	RequestTimeout  time.Duration
	HeartbeatPeriod time.Duration
}

type Server struct {
	db        *db.DB
	feed      *feed.Feed
	auth      Authenticator
	log       logger.Logger
	validate  *validator.Validate
	limiter   *ownerLimiter
	importer  *importer.Importer
	deriver   core.Deriver
	heartbeat time.Duration
	timeout   time.Duration

	// provisioned holds owner ids already registered with the store.
	provisioned sync.Map

	http *http.Server
}

func NewServer(database *db.DB, changes *feed.Feed, auth Authenticator, log logger.Logger, opts Options) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Deriver.FaviconURL == "" {
		opts.Deriver.FaviconURL = core.DefaultFaviconURL
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	ws := &Server{
		db:        database,
		feed:      changes,
		auth:      auth,
		log:       log,
		validate:  newValidator(),
		limiter:   newOwnerLimiter(opts.RateLimit, opts.RateBurst),
		importer:  importer.New(database, log),
		deriver:   opts.Deriver,
		heartbeat: opts.HeartbeatPeriod,
		timeout:   opts.RequestTimeout,
	}
	ws.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	// Open streams only end when their subscriptions do.
	ws.http.RegisterOnShutdown(changes.Close)
	return ws
}

// Handler builds the router.
func (ws *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(ws.log))

	r.Get("/healthz", ws.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ws.authenticate)
		r.Use(ws.rateLimit)

		// Streams stay open, so they get no request timeout.
		r.Get("/feed/{resource}", ws.handleFeed)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(ws.timeout))

			r.Route("/bookmarks", func(r chi.Router) {
				r.Get("/", ws.listBookmarks)
				r.Post("/", ws.createBookmark)
				r.Get("/check", ws.checkDuplicate)
				r.Post("/import", ws.importBookmarks)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", ws.getBookmark)
					r.Patch("/", ws.updateBookmark)
					r.Delete("/", ws.deleteBookmark)
					r.Put("/star", ws.starBookmark)
					r.Put("/unread", ws.markUnread)
					r.Put("/collection", ws.moveBookmark)
				})
			})

			r.Route("/collections", func(r chi.Router) {
				r.Get("/", ws.listCollections)
				r.Post("/", ws.createCollection)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", ws.getCollection)
					r.Patch("/", ws.updateCollection)
					r.Delete("/", ws.deleteCollection)
				})
			})

			r.Get("/metadata", ws.handleMetadata)
			r.Get("/profile", ws.getProfile)
			r.Patch("/profile", ws.updateProfile)
		})
	})
	return r
}

// Start serves until Stop is called.
func (ws *Server) Start() error {
	ws.log.Info("web server listening", logger.String("addr", ws.http.Addr))
	if err := ws.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (ws *Server) Stop(ctx context.Context) error {
	ws.log.Info("web server shutting down")
	ws.limiter.stop()
	return ws.http.Shutdown(ctx)
}
