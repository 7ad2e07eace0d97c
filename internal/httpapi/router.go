package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(serverErrorLoggerMiddleware)
	r.Use(corsMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(newKeyedRateLimiter(120, time.Minute).middleware)
	r.Use(middleware.Heartbeat("/healthz"))

	s := &server{
		db:            d.DB,
		pepper:        d.Pepper,
		publicBaseURL: d.PublicBaseURL,

		actionDeadline:    d.ActionDeadline,
		liveWindowMinutes: d.LiveWindowMinutes,

		hub:   newHub(),
		locks: newLockTable(),

		actionLimiter: newKeyedRateLimiter(30, 10*time.Second),
		ownerLimiter:  newKeyedRateLimiter(60, time.Minute),
	}
	if s.actionDeadline <= 0 {
		s.actionDeadline = 10 * time.Second
	}
	if s.liveWindowMinutes <= 0 {
		s.liveWindowMinutes = 120
	}

	r.Route("/v1", func(r chi.Router) {
		// Public: spectate by session key, resolve a side token.
		r.Get("/sessions/recent", s.handleListRecent)
		r.Get("/sessions/live", s.handleListLive)
		r.Get("/sessions/{sessionKey}", s.handleGetSession)
		r.Get("/sessions/{sessionKey}/stream", s.handleSessionStream)
		r.Post("/sessions/{sessionKey}/actions", s.handleSessionAction)
		r.Post("/sessions/resolve-token", s.handleResolveToken)

		// Owner surface: bearer API key.
		r.Group(func(r chi.Router) {
			r.Use(s.ownerAuthMiddleware)
			r.Post("/sessions", s.handleCreateSession)
			r.Patch("/sessions/{sessionKey}", s.handleUpdateSession)
			r.Delete("/sessions/{sessionKey}", s.handleDeleteSession)

			r.Get("/presets", s.handleListPresets)
			r.Post("/presets", s.handleCreatePreset)
			r.Get("/presets/{presetID}", s.handleGetPreset)
			r.Patch("/presets/{presetID}", s.handleUpdatePreset)
			r.Delete("/presets/{presetID}", s.handleDeletePreset)
		})
	})

	return r
}
