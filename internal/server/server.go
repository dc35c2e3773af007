package server

import (
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/talkdrop/talkdrop/internal/config"
)

// New creates a configured HTTP server with all routes registered.
func New(hub *Hub, st Store, cfg config.Config) *http.Server {
	mux := http.NewServeMux()
	h := &Handlers{
		Hub:        hub,
		Store:      st,
		AdminToken: cfg.AdminToken,
		StartTime:  time.Now(),
	}

	// REST API routes.
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/rooms", h.ListRooms)
	mux.HandleFunc("POST /api/rooms/{room}/messages", h.SendMessage)
	mux.HandleFunc("GET /api/rooms/{room}/messages", h.GetMessages)
	mux.HandleFunc("GET /api/rooms/{room}/presence", h.GetPresence)

	// Admin routes.
	mux.HandleFunc("GET /api/admin/messages", h.requireAdmin(h.AdminMessages))
	mux.HandleFunc("GET /api/admin/stats", h.requireAdmin(h.AdminStats))
	mux.HandleFunc("DELETE /api/admin/rooms/{room}/messages/{id}", h.requireAdmin(h.AdminDeleteMessage))
	mux.HandleFunc("DELETE /api/admin/rooms/{room}/messages", h.requireAdmin(h.AdminDeleteRoomMessages))
	mux.HandleFunc("DELETE /api/admin/rooms/{room}", h.requireAdmin(h.AdminDeleteRoom))

	// WebSocket route.
	mux.HandleFunc("GET /ws/{room}", h.HandleWS)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Admin-Token"},
	})
	handler := loggingMiddleware(c.Handler(mux))

	return &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
	})
}
