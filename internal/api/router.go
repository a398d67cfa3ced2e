package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/whispr-im/whispr/internal/config"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	origins := config.AppConfig.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(origins, ","),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/guest", apiHandler.GuestLoginHandler)
		r.Get("/users/{userID}", apiHandler.GetUserHandler)
		r.Get("/messages/{conversationID}", apiHandler.GetMessagesHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Session-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.BearerAuthMiddleware)

			r.Get("/auth/session", apiHandler.SessionHandler)
			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Post("/conversations", apiHandler.CreateConversationHandler)
			r.Post("/messages/{conversationID}", apiHandler.PostMessageHandler)
			r.Post("/upload", apiHandler.UploadHandler)
		})
	})

	return r
}
