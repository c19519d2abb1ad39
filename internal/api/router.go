package api

import (
	"net/http"

	"github.com/Rrens/kb-chat/internal/api/handler"
	customMiddleware "github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/Rrens/kb-chat/internal/metrics"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/Rrens/kb-chat/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Dependencies are the wired components the router exposes
type Dependencies struct {
	Auth     *service.AuthService
	Chat     *service.ChatService
	Upload   *service.UploadService
	Sessions handler.Pinger
	LLM      *llm.Router
	Encoder  *stream.Encoder
	Metrics  *metrics.Metrics
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	timeout := middleware.Timeout(cfg.Server.MiddlewareTimeout)

	// Health checks do not need a session
	r.Group(func(r chi.Router) {
		r.Use(timeout)

		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Sessions))

		if cfg.Metrics.Enabled && deps.Metrics != nil {
			r.Method(http.MethodGet, cfg.Metrics.Path, deps.Metrics.Handler())
		}
	})

	sessionCookie := customMiddleware.NewSessionCookie(
		cfg.Session.CookieName,
		cfg.Session.CookieSecure,
		cfg.Session.TTL,
	)

	authHandler := handler.NewAuthHandler(deps.Auth, cfg.Session.CookieSecure)
	indexHandler := handler.NewIndexHandler(deps.Chat, cfg.Storage.AllowedExtension)
	sessionHandler := handler.NewSessionHandler(deps.Chat)
	chatHandler := handler.NewChatHandler(deps.Chat, deps.Encoder)
	uploadHandler := handler.NewUploadHandler(deps.Upload)

	r.Group(func(r chi.Router) {
		r.Use(sessionCookie.Handle)

		// A streamed answer outlives the request timeout. Generation is
		// bounded by the backend timeout and pacing by the client connection.
		r.Post("/api/v1/chat/stream", chatHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/", indexHandler.Index)
			r.Get("/login", authHandler.Login)
			r.Get("/authorize", authHandler.Authorize)
			r.Get("/logout", authHandler.Logout)

			r.Route("/api/v1", func(r chi.Router) {
				r.Get("/health", handler.HealthCheck)
				r.Get("/session", sessionHandler.Get)
				r.Post("/uploads", uploadHandler.Upload)

				if deps.LLM != nil {
					r.Get("/llm-providers", handler.ListLLMProviders(deps.LLM))
				}
			})
		})
	})

	return r
}
