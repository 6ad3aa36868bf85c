package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	BearerToken        string
	CORSOrigins        []string
	RateLimitPerMinute int
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health is unauthenticated; everything else sits behind bearer auth when a
// token is configured. Rate limiting is applied per IP.
func NewRouter(handlers *Handlers, cfg RouterConfig, pingers map[string]Pinger, log *slog.Logger) *chi.Mux {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(pingers, log))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.BearerToken))

		r.Get("/api/v1/config", handlers.GetClientConfig)
		r.Get("/api/v1/directions", handlers.Directions)
		r.Post("/api/v1/feedback", handlers.SubmitFeedback)

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Post("/", handlers.CreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetSession)
				r.Delete("/", handlers.DeleteSession)
				r.Put("/params", handlers.UpdateParams)
				r.Post("/refresh", handlers.Refresh)
				r.Get("/venues", handlers.ListVenues)
				r.Post("/venues", handlers.DiscoverVenue)
				r.Post("/venues/more", handlers.LoadMore)
				r.Put("/selection", handlers.Select)
				r.Delete("/selection", handlers.ClearSelection)
				r.Put("/pin", handlers.SetMapPin)
				r.Get("/trending", handlers.GetTrending)
				r.Post("/rag", handlers.AskRAG)
			})
		})
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
