package routes

import (
	"net/http"

	"github.com/Dosada05/bracket-engine/handlers"
	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/middleware"
	"github.com/Dosada05/bracket-engine/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

type Dependencies struct {
	JWTSecret   []byte
	CORSOrigins []string
	// RateLimiter guards the API; nil disables limiting.
	RateLimiter *middleware.IPRateLimiter
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer

	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP. Enable only behind a
	// proxy that sets them.
	TrustProxy bool

	Brackets    *handlers.BracketHandler
	Matches     *handlers.MatchHandler
	Disputes    *handlers.DisputeHandler
	Attachments *handlers.AttachmentHandler
	WebSocket   *handlers.WebSocketHandler
	Health      *handlers.HealthHandler
}

func SetupRoutes(router chi.Router, deps Dependencies) {
	router.Use(chiMiddleware.RequestID)
	// X-Forwarded-For is client-controlled unless a proxy in front overwrites it
	if deps.TrustProxy {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(deps.Metrics.Middleware)

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", deps.Health.HealthHandler)
	if deps.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	router.Get("/ws/tournaments/{tournamentID}", deps.WebSocket.ServeWs)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.RateLimiter))

		// Публичные маршруты: просмотр сетки и матчей
		r.Get("/tournaments/{tournamentID}/bracket", deps.Brackets.GetBracketHandler)
		r.Get("/tournaments/{tournamentID}/matches", deps.Matches.ListTournamentMatchesHandler)
		r.Get("/matches/{matchID}", deps.Matches.GetMatchHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(deps.JWTSecret))

			r.Post("/matches/{matchID}/results", deps.Matches.SubmitResultHandler)
			r.Post("/matches/{matchID}/attachments", deps.Attachments.UploadAttachmentHandler)
			r.Post("/matches/{matchID}/dispute", deps.Disputes.ReportDisputeHandler)

			// Только администраторы и организаторы
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(models.RoleAdmin, models.RoleOrganizer))

				r.Post("/tournaments/{tournamentID}/bracket", deps.Brackets.GenerateBracketHandler)
				r.Post("/matches/{matchID}/verify", deps.Matches.VerifyResultHandler)
				r.Post("/matches/{matchID}/dispute/resolve", deps.Disputes.ResolveDisputeHandler)
			})
		})
	})
}
