package api

import (
	"net/http"
	"time"

	"moltbattle/internal/api/handler"
	"moltbattle/internal/api/middleware"
	"moltbattle/internal/app/service"
	"moltbattle/internal/common/security"
	"moltbattle/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	combatService *service.CombatService,
	questionService *service.QuestionService,
	leaderboardService *service.LeaderboardService,
	questionRepo repository.QuestionRepository,
	userRepo repository.UserRepository,
	keyRepo repository.CombatKeyRepository,
	adminToken string,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	authenticated := middleware.Authenticator(userRepo)

	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Route("/auth", func(auth chi.Router) {
			authHandler.RegisterRoutes(auth)
			auth.Group(func(protected chi.Router) {
				protected.Use(authenticated)
				authHandler.RegisterProtectedRoutes(protected)
			})
		})

		combatHandler := handler.NewCombatHandler(combatService)
		v1.Route("/combats", func(combats chi.Router) {
			combatHandler.RegisterPublicRoutes(combats)
			combats.Group(func(protected chi.Router) {
				protected.Use(authenticated)
				combatHandler.RegisterRoutes(protected)
			})
		})

		// Agent surface: combat-key bearer auth, no session required.
		agentHandler := handler.NewAgentHandler(combatService)
		v1.Route("/agent", func(agent chi.Router) {
			agent.Use(middleware.CombatKeyAuthenticator(keyRepo))
			agentHandler.RegisterRoutes(agent)
		})

		leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
		v1.Route("/leaderboard", leaderboardHandler.RegisterRoutes)

		adminHandler := handler.NewAdminHandler(combatService, questionService, questionRepo)
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.AdminOnly(adminToken))
			adminHandler.RegisterRoutes(admin)
		})
	})

	return r
}
