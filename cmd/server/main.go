package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moltbattle/internal/api"
	"moltbattle/internal/app/keyvault"
	"moltbattle/internal/app/ratelimit"
	"moltbattle/internal/app/service"
	"moltbattle/internal/common/security"
	"moltbattle/internal/domain/repository"
	"moltbattle/internal/platform/cache"
	"moltbattle/internal/platform/config"
	"moltbattle/internal/platform/database"
	"moltbattle/internal/platform/hfdata"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()
	fmt.Println("Database connected.")

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()
	fmt.Println("Redis connected.")

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	combatRepo := repository.NewPgCombatRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	keyRepo := repository.NewPgCombatKeyRepository(database.DB)
	questionRepo := repository.NewPgQuestionRepository(database.DB)
	txRunner := repository.NewSQLTxRunner(database.DB)

	// 6. Initialize Services
	cfg := config.AppConfig
	authLimiter := ratelimit.NewRedisLimiter(
		cache.RDB, "auth",
		cfg.AuthRateLimitMaxAttempts,
		time.Duration(cfg.AuthRateLimitWindowMinutes)*time.Minute,
	)
	vault := keyvault.NewRedisVault(cache.RDB, time.Duration(cfg.CombatKeyTTLSeconds)*time.Second)
	hfClient := hfdata.NewClient(cfg.HFAPIBase, time.Duration(cfg.HFTimeoutSeconds)*time.Second)

	authService := service.NewAuthService(userRepo, authLimiter)
	questionService := service.NewQuestionService(hfClient, questionRepo, cfg.AnswerSalt)
	outcomeService := service.NewOutcomeService(submissionRepo, questionRepo, userRepo, cfg.AnswerSalt)
	combatService := service.NewCombatService(
		txRunner, combatRepo, submissionRepo, keyRepo, userRepo,
		questionService, outcomeService, vault,
		time.Duration(cfg.TimeLimitSeconds)*time.Second,
		time.Duration(cfg.JoinWindowHours)*time.Hour,
		cfg.BaseURL, cfg.AnswerSalt,
	)
	leaderboardService := service.NewLeaderboardService(userRepo)

	// 7. Seed the local fallback question pool (no-op if already populated)
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if inserted, err := questionService.SeedFallbackPool(seedCtx); err != nil {
		log.Printf("WARN: could not seed fallback question pool: %v", err)
	} else if inserted > 0 {
		log.Printf("INFO: seeded %d fallback questions", inserted)
	}
	seedCancel()

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(
		authService, combatService, questionService, leaderboardService,
		questionRepo, userRepo, keyRepo, cfg.AdminToken,
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server stopped gracefully.")
}
