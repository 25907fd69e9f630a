package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/auth"
	"github.com/wrenfall/terraclaim/internal/config"
	"github.com/wrenfall/terraclaim/internal/geo"
	"github.com/wrenfall/terraclaim/internal/handler"
	"github.com/wrenfall/terraclaim/internal/logger"
	"github.com/wrenfall/terraclaim/internal/middleware"
	"github.com/wrenfall/terraclaim/internal/repository/postgres"
	redisrepo "github.com/wrenfall/terraclaim/internal/repository/redis"
	"github.com/wrenfall/terraclaim/internal/service"
)

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Config load failed")
	}
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Battle timer expiry events drive the sweeper.
	if err := redisClient.EnableExpiryNotifications(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry may not work)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	territoryRepo := postgres.NewTerritoryRepo(db)
	battleRepo := postgres.NewBattleRepo(db)
	participationRepo := postgres.NewParticipationRepo(db)
	blueprintRepo := postgres.NewBlueprintRepo(db)
	warRepo := postgres.NewAllianceWarRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		os.Getenv("GOOGLE_REDIRECT_URL"),
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Density classification for claim radii
	classifier := geo.NewClassifier(cfg.DensityServiceURL, redisClient)

	// Services
	territorySvc := service.NewTerritoryService(territoryRepo, blueprintRepo, classifier, wsHub)
	warSvc := service.NewAllianceWarService(warRepo, userRepo, wsHub)
	battleSvc := service.NewBattleService(battleRepo, territoryRepo, userRepo, participationRepo, redisClient, territorySvc, warSvc, wsHub)
	reclaimSvc := service.NewReclaimService(territorySvc, blueprintRepo, wsHub)

	// Battle sweeper (auto-execute at deadline)
	sweeper := service.NewBattleSweeper(redisClient.Underlying(), battleSvc, battleRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo, blueprintRepo, territoryRepo)
	territoryHandler := handler.NewTerritoryHandler(territorySvc, reclaimSvc)
	battleHandler := handler.NewBattleHandler(battleSvc)
	allianceHandler := handler.NewAllianceHandler(warSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr, userRepo)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("GET /users/me/territories", userHandler.ListMyTerritories)
	api.HandleFunc("GET /users/me/blueprints", userHandler.ListMyBlueprints)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("POST /territories/claim", territoryHandler.Claim)
	api.HandleFunc("POST /territories/relocate", territoryHandler.Relocate)
	api.HandleFunc("GET /territories/{id}", territoryHandler.Get)
	api.HandleFunc("GET /territories/{id}/production", territoryHandler.Production)
	api.HandleFunc("POST /territories/{id}/reclaim", territoryHandler.Reclaim)
	api.HandleFunc("POST /battles", battleHandler.Schedule)
	api.HandleFunc("GET /battles/{id}", battleHandler.Get)
	api.HandleFunc("POST /battles/{id}/formation", battleHandler.Prepare)
	api.HandleFunc("GET /battles/{id}/participation", battleHandler.Participation)
	api.HandleFunc("POST /battles/{id}/cancel", battleHandler.Cancel)
	api.HandleFunc("POST /wars", allianceHandler.DeclareWar)
	api.HandleFunc("GET /wars/{id}", allianceHandler.GetWar)

	mux.Handle("/api/", http.StripPrefix("/api", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS(cfg.AllowedOrigins), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Execute overdue battles and restore timers after a restart
	if err := sweeper.RecoverPendingBattles(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover pending battles (non-fatal)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
