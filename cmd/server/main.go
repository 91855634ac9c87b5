package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"relaychat/internal/chat"
	"relaychat/internal/config"
	"relaychat/internal/db"
	"relaychat/internal/middleware"
	"relaychat/internal/room"
	"relaychat/internal/search"
	"relaychat/internal/user"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Platform layer
	database, err := db.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, room cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("connected to Redis")
		}
	}

	var indexer search.Indexer = search.Noop{}
	var searchClient *search.Client
	if cfg.MeiliHost != "" {
		searchClient = search.NewClient(cfg.MeiliHost, cfg.MeiliAPIKey, logger)
		indexer = searchClient
		logger.Info("search indexing enabled", zap.String("host", cfg.MeiliHost))
	}

	// User feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService)

	// Room feature
	roomRepo := room.NewRepository(database.Conn, redisClient, cfg.RoomCacheTTL, logger)
	roomPolicy := room.NewPolicy(roomRepo)
	roomService := room.NewService(roomRepo, roomPolicy, userService, logger)
	roomHandler := room.NewHandler(roomService)

	// Chat feature
	registry := chat.NewRegistry(logger)
	messageRepo := chat.NewRepository(database.Conn)
	router := chat.NewRouter(registry, roomRepo, roomPolicy, messageRepo, indexer, logger)
	chatHandler := chat.NewHandler(registry, router, userService, roomRepo, roomPolicy, messageRepo, cfg.ClientTimeout, logger)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// The websocket route verifies its own credential before the upgrade.
	r.Get("/ws", chatHandler.ServeWS)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Post("/api/rooms", roomHandler.Create)
		r.Get("/api/rooms", roomHandler.List)
		r.Post("/api/rooms/{room}/invite", roomHandler.Invite)
		r.Get("/api/rooms/{room}/messages", chatHandler.History)
		r.Get("/api/online", chatHandler.Online)
		if searchClient != nil {
			searchHandler := search.NewHandler(searchClient)
			r.Get("/api/search", searchHandler.Search)
		}
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown did not complete cleanly", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
