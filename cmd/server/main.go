package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/chat"
	"github.com/decimalcoins/broom-chat/internal/config"
	"github.com/decimalcoins/broom-chat/internal/database"
	"github.com/decimalcoins/broom-chat/internal/handlers"
	"github.com/decimalcoins/broom-chat/internal/middleware"
	"github.com/decimalcoins/broom-chat/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	slog.Info("starting broom chat server", "env", cfg.Env, "pi_sandbox", cfg.PiSandbox)

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	if err := database.RunMigrations(ctx, db); err != nil {
		return err
	}
	slog.Info("database migrations complete")

	// Initialize Redis
	redisClient, err := realtime.InitRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	slog.Info("connected to Redis")

	store := database.NewStore(db)
	feed := realtime.NewFeed(redisClient)
	messages := realtime.NewBroadcastingStore(store, feed)

	hub := chat.NewHub(chat.Services{
		Messages:       messages,
		Rooms:          store,
		Accounts:       store,
		Users:          store,
		Feed:           chat.FeedSubscriber{Feed: feed},
		Presence:       realtime.NewPresence(redisClient),
		PaymentTimeout: cfg.PaymentTimeout,
		RateLimit:      rate.Limit(cfg.RateLimitPerSec),
		RateBurst:      cfg.RateLimitBurst,
	})

	// Set up router
	router := mux.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.Logging)
	router.Use(middleware.Metrics)

	// Public routes
	router.HandleFunc("/health", handlers.Health(map[string]handlers.Pinger{
		"postgres": store.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// WebSocket
	router.HandleFunc("/ws", chat.ServeWS(hub, cfg.JWTSecret)).Methods("GET")

	// Protected routes
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.HandleFunc("/me", handlers.Me(store)).Methods("GET")
	protected.HandleFunc("/wallet", handlers.Wallet(store)).Methods("GET")
	protected.HandleFunc("/gifs", handlers.ListGifs).Methods("GET")
	protected.HandleFunc("/rooms", handlers.ListRooms(store)).Methods("GET")
	protected.HandleFunc("/rooms", handlers.CreateRoom(store)).Methods("POST")
	protected.HandleFunc("/rooms/{id}", handlers.GetRoom(store)).Methods("GET")
	protected.HandleFunc("/rooms/{id}/messages", handlers.GetMessages(store, store)).Methods("GET")
	protected.HandleFunc("/rooms/{id}/messages", handlers.PostMessage(store, messages)).Methods("POST")

	// CORS wraps the router so preflights never reach route matching.
	handler := middleware.CORS(cfg.CORSOrigin)(router)

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
