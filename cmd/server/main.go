package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/auth"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/config"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/metrics"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/quiz"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/stats"
	"github.com/ayhamrabea/arabic-platform-sub000/pkg/cache"
	"github.com/ayhamrabea/arabic-platform-sub000/pkg/database"
	"github.com/ayhamrabea/arabic-platform-sub000/pkg/events"
	"github.com/ayhamrabea/arabic-platform-sub000/pkg/websocket"
)

func main() {
	cfg := config.Load()

	store := openStore(cfg)

	if cfg.SeedFile != "" {
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			log.Fatalf("Failed to open seed file: %v", err)
		}
		if _, err := quiz.LoadSeed(context.Background(), store, f); err != nil {
			log.Fatalf("Failed to load seed file: %v", err)
		}
		f.Close()
	}

	// Initialize Redis cache
	var (
		bankCache  quiz.BankCache
		statsCache stats.Cache
	)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.StatsCacheTTL)
		defer redisCache.Close()
		if err := redisCache.Ping(context.Background()); err != nil {
			log.Printf("Warning: redis at %s unreachable, reads will fall back to the store: %v", cfg.RedisAddr, err)
		}
		bankCache, statsCache = redisCache, redisCache
	} else {
		log.Printf("Warning: REDIS_ADDR is empty, caching is disabled")
	}

	publisher, err := events.NewPublisher(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	defer publisher.Close()

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Initialize services
	statsService := stats.NewService(store, statsCache)
	quizService := quiz.NewService(store, quiz.NewQuestionBank(store, bankCache),
		quiz.WithStats(statsService),
		quiz.WithEvents(publisher),
		quiz.WithNotifier(wsHub),
	)
	quizHandler := quiz.NewHandler(quizService, statsService)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweep(sweepCtx, quizService, cfg.SweepInterval)

	// Setup router
	router := mux.NewRouter()
	router.Use(metrics.Instrument)
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()
	var wsHandler http.Handler = http.HandlerFunc(wsHub.HandleWebSocket)
	if cfg.JWTSecret != "" {
		jwt := auth.JWTMiddleware(cfg.JWTSecret)
		apiRouter.Use(jwt)
		wsHandler = jwt(wsHandler)
	} else {
		log.Printf("Warning: JWT_SECRET is empty, API authentication is disabled")
	}
	quizHandler.RegisterRoutes(apiRouter)
	router.Handle("/ws", wsHandler)

	// CORS middleware configuration
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      corsMiddleware.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown setup
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server shutdown gracefully")
}

func openStore(cfg *config.Config) quiz.Store {
	switch cfg.StoreDriver {
	case "memory":
		log.Printf("Using in-memory store; data is lost on restart")
		return quiz.NewMemoryStore()
	case "postgres":
		db, err := database.NewPostgresDB(&cfg.DB)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.Migrate(db, quiz.Models()...); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		return quiz.NewRepository(db)
	}
	log.Fatalf("Unknown STORE_DRIVER %q", cfg.StoreDriver)
	return nil
}

// sweep completes overdue attempts until ctx is cancelled.
func sweep(ctx context.Context, svc *quiz.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpireOverdue(ctx); err != nil {
				log.Printf("Error expiring overdue attempts: %v", err)
			}
		}
	}
}
