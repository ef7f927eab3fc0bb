package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itgabriell/audicare-engine/internal/api"
	"github.com/itgabriell/audicare-engine/internal/cache"
	"github.com/itgabriell/audicare-engine/internal/config"
	"github.com/itgabriell/audicare-engine/internal/pkg/distlock"
	"github.com/itgabriell/audicare-engine/internal/repository/postgres"
	"github.com/itgabriell/audicare-engine/internal/service/automation"
	"github.com/itgabriell/audicare-engine/internal/trigger"
	"github.com/itgabriell/audicare-engine/internal/whatsapp"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("AudiCare automation engine starting (cmd/server)")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	// Redis is optional: without it the engine uses PG advisory locks and
	// skips the contact cache.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — falling back to PG advisory locks", cfg.Redis.URL, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s (distributed locking and contact cache enabled)", cfg.Redis.URL)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured (REDIS_URL not set) — using PG advisory locks, contact cache disabled")
	}

	contactCache := cache.NewContactCache(redisClient, cfg.Cache.TTL())

	autoRepo := postgres.NewAutomationRepo(db)
	execRepo := postgres.NewExecutionRepo(db)
	recipientRepo := postgres.NewRecipientRepo(db, contactCache)

	sender := whatsapp.NewClient(cfg.WhatsApp)

	lockTTL := cfg.Automation.LockTTL()
	svc := automation.NewService(autoRepo, execRepo, recipientRepo, sender,
		func(key string) distlock.DistLock {
			return distlock.NewLock(redisClient, db, key, lockTTL)
		})
	eval := trigger.NewEvaluator(execRepo, recipientRepo,
		cfg.Automation.ScheduledWindow(), cfg.Automation.EventWindow())

	router := api.SetupRoutes(api.Deps{
		Automations: api.NewAutomationAPI(svc),
		Cron:        api.NewCronAPI(svc, eval, cfg.Cron.SecretKey),
		DB:          db,
		Redis:       redisClient,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped")
}
