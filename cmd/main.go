package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"gorandom/backend/internal/api/handler"
	"gorandom/backend/internal/chathub"
	"gorandom/backend/internal/config"
	"gorandom/backend/internal/models"
	"gorandom/backend/internal/presence"
	"gorandom/backend/internal/realtime"
	"gorandom/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.SessionRecord{},
		&models.ChatHistory{},
		&models.Report{},
		&models.Block{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting GoRandom Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set!")
	}

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db)

	store := realtime.NewRedisStore(rdb)
	registry := presence.NewRegistry(store)
	matcher := chathub.NewMatcherService(store, s)
	lifecycle := chathub.NewLifecycleService(store, s, matcher, registry)
	projector := chathub.NewProjector(store)
	hub := chathub.NewManagerService(lifecycle, registry, projector)

	go hub.Run(context.Background())

	r := gin.Default()
	h := handler.NewHandler(hub, s, cfg)

	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/history/:sessionID", h.GetChatHistory)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	server := &http.Server{
		Addr:           cfg.APIAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
