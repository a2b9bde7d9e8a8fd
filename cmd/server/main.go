package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mindmirror-ai/mindmirror/internal/api"
	"github.com/mindmirror-ai/mindmirror/internal/auth"
	"github.com/mindmirror-ai/mindmirror/internal/chat"
	"github.com/mindmirror-ai/mindmirror/internal/db"
	"github.com/mindmirror-ai/mindmirror/internal/llm"
	"github.com/mindmirror-ai/mindmirror/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalf("postgres: failed to connect: %v", err)
	}
	defer postgres.Close()

	if err := postgres.Ping(ctx); err != nil {
		sugar.Fatalf("postgres: ping failed: %v", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		sugar.Fatalf("postgres: ensure schema: %v", err)
	}

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		sugar.Fatalf("mongo: failed to connect: %v", err)
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			sugar.Warnf("mongo: close error: %v", err)
		}
	}()

	if err := mongoStore.EnsureCollections(ctx); err != nil {
		sugar.Fatalf("mongo: ensure collections: %v", err)
	}

	var analysisCache *db.AnalysisCache
	if cfg.Redis.Enabled() {
		redisClient, err := db.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			sugar.Fatalf("redis: failed to connect: %v", err)
		}
		defer redisClient.Close()
		analysisCache = db.NewAnalysisCache(redisClient, cfg.Redis)
	} else {
		sugar.Infof("redis: no REDIS_ADDR configured, analysis cache disabled")
	}

	userStore := db.NewUserStore(postgres.Pool)
	conversationStore := db.NewConversationStore(postgres.Pool)

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour, userStore)
	if err != nil {
		sugar.Fatalf("failed to initialise auth service: %v", err)
	}

	completer := llm.NewClient(cfg.OpenAI, sugar)
	exchangeService := chat.NewExchangeService(conversationStore, completer, sugar)

	var cache chat.AnalysisCache
	if analysisCache != nil {
		cache = analysisCache
	}
	analysisService := chat.NewAnalysisService(conversationStore, mongoStore, completer, cache, sugar)

	handler := api.NewHandler(authService, conversationStore, exchangeService, analysisService, mongoStore, sugar)
	router := setupRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		// Must outlive the model client's 60s ceiling or slow completions
		// get cut off mid-response.
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Infof("server stopped cleanly")
}

func setupRouter(handler *api.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router)

	return router
}
