package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/internal/config"
	"github.com/jwebster45206/scene-engine/internal/engine"
	"github.com/jwebster45206/scene-engine/internal/guardrail"
	"github.com/jwebster45206/scene-engine/internal/handlers"
	"github.com/jwebster45206/scene-engine/internal/logger"
	"github.com/jwebster45206/scene-engine/internal/metrics"
	"github.com/jwebster45206/scene-engine/internal/middleware"
	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/internal/storage"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/skill"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Scene Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"store_backend", cfg.StoreBackend)

	skills, err := skill.Load(cfg.SkillsDir, log)
	if err != nil {
		log.Error("Failed to load skills", "dir", cfg.SkillsDir, "error", err)
		os.Exit(1)
	}
	catalog, err := scenario.LoadAll(cfg.ContentDir, skills, log)
	if err != nil {
		log.Error("Failed to load scenario catalog", "dir", cfg.ContentDir, "error", err)
		os.Exit(1)
	}

	llmService, err := services.NewLLMService(llmConfig(cfg), log)
	if err != nil {
		log.Error("Failed to create LLM service", "error", err)
		os.Exit(1)
	}

	// Initialize the model on startup
	initCtx, initCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer initCancel()
	if err := llmService.InitModel(initCtx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	var (
		backend     storage.Backend
		locker      storage.Locker
		redisClient *redis.Client
		broadcaster *events.Broadcaster
	)
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		sqlite, err := storage.OpenSQLite(cfg.SQLitePath, log)
		if err != nil {
			log.Error("Failed to open SQLite store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		backend = sqlite
		locker = storage.NewMemoryLocker()
		log.Info("Session events disabled without Redis")
	default:
		redisClient, err = services.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error("Invalid Redis configuration", "error", err)
			os.Exit(1)
		}
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = services.WaitForRedis(waitCtx, redisClient, log, 30, 2*time.Second)
		waitCancel()
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		backend = storage.NewRedisBackend(redisClient, cfg.SessionTTL, log)
		locker = storage.NewRedisLocker(redisClient, cfg.LockTTL, log)
		broadcaster = events.NewBroadcaster(redisClient, log)
	}

	store, err := storage.NewStore(backend, cfg.CacheSize, log)
	if err != nil {
		log.Error("Failed to create session store", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	deps := engine.Deps{
		Catalog: catalog,
		Skills:  skills,
		Store:   store,
		Locker:  locker,
		LLM:     llmService,
		Metrics: m,
	}
	if broadcaster != nil {
		deps.Events = broadcaster
	}
	eng, err := engine.New(deps, engine.Config{
		StageTimeout: cfg.StageTimeout,
		MaxRetries:   cfg.UpstreamMaxRetries,
		Backoff:      cfg.UpstreamBackoff,
		Guard: guardrail.Config{
			MaxInputChars: cfg.MaxInputChars,
			HPDeltaMin:    cfg.HPDeltaMin,
		},
	}, log)
	if err != nil {
		log.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(map[string]handlers.Pinger{"store": store}, log))
	mux.Handle("/metrics", promhttp.Handler())

	sessionHandler := handlers.NewSessionHandler(eng, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	moduleHandler := handlers.NewModuleHandler(eng, log)
	mux.Handle("/v1/modules", moduleHandler)
	mux.Handle("/v1/modules/", moduleHandler)

	if broadcaster != nil {
		mux.Handle("/v1/events/sessions/", handlers.NewEventsHandler(broadcaster, log))
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Chain(mux, middleware.RequestID(), middleware.Logger(log), middleware.Recover(log)),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: turns can take several model calls and SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing session store", "error", err)
	}

	log.Info("Server exited")
}

func llmConfig(cfg *config.Config) services.LLMConfig {
	c := services.LLMConfig{
		Provider:          cfg.LLMProvider,
		ModelName:         cfg.ModelName,
		BackendModelName:  cfg.BackendModelName,
		RequestsPerSecond: cfg.LLMRateLimit,
	}
	switch cfg.LLMProvider {
	case services.ProviderAnthropic:
		c.APIKey = cfg.AnthropicAPIKey
	case services.ProviderOpenAI:
		c.APIKey = cfg.OpenAIAPIKey
		c.BaseURL = cfg.OpenAIBaseURL
	}
	return c
}
