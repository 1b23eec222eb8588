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

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ragline-assistant/internal/cache"
	"ragline-assistant/internal/config"
	"ragline-assistant/internal/handlers"
	"ragline-assistant/internal/httpserver"
	"ragline-assistant/internal/llm"
	"ragline-assistant/internal/metrics"
	"ragline-assistant/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("assistant exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_type", cfg.CacheType),
		zap.Int("cache_max_entries", cfg.CacheMaxEntries),
		zap.String("llm_base_url", cfg.LLMBaseURL),
		zap.String("default_model", cfg.DefaultModel),
	)

	// ----- Conversation cache -----
	// Constructed exactly once here and handed to the request handler;
	// remote backends fail fast when their server is unreachable.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStartup()

	conversationCache, err := cache.NewConversationCache(startupCtx, cache.Config{
		Type:       cfg.CacheType,
		MaxEntries: cfg.CacheMaxEntries,
		Redis: cache.RedisConfig{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPassword,
			DB:              cfg.RedisDB,
			MaxMemory:       cfg.RedisMaxMemory,
			MaxMemoryPolicy: cfg.RedisMaxMemoryPolicy,
		},
		Postgres: cache.PostgresConfig{
			URL:              cfg.PostgresURL,
			MaxConversations: cfg.PostgresMaxEntries,
		},
	})
	if err != nil {
		logger.Error("cache construction failed", zap.Error(err))
		return err
	}
	observedCache := cache.NewLoggingCache(conversationCache)

	// ----- LLM client -----
	if cfg.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	llmClient, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Handlers -----
	queryHandler := handlers.NewQueryHandler(observedCache, llmClient, cfg.DefaultModel)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, queryHandler, observedCache)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting assistant",
		zap.String("addr", srv.Addr),
		zap.String("cache_type", cfg.CacheType),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
