package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/textjianghu/jianghu-engine/internal/config"
	"github.com/textjianghu/jianghu-engine/internal/engine"
	"github.com/textjianghu/jianghu-engine/internal/handlers"
	"github.com/textjianghu/jianghu-engine/internal/logger"
	"github.com/textjianghu/jianghu-engine/internal/middleware"
	"github.com/textjianghu/jianghu-engine/internal/services"
	"github.com/textjianghu/jianghu-engine/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Jianghu Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"ai_provider", cfg.AIProvider,
		"model_name", cfg.ModelName)

	var llmService services.LLMService
	switch cfg.AIProvider {
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			log.Error("DeepSeek API key is required when using deepseek provider")
			os.Exit(1)
		}
		llmService = services.NewDeepSeekService(cfg.DeepSeekAPIKey, cfg.ModelName)
		log.Info("Using DeepSeek AI provider")
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Error("OpenAI API key is required when using openai provider")
			os.Exit(1)
		}
		llmService = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName)
		log.Info("Using OpenAI provider")
	default:
		log.Error("Invalid AI provider specified", "provider", cfg.AIProvider, "supported", []string{"deepseek", "openai"})
		os.Exit(1)
	}

	store := storage.NewRedisStore(cfg.RedisURL, log)

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storeCancel()
	if err := store.WaitForConnection(storeCtx); err != nil {
		log.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	log.Info("Store connection established successfully")

	processor := engine.NewProcessor(store, llmService, log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, log)
	mux.Handle("/v1/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(store, cfg.ModelName, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	turnHandler := handlers.NewTurnHandler(processor, log)
	mux.Handle("/v1/turn", turnHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout intentionally unset; turn requests block on the
		// upstream LLM and can run long.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if err := store.Close(); err != nil {
		log.Error("Error closing store connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
