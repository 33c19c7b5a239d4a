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

	"github.com/raglinehq/ragline/internal/adapter/completion"
	"github.com/raglinehq/ragline/internal/adapter/embedding"
	"github.com/raglinehq/ragline/internal/config"
	store "github.com/raglinehq/ragline/internal/repository"
	"github.com/raglinehq/ragline/internal/service"
	transport "github.com/raglinehq/ragline/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting ragline...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Document DB: %s", cfg.DocumentDBURL)
	log.Printf("Session DB: %s", cfg.SessionDBPath)
	log.Printf("Completion URL: %s", cfg.CompletionURL)

	// Initialize session store
	sessions, err := store.NewSQLiteStore(cfg.SessionDBPath)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}
	defer sessions.Close()

	// Initialize document store
	ctx := context.Background()
	documents, err := store.NewPostgresStore(ctx, store.PostgresConfig{
		DSN:            cfg.DocumentDBURL,
		MaxConns:       cfg.DBPoolMaxConns,
		MinConns:       cfg.DBPoolMinConns,
		AcquireTimeout: cfg.DBAcquireTimeout,
		EmbeddingDim:   cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	defer documents.Close()

	// Initialize adapters
	embedder := embedding.NewEmbeddingClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbeddingMaxChars, cfg.EmbeddingTimeout)
	llmClient := completion.NewCompletionClient(cfg.CompletionURL, cfg.CompletionAPIKey, cfg.CompletionTimeout)

	// Initialize service
	svc := service.New(sessions, documents, embedder, llmClient, cfg)

	// Create HTTP server
	server := transport.NewServer(svc)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down ragline...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Ragline stopped")
}
