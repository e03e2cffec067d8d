package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dossier-systems/dossier-ingest/internal/chunker"
	"github.com/dossier-systems/dossier-ingest/internal/config"
	"github.com/dossier-systems/dossier-ingest/internal/dispatch"
	"github.com/dossier-systems/dossier-ingest/internal/embedder"
	"github.com/dossier-systems/dossier-ingest/internal/frappe"
	"github.com/dossier-systems/dossier-ingest/internal/handlers"
	"github.com/dossier-systems/dossier-ingest/internal/ingestion"
	"github.com/dossier-systems/dossier-ingest/internal/queue"
	"github.com/dossier-systems/dossier-ingest/internal/server"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/internal/vectorstore"
	"github.com/dossier-systems/dossier-ingest/internal/webhook"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"

	natsclient "github.com/dossier-systems/dossier-ingest/pkg/messaging/nats"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("ingest"))
	logging.SetDefault(logger)

	slog.Info("Starting Dossier ingest service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}
	slog.Info("Service URLs configured",
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.String("nats_url", cfg.NATS.URL),
		slog.String("frappe_url", cfg.Frappe.URL),
		slog.String("qdrant_url", cfg.Qdrant.URL),
	)

	// Initialize webhook signature validator
	validator, err := webhook.NewValidator(cfg.Webhook.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize webhook validator: %v", err)
	}

	// Initialize Redis status store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	statusStore := status.NewStore(redisClient, cfg.Redis.TTL)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := statusStore.Ping(pingCtx); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	pingCancel()

	// Initialize NATS messaging client
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Name = cfg.NATS.Name
	natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
	natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
	natsCfg.Timeout = cfg.NATS.ConnectTimeout

	natsClient, err := natsclient.NewClient(natsCfg)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	// Initialize queue publisher
	publisher := queue.NewPublisher(natsClient, statusStore, queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
	}, logger)

	// Initialize ingestion collaborators
	frappeClient := frappe.NewClient(cfg.Frappe.URL, cfg.Frappe.APIKey, cfg.Frappe.APISecret, cfg.Frappe.Timeout)

	embedderClient, err := embedder.New(embedder.Config{
		BaseURL: cfg.Embedding.URL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}

	qdrantClient := vectorstore.NewClient(vectorstore.Config{
		URL:        cfg.Qdrant.URL,
		Collection: cfg.Qdrant.Collection,
		VectorSize: cfg.Qdrant.VectorSize,
		Timeout:    cfg.Qdrant.Timeout,
	})

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := qdrantClient.EnsureCollection(initCtx); err != nil {
		log.Printf("WARNING: Failed to ensure Qdrant collection: %v", err)
		log.Println("Documents may fail to index until Qdrant is reachable")
	}
	initCancel()

	// Initialize ingestion orchestrator
	orchestrator := ingestion.NewOrchestrator(
		frappeClient,
		chunker.NewRecursiveChunker(),
		embedderClient,
		qdrantClient,
		cfg.Ingestion,
		logger,
	)

	// Start the dispatcher consuming queued messages
	dispatcher := dispatch.NewDispatcher(natsClient, statusStore, dispatch.Config{
		MaxRetries: cfg.Queue.MaxRetries,
	}, logger)
	if err := dispatcher.Subscribe(orchestrator.Process); err != nil {
		log.Fatalf("Failed to subscribe dispatcher: %v", err)
	}
	defer dispatcher.Unsubscribe()

	// Initialize HTTP handlers
	handler := handlers.NewEventsHandler(validator, publisher, statusStore, handlers.Config{
		SignatureHeader: cfg.Webhook.SignatureHeader,
		MaxBodySize:     cfg.Webhook.MaxBodySize,
	}, logger).WithDownstream(frappeClient, qdrantClient).WithSourceLister(frappeClient)
	router := server.NewRouter(handler, logger)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Dossier ingest service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Let in-flight deliveries finish before the process exits
	if err := natsClient.Drain(); err != nil {
		log.Printf("WARNING: NATS drain failed: %v", err)
	}

	log.Println("Server stopped")
}
