package main

import (
	"context"
	"log"

	"therapy-room-backend/internal/ai"
	"therapy-room-backend/internal/config"
	"therapy-room-backend/internal/logger"
	"therapy-room-backend/internal/queue"
	"therapy-room-backend/internal/vectorstore"
	"therapy-room-backend/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Ingestion pipeline
	embedder := ai.NewEmbeddingClient(cfg)
	store := vectorstore.NewQdrantStore(cfg)
	chunker := services.NewChunkerService()
	ingestion := services.NewIngestionService(chunker, embedder, store)
	parser := services.NewDocumentParserClient(cfg)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(parser, ingestion)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.HandleIngestDocument)

	logger.Info("Starting ingestion worker", "redis", redisOpt.Addr, "concurrency", 5)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
