package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	MongoURI string
	DBName   string

	// Redis Configuration (rate limiting + task queue)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Upstage API (document digitization + embeddings)
	UpstageAPIKey   string
	UpstageBaseURL  string
	EmbeddingsModel string

	// Qdrant vector index
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	VectorDimensions int

	// Chat LLM
	ChatProvider string // "redpill" (default, OpenAI-compatible), "google"
	ChatBaseURL  string
	ChatAPIKey   string
	ChatModel    string
	GeminiAPIKey string
	GeminiModel  string

	// Image generation
	OpenAIAPIKey   string
	ImageModel     string
	FileStorageDir string

	// Upload handling
	MaxFileSize         int64
	SyncProcessingLimit int64
	MaxPDFPages         int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Chat history retention (days), pruned by the cron job
	ChatRetentionDays int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/therapy_room"),
		DBName:   getEnv("DB_NAME", "therapy_room"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		UpstageAPIKey:   getEnv("UPSTAGE_API_KEY", ""),
		UpstageBaseURL:  getEnv("UPSTAGE_BASE_URL", "https://api.upstage.ai/v1"),
		EmbeddingsModel: getEnv("EMBEDDINGS_MODEL", "embedding-passage"),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "therapy_chunks"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 4096),

		ChatProvider: getEnv("CHAT_PROVIDER", "redpill"),
		ChatBaseURL:  getEnv("CHAT_BASE_URL", "https://api.redpill.ai/v1"),
		ChatAPIKey:   getEnv("REDPILL_API_KEY", ""),
		ChatModel:    getEnv("CHAT_MODEL", "phala/llama-3.3-70b-instruct"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		ImageModel:     getEnv("IMAGE_MODEL", "dall-e-2"),
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./data"),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 52428800),          // 50MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 10485760), // 10MB, larger uploads go to the worker
		MaxPDFPages:         getEnvInt("MAX_PDF_PAGES", 200),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ChatRetentionDays: getEnvInt("CHAT_RETENTION_DAYS", 90),
	}

	// Validate required fields
	if cfg.UpstageAPIKey == "" {
		return nil, fmt.Errorf("UPSTAGE_API_KEY is required - set it in .env file")
	}

	if cfg.ChatProvider == "google" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when CHAT_PROVIDER=google")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
