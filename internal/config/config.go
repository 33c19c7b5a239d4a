// Package config provides configuration for the ragline service.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Document store (Postgres + pgvector)
	DocumentDBURL    string
	DBPoolMaxConns   int
	DBPoolMinConns   int
	DBAcquireTimeout time.Duration

	// Session store (SQLite)
	SessionDBPath string

	// Embedding service
	EmbeddingURL      string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingDim      int
	EmbeddingTimeout  time.Duration
	EmbeddingMaxChars int

	// Completion service
	CompletionURL       string
	CompletionAPIKey    string
	CompletionModel     string
	CompletionTimeout   time.Duration
	CompletionMaxTokens int

	// Buffered-mode retry policy
	MaxRetries   int
	RetryBackoff time.Duration

	// StreamGrace bounds how long an abandoned stream may keep reading
	// upstream after its consumer disconnects.
	StreamGrace time.Duration

	// Retrieval tuning
	Retrieval Retrieval

	// SystemPrompt overrides the built-in system instruction when set.
	SystemPrompt string
}

// Retrieval holds hybrid-search and context-assembly tuning. The whole
// block can be overridden from a YAML file named by RETRIEVAL_CONFIG.
type Retrieval struct {
	// TopK is the per-branch candidate count for vector and keyword queries.
	TopK int `yaml:"top_k"`
	// TopN is the final ranked list size handed to the assembler.
	TopN           int     `yaml:"top_n"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	// ContextBudgetChars bounds the assembled context. The budget unit is
	// characters, not model tokens; see the assembler docs.
	ContextBudgetChars int `yaml:"context_budget_chars"`
	// HistoryWindow is the number of recent conversation turns considered.
	HistoryWindow int `yaml:"history_window"`
}

// Load loads configuration from environment variables. A .env file is
// loaded first if present; real deployments set the environment directly.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		DocumentDBURL:    getEnv("DOCUMENT_DB_URL", "postgres://localhost:5432/ragline"),
		DBPoolMaxConns:   getEnvInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMinConns:   getEnvInt("DB_POOL_MIN_CONNS", 1),
		DBAcquireTimeout: time.Duration(getEnvInt("DB_ACQUIRE_TIMEOUT_MS", 5000)) * time.Millisecond,

		SessionDBPath: getEnv("SESSION_DB_PATH", "ragline.db"),

		EmbeddingURL:      getEnv("EMBEDDING_URL", "https://api.openai.com/v1"),
		EmbeddingAPIKey:   getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      getEnvInt("EMBEDDING_DIM", 1536),
		EmbeddingTimeout:  time.Duration(getEnvInt("EMBEDDING_TIMEOUT_MS", 30000)) * time.Millisecond,
		EmbeddingMaxChars: getEnvInt("EMBEDDING_MAX_CHARS", 8000),

		CompletionURL:       getEnv("COMPLETION_URL", "https://api.openai.com/v1"),
		CompletionAPIKey:    getEnv("COMPLETION_API_KEY", ""),
		CompletionModel:     getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout:   time.Duration(getEnvInt("COMPLETION_TIMEOUT_MS", 120000)) * time.Millisecond,
		CompletionMaxTokens: getEnvInt("COMPLETION_MAX_TOKENS", 1000),

		MaxRetries:   getEnvInt("MAX_RETRIES", 2),
		RetryBackoff: time.Duration(getEnvInt("RETRY_BACKOFF_MS", 250)) * time.Millisecond,
		StreamGrace:  time.Duration(getEnvInt("STREAM_GRACE_MS", 2000)) * time.Millisecond,

		Retrieval: Retrieval{
			TopK:               getEnvInt("SEARCH_TOP_K", 10),
			TopN:               getEnvInt("RANK_TOP_N", 5),
			SemanticWeight:     getEnvFloat("SEMANTIC_WEIGHT", 0.7),
			KeywordWeight:      getEnvFloat("KEYWORD_WEIGHT", 0.3),
			ContextBudgetChars: getEnvInt("CONTEXT_BUDGET_CHARS", 8000),
			HistoryWindow:      getEnvInt("HISTORY_WINDOW", 5),
		},

		SystemPrompt: getEnv("SYSTEM_PROMPT", ""),
	}

	if path := getEnv("RETRIEVAL_CONFIG", ""); path != "" {
		if err := cfg.loadRetrievalFile(path); err != nil {
			log.Printf("WARN: failed to load retrieval config %s: %v", path, err)
		}
	}

	return cfg
}

// loadRetrievalFile overrides the retrieval tuning from a YAML file.
func (c *Config) loadRetrievalFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, &c.Retrieval)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
