package config

import (
	"os"
	"strconv"
	"strings"

	"recall/internal/domain"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	OllamaURL       string
	EmbeddingModel  string
	EmbeddingDim    int
	EmbedderTimeout int

	GeneratorModel   string
	GeneratorTimeout int

	ChunkSize    int
	ChunkOverlap int

	SearchLimit   int
	RerankEnabled bool
	RerankURL     string
	RerankModel   string
	RerankTopK    int
	RerankTimeout int

	MaxContextChunks int
	MaxContextChars  int
	PerURLCap        int

	AnswerMaxTokens int
	CacheSize       int
	CacheTTLMinutes int

	IndexIntervalSeconds int
	WorkerMaxAttempts    int
	EmbedRateLimit       float64

	OTelEnabled bool
}

func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "9020"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "recall_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "recall_password"),
		DBName:     getEnv("DB_NAME", "recall_db"),

		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "all-minilm"),
		EmbeddingDim:    getEnvInt("EMBEDDING_DIM", 384),
		EmbedderTimeout: getEnvInt("EMBEDDER_TIMEOUT_SECONDS", 30),

		GeneratorModel:   getEnv("GENERATOR_MODEL", "llama3.2"),
		GeneratorTimeout: getEnvInt("GENERATOR_TIMEOUT_SECONDS", 120),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		SearchLimit:   getEnvInt("SEARCH_LIMIT", 10),
		RerankEnabled: getEnvBool("RERANK_ENABLED", false),
		RerankURL:     getEnv("RERANK_URL", "http://localhost:8001"),
		RerankModel:   getEnv("RERANK_MODEL", "bge-reranker-v2-m3"),
		RerankTopK:    getEnvInt("RERANK_TOP_K", 30),
		RerankTimeout: getEnvInt("RERANK_TIMEOUT_SECONDS", 15),

		MaxContextChunks: getEnvInt("MAX_CONTEXT_CHUNKS", 5),
		MaxContextChars:  getEnvInt("MAX_CONTEXT_CHARS", 6000),
		PerURLCap:        getEnvInt("CONTEXT_PER_URL_CAP", 2),

		AnswerMaxTokens: getEnvInt("ANSWER_MAX_TOKENS", 768),
		CacheSize:       getEnvInt("RESPONSE_CACHE_SIZE", 256),
		CacheTTLMinutes: getEnvInt("RESPONSE_CACHE_TTL_MINUTES", 60),

		IndexIntervalSeconds: getEnvInt("INDEX_INTERVAL_SECONDS", 60),
		WorkerMaxAttempts:    getEnvInt("WORKER_MAX_ATTEMPTS", 3),
		EmbedRateLimit:       getEnvFloat("EMBED_RATE_LIMIT", 4),

		OTelEnabled: getEnvBool("OTEL_ENABLED", false),
	}
}

// Validate checks the parameters that would corrupt the index or produce
// nonsense retrieval if wrong. Failures are fatal at startup.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return domain.NewConfigError("CHUNK_SIZE", "must be positive")
	}
	if c.ChunkOverlap < 0 {
		return domain.NewConfigError("CHUNK_OVERLAP", "must not be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return domain.NewConfigError("CHUNK_OVERLAP", "must be smaller than CHUNK_SIZE")
	}
	if c.EmbeddingDim <= 0 {
		return domain.NewConfigError("EMBEDDING_DIM", "must be positive")
	}
	if c.MaxContextChars <= 0 {
		return domain.NewConfigError("MAX_CONTEXT_CHARS", "must be positive")
	}
	if c.PerURLCap <= 0 {
		return domain.NewConfigError("CONTEXT_PER_URL_CAP", "must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
