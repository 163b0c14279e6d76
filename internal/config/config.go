// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Qdrant settings. When QdrantURL is empty the service runs on the
	// in-memory store — development only, nothing survives a restart.
	QdrantURL    string
	QdrantAPIKey string

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Admin bootstrap.
	AdminAPIKey string // API key for the initial admin agent.

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.
	OllamaURL           string
	OllamaModel         string

	// Insight quality gate thresholds.
	DuplicateSimilarity float64 // Cosine similarity treated as a duplicate.
	ConfidenceFloor     float64 // Minimum derived confidence for acceptance.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	StatusCacheTTL      time.Duration
	RateLimitPerMinute  int // General per-agent rate; 0 disables limiting entirely.
	SeedRatePerMinute   int
	InsightRatePerMin   int
	AuthRatePerMinute   int // By client IP, applied to token issuance.
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("CORTEX_PORT", 8080),
		ReadTimeout:         envDuration("CORTEX_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("CORTEX_WRITE_TIMEOUT", 30*time.Second),
		QdrantURL:           envStr("CORTEX_QDRANT_URL", ""),
		QdrantAPIKey:        envStr("CORTEX_QDRANT_API_KEY", ""),
		JWTPrivateKeyPath:   envStr("CORTEX_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("CORTEX_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("CORTEX_JWT_EXPIRATION", 24*time.Hour),
		AdminAPIKey:         envStr("CORTEX_ADMIN_API_KEY", ""),
		EmbeddingProvider:   envStr("CORTEX_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("CORTEX_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("CORTEX_EMBEDDING_DIMENSIONS", 1024),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		DuplicateSimilarity: envFloat("CORTEX_DUPLICATE_SIMILARITY", 0.85),
		ConfidenceFloor:     envFloat("CORTEX_CONFIDENCE_FLOOR", 0.4),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("CORTEX_OTEL_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "cortex"),
		LogLevel:            envStr("CORTEX_LOG_LEVEL", "info"),
		StatusCacheTTL:      envDuration("CORTEX_STATUS_CACHE_TTL", 30*time.Second),
		RateLimitPerMinute:  envInt("CORTEX_RATE_LIMIT_PER_MINUTE", 120),
		SeedRatePerMinute:   envInt("CORTEX_SEED_RATE_PER_MINUTE", 60),
		InsightRatePerMin:   envInt("CORTEX_INSIGHT_RATE_PER_MINUTE", 300),
		AuthRatePerMinute:   envInt("CORTEX_AUTH_RATE_PER_MINUTE", 20),
		MaxRequestBodyBytes: int64(envInt("CORTEX_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: CORTEX_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.DuplicateSimilarity <= 0 || c.DuplicateSimilarity > 1 {
		return fmt.Errorf("config: CORTEX_DUPLICATE_SIMILARITY must be in (0, 1]")
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("config: CORTEX_CONFIDENCE_FLOOR must be in [0, 1]")
	}
	if c.StatusCacheTTL <= 0 {
		return fmt.Errorf("config: CORTEX_STATUS_CACHE_TTL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: CORTEX_MAX_REQUEST_BODY_BYTES must be positive")
	}
	switch c.EmbeddingProvider {
	case "auto", "openai", "ollama", "noop":
	default:
		return fmt.Errorf("config: CORTEX_EMBEDDING_PROVIDER must be auto, openai, ollama, or noop")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
