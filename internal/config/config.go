// Package config loads all supportops configuration from environment
// variables with sensible defaults. Settings are plain scalars consumed at
// call time; nothing here caches beyond process start.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the supportops backend.
type Config struct {
	Port    int
	Version string

	Database   DatabaseConfig
	Telemetry  TelemetryConfig
	Auth       AuthConfig
	Embedding  EmbeddingConfig
	Completion CompletionConfig
	Retrieval  RetrievalConfig
	Ingest     IngestConfig
	Policy     PolicyConfig
	Retention  RetentionConfig

	// DefaultOrgSlug identifies the org used when a request carries no org
	// and auth is disabled.
	DefaultOrgSlug string
}

type DatabaseConfig struct {
	// URL is the Postgres connection string. Empty selects the in-memory
	// store (local dev, tests).
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// APIKeys is a comma-separated allowlist; empty disables API key auth.
	APIKeys string
}

type EmbeddingConfig struct {
	// Provider selects the embedding driver: "openai", "ollama", or ""
	// (embedding disabled — vector retrieval falls through).
	Provider       string
	OpenAIAPIKey   string
	OpenAIModel    string
	OllamaEndpoint string
	OllamaModel    string
	// Version is stamped onto stored chunks for cache-busting when the
	// model changes.
	Version string
}

type CompletionConfig struct {
	// Provider selects the completion backend: "openai", "deepseek", or ""
	// (generation falls back to the templated answer).
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	MaxTokens     int
	RetryAttempts int
}

type RetrievalConfig struct {
	VectorEnabled bool
	// Dimensions must match the embedding model's output width.
	Dimensions int
	MatchCount int
	MinSimilarity float64
	MaxChunks     int
	MaxPerDoc     int
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// AutoIngest re-runs ingestion whenever a document is created or
	// updated through the API.
	AutoIngest bool
}

type PolicyConfig struct {
	ContextMessageLimit int
	ContextMaxChars     int
	ChunkContextChars   int
	ContextTotalChars   int
	ReplyMinSimilarity  float64
	AllowGlobalChunks   bool
	ClarifyPrompt       string
	ClarifyPromptMode   string
}

type RetentionConfig struct {
	// RunTTL prunes agent runs older than this. Zero disables the janitor.
	RunTTL time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:           envInt("SUPPORTOPS_PORT", 8080),
		Version:        envStr("SUPPORTOPS_VERSION", "0.4.0"),
		DefaultOrgSlug: envStr("DEFAULT_ORG_SLUG", "default"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "supportops-agent"),
		},
		Auth: AuthConfig{
			APIKeys: envStr("SUPPORTOPS_API_KEYS", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:       envStr("EMBEDDING_PROVIDER", ""),
			OpenAIAPIKey:   envStr("OPENAI_API_KEY", ""),
			OpenAIModel:    envStr("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OllamaEndpoint: envStr("OLLAMA_ENDPOINT", "http://localhost:11434"),
			OllamaModel:    envStr("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Version:        envStr("EMBEDDING_VERSION", ""),
		},
		Completion: CompletionConfig{
			Provider:      envStr("LLM_PROVIDER", ""),
			Model:         envStr("LLM_MODEL", ""),
			APIKey:        envStr("LLM_API_KEY", ""),
			BaseURL:       envStr("LLM_BASE_URL", ""),
			MaxTokens:     envInt("MAX_OUTPUT_TOKENS", 256),
			RetryAttempts: envInt("LLM_RETRY_ATTEMPTS", 2),
		},
		Retrieval: RetrievalConfig{
			VectorEnabled: envBool("VECTOR_SEARCH_ENABLED", false),
			Dimensions:    envInt("VECTOR_DIMENSIONS", 1536),
			MatchCount:    envInt("VECTOR_MATCH_COUNT", 3),
			MinSimilarity: envFloat("VECTOR_MIN_SIMILARITY", 0.2),
			MaxChunks:     envInt("RETRIEVAL_MAX_CHUNKS", 4),
			MaxPerDoc:     envInt("RETRIEVAL_MAX_PER_DOC", 2),
		},
		Ingest: IngestConfig{
			ChunkSize:    envInt("INGEST_CHUNK_SIZE", 120),
			ChunkOverlap: envInt("INGEST_CHUNK_OVERLAP", 20),
			AutoIngest:   envBool("AUTO_INGEST_ON_KB_WRITE", false),
		},
		Policy: PolicyConfig{
			ContextMessageLimit: envInt("CONTEXT_MESSAGE_LIMIT", 6),
			ContextMaxChars:     envInt("CONTEXT_MAX_CHARS", 1200),
			ChunkContextChars:   envInt("CHUNK_CONTEXT_MAX_CHARS", 1200),
			ContextTotalChars:   envInt("CONTEXT_TOTAL_MAX_CHARS", 6000),
			ReplyMinSimilarity:  envFloat("REPLY_MIN_SIMILARITY", 0.35),
			AllowGlobalChunks:   envBool("ALLOW_GLOBAL_CHUNKS", false),
			ClarifyPrompt:       envStr("CLARIFY_PROMPT", ""),
			ClarifyPromptMode:   envStr("CLARIFY_PROMPT_MODE", "default"),
		},
		Retention: RetentionConfig{
			RunTTL: envDuration("RUN_RETENTION", 0),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
