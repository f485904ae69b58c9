// Package config loads ingestion service configuration from the environment,
// following the same load-then-validate shape used across the service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// StorageConfig locates the on-disk artifact trees.
type StorageConfig struct {
	DataRoot          string
	VectorIndexRoot   string
	ReleasesRoot      string
	ObservabilityRoot string
}

func (s StorageConfig) CanonicalRoot() string { return filepath.Join(s.DataRoot, "canonical") }
func (s StorageConfig) ChunksRoot() string     { return filepath.Join(s.DataRoot, "chunks") }
func (s StorageConfig) EmbeddingsRoot() string { return filepath.Join(s.DataRoot, "embeddings") }
func (s StorageConfig) CapturesRoot() string   { return filepath.Join(s.DataRoot, "captures") }

// IntegrityConfig controls content signing.
type IntegrityConfig struct {
	SigningSecret string
}

// EmbeddingConfig controls the embedding providers used for ingestion and retrieval.
type EmbeddingConfig struct {
	OllamaModel               string
	OllamaURL                 string
	OllamaTimeoutS            int
	RetrievalProviderOverride string
	RetrievalDim              int
	RetrievalMaxChars         int
	IngestionMaxChars         int
}

// VectorStoreConfig selects the vector index adapter.
type VectorStoreConfig struct {
	Adapter string
}

// ServerConfig mirrors the HTTP listener configuration shape.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (s ServerConfig) Address() string { return fmt.Sprintf("%s:%s", s.Host, s.Port) }

// AuthConfig protects the mutating release/capture endpoints.
type AuthConfig struct {
	AdminSigningSecret string
	RequireAdmin       bool
}

// RedisConfig backs the retrieval cache and the release write lock.
type RedisConfig struct {
	Host                     string
	Port                     string
	Password                 string
	DB                       int
	EnableRetrievalCache     bool
	RetrievalCacheTTLSeconds int
	EnableReleaseLock        bool
	ReleaseLockTTLSeconds    int
}

func (r RedisConfig) Address() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// GraphEnrichConfig is the optional graph-metadata enrichment adapter.
type GraphEnrichConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DocConverterConfig is the optional non-HTML document conversion adapter.
type DocConverterConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Config is the root configuration for the ingestion and retrieval service.
type Config struct {
	Environment string
	Storage     StorageConfig
	Integrity   IntegrityConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Server      ServerConfig
	Auth        AuthConfig
	Redis       RedisConfig
	GraphEnrich GraphEnrichConfig
	DocConvert  DocConverterConfig
}

// LoadConfig builds a Config from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Storage: StorageConfig{
			DataRoot:          getEnv("INGESTION_DATA_ROOT", "./data"),
			VectorIndexRoot:   getEnv("VECTOR_INDEX_ROOT", "./data/vector_index"),
			ReleasesRoot:      getEnv("RELEASES_ROOT", "./data/releases"),
			ObservabilityRoot: getEnv("OBSERVABILITY_ROOT", "./data/observability"),
		},
		Integrity: IntegrityConfig{
			SigningSecret: getEnv("INGESTION_SIGNING_SECRET", ""),
		},
		Embedding: EmbeddingConfig{
			OllamaModel:               getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			OllamaURL:                 getEnv("OLLAMA_URL", "http://localhost:11434"),
			OllamaTimeoutS:            getEnvAsInt("OLLAMA_TIMEOUT_S", 30),
			RetrievalProviderOverride: getEnv("RETRIEVAL_EMBED_PROVIDER", ""),
			RetrievalDim:              getEnvAsInt("RETRIEVAL_EMBED_DIM", 16),
			RetrievalMaxChars:         getEnvAsInt("RETRIEVAL_EMBED_MAX_CHARS", 2000),
			IngestionMaxChars:         getEnvAsInt("OLLAMA_EMBED_MAX_CHARS", 2000),
		},
		VectorStore: VectorStoreConfig{
			Adapter: getEnv("VECTOR_STORE_ADAPTER", "jsonl"),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(getEnvAsInt("SERVER_READ_TIMEOUT_S", 15)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("SERVER_WRITE_TIMEOUT_S", 15)) * time.Second,
			IdleTimeout:  time.Duration(getEnvAsInt("SERVER_IDLE_TIMEOUT_S", 60)) * time.Second,
		},
		Auth: AuthConfig{
			AdminSigningSecret: getEnv("ADMIN_JWT_SECRET", "dev-insecure-admin-secret"),
			RequireAdmin:       getEnvAsBool("ADMIN_AUTH_REQUIRED", false),
		},
		Redis: RedisConfig{
			Host:                     getEnv("REDIS_HOST", "localhost"),
			Port:                     getEnv("REDIS_PORT", "6379"),
			Password:                 getEnv("REDIS_PASSWORD", ""),
			DB:                       getEnvAsInt("REDIS_DB", 0),
			EnableRetrievalCache:     getEnvAsBool("RETRIEVAL_CACHE_ENABLED", false),
			RetrievalCacheTTLSeconds: getEnvAsInt("RETRIEVAL_CACHE_TTL_S", 300),
			EnableReleaseLock:        getEnvAsBool("RELEASE_LOCK_REDIS_ENABLED", false),
			ReleaseLockTTLSeconds:    getEnvAsInt("RELEASE_LOCK_TTL_S", 30),
		},
		GraphEnrich: GraphEnrichConfig{
			Enabled: getEnvAsBool("GRAPH_ENRICH_ENABLED", false),
			BaseURL: getEnv("GRAPH_ENRICH_BASE_URL", ""),
			APIKey:  getEnv("GRAPH_ENRICH_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("GRAPH_ENRICH_TIMEOUT_S", 10)) * time.Second,
		},
		DocConvert: DocConverterConfig{
			BaseURL: getEnv("DOC_CONVERTER_BASE_URL", ""),
			APIKey:  getEnv("DOC_CONVERTER_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("DOC_CONVERTER_TIMEOUT_S", 30)) * time.Second,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Environment == "production" && c.Integrity.SigningSecret == "" {
		return fmt.Errorf("config: INGESTION_SIGNING_SECRET is required when ENVIRONMENT=production")
	}
	if c.Embedding.RetrievalDim <= 0 {
		return fmt.Errorf("config: RETRIEVAL_EMBED_DIM must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
