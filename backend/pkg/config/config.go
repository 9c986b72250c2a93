package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the graph YAML overlay is looked up when GRAPH_CONFIG is unset
const DefaultConfigPath = "configs/neo4j.yaml"

// Config holds all application configuration
type Config struct {
	// App
	Port string `yaml:"port"`
	Env  string `yaml:"env"`

	// Neo4j
	Neo4jURI              string `yaml:"uri"`
	Neo4jUser             string `yaml:"user"`
	Neo4jPassword         string `yaml:"password"`
	Neo4jDatabase         string `yaml:"database"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
	MaxPoolSize           int    `yaml:"max_pool_size"`

	// Sync
	SyncBatchSize          int      `yaml:"sync_batch_size"`
	EnableEntityExtraction bool     `yaml:"enable_entity_extraction"`
	EnableChunkEmbedding   bool     `yaml:"enable_chunk_embedding"`
	InitSchema             bool     `yaml:"init_schema"`
	ChunkSize              int      `yaml:"chunk_size"`
	ChunkOverlap           int      `yaml:"chunk_overlap"`
	VectorDimensions       int      `yaml:"vector_dimensions"`
	Platforms              []string `yaml:"platforms"`
	EnrichmentWorkers      int      `yaml:"enrichment_workers"`

	// Sources
	DataRoot     string `yaml:"data_root"`
	SourceBucket string `yaml:"source_bucket"`
	DBURL        string `yaml:"db_url"`
}

// Load reads configuration from the environment and the optional YAML overlay
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := FromEnv()

	path := getEnv("GRAPH_CONFIG", DefaultConfigPath)
	if err := cfg.MergeFile(path); err != nil {
		return nil, err
	}

	// The password is a secret: the environment always wins over the file
	if secret := os.Getenv("NEO4J_PASSWORD"); secret != "" {
		cfg.Neo4jPassword = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only
func FromEnv() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		Neo4jURI:               strings.TrimSpace(os.Getenv("NEO4J_URI")),
		Neo4jUser:              getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:          os.Getenv("NEO4J_PASSWORD"),
		Neo4jDatabase:          getEnv("NEO4J_DATABASE", "neo4j"),
		ConnectTimeoutSeconds:  getEnvInt("NEO4J_TIMEOUT_SECONDS", 10),
		MaxPoolSize:            getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		SyncBatchSize:          getEnvInt("GRAPH_SYNC_BATCH_SIZE", constants.DefaultBatchSize),
		EnableEntityExtraction: getEnvBool("GRAPH_ENABLE_ENTITY_EXTRACTION", true),
		EnableChunkEmbedding:   getEnvBool("GRAPH_ENABLE_CHUNK_EMBEDDING", true),
		InitSchema:             getEnvBool("GRAPH_INIT_SCHEMA", true),
		ChunkSize:              getEnvInt("GRAPH_CHUNK_SIZE", constants.DefaultChunkSize),
		ChunkOverlap:           getEnvInt("GRAPH_CHUNK_OVERLAP", constants.DefaultChunkOverlap),
		VectorDimensions:       getEnvInt("GRAPH_VECTOR_DIMENSIONS", constants.DefaultVectorDimensions),
		Platforms:              append([]string(nil), constants.DefaultPlatforms...),
		EnrichmentWorkers:      getEnvInt("GRAPH_ENRICHMENT_WORKERS", 1),
		DataRoot:               getEnv("DATA_ROOT", "data"),
		SourceBucket:           getEnv("GRAPH_SOURCE_BUCKET", constants.DefaultSourceBucket),
		DBURL:                  os.Getenv("DB_URL"),
	}
}

// MergeFile overlays values from a YAML file. A missing file is not an error.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Neo4jURI = strings.TrimSpace(c.Neo4jURI)
	return nil
}

// Validate checks that configuration values are usable.
// A blank Neo4j URI is allowed: it means the graph backend is not configured.
func (c *Config) Validate() error {
	if c.SyncBatchSize <= 0 {
		return apperrors.NewConfigValidationFailed("sync_batch_size", "must be positive")
	}
	if c.ChunkSize <= 0 {
		return apperrors.NewConfigValidationFailed("chunk_size", "must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return apperrors.NewConfigValidationFailed("chunk_overlap", "must be in [0, chunk_size)")
	}
	if c.VectorDimensions <= 0 {
		return apperrors.NewConfigValidationFailed("vector_dimensions", "must be positive")
	}
	if c.EnrichmentWorkers < 1 {
		return apperrors.NewConfigValidationFailed("enrichment_workers", "must be at least 1")
	}
	return nil
}

// GraphConfigured reports whether a graph backend URI has been provided
func (c *Config) GraphConfigured() bool {
	return c != nil && strings.TrimSpace(c.Neo4jURI) != ""
}

// RequireGraph returns ErrConfigMissingRequired when no graph backend is configured
func (c *Config) RequireGraph() error {
	if !c.GraphConfigured() {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}
