// Package config loads service settings from an optional YAML file, a .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultStorePath is used when neither a store path nor a store host is configured.
const DefaultStorePath = "./data"

// Config holds all configuration for the server and the CLI.
type Config struct {
	Store        StoreConfig     `yaml:"store"`
	Collection   string          `yaml:"collection"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	QueryTimeout time.Duration   `yaml:"query_timeout"`
	Ingest       IngestConfig    `yaml:"ingest"`
	Server       ServerConfig    `yaml:"server"`
	Logging      LoggingConfig   `yaml:"logging"`
	Services     ServicesConfig  `yaml:"services"`
}

// StoreConfig selects the vector store. Path and Host are mutually exclusive.
type StoreConfig struct {
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"` // "openai" or "hash"
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// IngestConfig holds chunking and discovery defaults for ingestion.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Workers      int      `yaml:"workers"`
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
}

// ServerConfig holds HTTP and MCP settings.
type ServerConfig struct {
	Port     int  `yaml:"port"`
	MCPStdio bool `yaml:"mcp_stdio"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// ServicesConfig records collaborator endpoints. They are reported, not called.
type ServicesConfig struct {
	LLMURL       string `yaml:"llm_url"`
	RetrievalURL string `yaml:"retrieval_url"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store:      StoreConfig{Port: 6334},
		Collection: "law_knowledge",
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "bge-m3",
			Dimension: 1024,
			BatchSize: 32,
		},
		QueryTimeout: 30 * time.Second,
		Ingest: IngestConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			Workers:      1,
		},
		Server:  ServerConfig{Port: 8000},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path names an optional YAML file; when empty,
// CONFIG_FILE is consulted. A .env file in the working directory is loaded if
// present, and environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" && cfg.Store.Host == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Store.Path, "STORE_PATH")
	setString(&c.Store.Host, "STORE_HOST")
	errs = append(errs, setInt(&c.Store.Port, "STORE_PORT"))
	setString(&c.Store.APIKey, "STORE_API_KEY")
	setString(&c.Collection, "COLLECTION_NAME")

	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	errs = append(errs,
		setInt(&c.Embedding.Dimension, "EMBEDDING_DIMENSION"),
		setInt(&c.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE"),
		setFloat(&c.Embedding.RequestsPerSecond, "EMBEDDING_RPS"),
		setDuration(&c.QueryTimeout, "QUERY_TIMEOUT"),
		setInt(&c.Ingest.ChunkSize, "CHUNK_SIZE"),
		setInt(&c.Ingest.ChunkOverlap, "CHUNK_OVERLAP"),
		setInt(&c.Ingest.Workers, "INGEST_WORKERS"),
		setInt(&c.Server.Port, "PORT"),
		setBool(&c.Server.MCPStdio, "MCP_STDIO"),
	)
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Services.LLMURL, "LLM_SERVICE_URL")
	setString(&c.Services.RetrievalURL, "RETRIEVAL_SERVICE_URL")

	return errors.Join(errs...)
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path != "" && c.Store.Host != "" {
		errs = append(errs, errors.New("STORE_PATH and STORE_HOST are mutually exclusive"))
	}
	if c.Store.Host != "" && (c.Store.Port <= 0 || c.Store.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid store port %d", c.Store.Port))
	}
	if strings.TrimSpace(c.Collection) == "" {
		errs = append(errs, errors.New("collection name is required"))
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.BaseURL == "" && c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("openai embedding provider needs EMBEDDING_BASE_URL or EMBEDDING_API_KEY"))
		}
		if c.Embedding.BaseURL != "" {
			if _, err := url.ParseRequestURI(c.Embedding.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("invalid embedding base URL: %w", err))
			}
		}
	case "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q (want openai or hash)", c.Embedding.Provider))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedding requests per second must not be negative"))
	}

	if c.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// UsesQdrant reports whether a remote Qdrant server is configured.
func (c *Config) UsesQdrant() bool {
	return c.Store.Host != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not a number", key, v)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("30s") or a bare number of seconds.
func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}
