// Package config provides configuration management for semdedup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/semdedup/internal/dedup"
	"github.com/thebtf/semdedup/internal/embedding"
	"github.com/thebtf/semdedup/internal/pipeline"
	"github.com/thebtf/semdedup/pkg/models"
	"github.com/thebtf/semdedup/pkg/similarity"
)

const (
	// DefaultWorkerPort is the default HTTP port of the worker service.
	DefaultWorkerPort = 37790
	// DefaultWorkerHost is the default bind address of the worker service.
	DefaultWorkerHost = "127.0.0.1"
	// EnvFile is the optional dotenv file read from the working directory.
	EnvFile = ".env"
)

// Config holds the resolved configuration. Every field can be set in
// settings.json under its env name, and overridden by that environment variable.
type Config struct {
	Environment string `envconfig:"SEMDEDUP_ENVIRONMENT"`
	LogLevel    string `envconfig:"SEMDEDUP_LOG_LEVEL"`

	// Database
	DBDriver        string `envconfig:"SEMDEDUP_DB_DRIVER"`
	DatabaseURL     string `envconfig:"SEMDEDUP_DATABASE_URL"`
	MaxConns        int    `envconfig:"SEMDEDUP_DB_MAX_CONNS"`
	DevSourceTables bool   `envconfig:"SEMDEDUP_DEV_SOURCE_TABLES"`
	SourcesFile     string `envconfig:"SEMDEDUP_SOURCES_FILE"`

	// Embedding provider
	EmbeddingURL       string        `envconfig:"SEMDEDUP_EMBEDDING_URL"`
	EmbeddingModel     string        `envconfig:"SEMDEDUP_EMBEDDING_MODEL"`
	EmbeddingAPIKey    string        `envconfig:"SEMDEDUP_EMBEDDING_API_KEY"`
	EmbeddingTimeout   time.Duration `envconfig:"SEMDEDUP_EMBEDDING_TIMEOUT"`
	EmbeddingRPS       float64       `envconfig:"SEMDEDUP_EMBEDDING_RPS"`
	EmbeddingBurst     int           `envconfig:"SEMDEDUP_EMBEDDING_BURST"`
	EmbeddingMaxChars  int           `envconfig:"SEMDEDUP_EMBEDDING_MAX_CHARS"`
	EmbeddingMaxTokens int           `envconfig:"SEMDEDUP_EMBEDDING_MAX_TOKENS"`
	BatchSize          int           `envconfig:"SEMDEDUP_BATCH_SIZE"`
	Concurrency        int           `envconfig:"SEMDEDUP_CONCURRENCY"`
	BatchDelay         time.Duration `envconfig:"SEMDEDUP_BATCH_DELAY"`

	// Clustering
	Threshold    float64       `envconfig:"SEMDEDUP_THRESHOLD"`
	MinLength    int           `envconfig:"SEMDEDUP_MIN_LENGTH"`
	MaxLimit     int           `envconfig:"SEMDEDUP_MAX_LIMIT"`
	RunTimeout   time.Duration `envconfig:"SEMDEDUP_RUN_TIMEOUT"`
	StoreTimeout time.Duration `envconfig:"SEMDEDUP_STORE_TIMEOUT"`

	// Worker service
	WorkerHost       string        `envconfig:"SEMDEDUP_WORKER_HOST"`
	WorkerPort       int           `envconfig:"SEMDEDUP_WORKER_PORT"`
	RedisURL         string        `envconfig:"SEMDEDUP_REDIS_URL"`
	LockTTL          time.Duration `envconfig:"SEMDEDUP_LOCK_TTL"`
	ScheduleInterval time.Duration `envconfig:"SEMDEDUP_SCHEDULE_INTERVAL"`
	ScheduleTenants  []string      `envconfig:"SEMDEDUP_SCHEDULE_TENANTS"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// DataDir returns the data directory path.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".semdedup")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "semdedup.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// SourcesPath returns the default source table mapping path.
func SourcesPath() string {
	return filepath.Join(DataDir(), "sources.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaults := map[string]interface{}{
		"SEMDEDUP_DB_DRIVER":     "sqlite",
		"SEMDEDUP_WORKER_PORT":   DefaultWorkerPort,
		"SEMDEDUP_EMBEDDING_URL": embedding.DefaultEndpoint,
		"SEMDEDUP_THRESHOLD":     similarity.DefaultThreshold,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Environment:       "local",
		LogLevel:          "info",
		DBDriver:          "sqlite",
		DatabaseURL:       DBPath(),
		MaxConns:          4,
		SourcesFile:       SourcesPath(),
		EmbeddingURL:      embedding.DefaultEndpoint,
		EmbeddingModel:    embedding.DefaultModel,
		EmbeddingTimeout:  embedding.DefaultCallTimeout,
		EmbeddingRPS:      embedding.DefaultRequestsPerSecond,
		EmbeddingBurst:    embedding.DefaultBurst,
		EmbeddingMaxChars: embedding.DefaultMaxChars,
		BatchSize:         embedding.DefaultBatchSize,
		Concurrency:       embedding.DefaultConcurrency,
		BatchDelay:        embedding.DefaultBatchDelay,
		Threshold:         similarity.DefaultThreshold,
		MinLength:         dedup.DefaultMinLength,
		MaxLimit:          models.MaxRunLimit,
		RunTimeout:        pipeline.DefaultRunTimeout,
		StoreTimeout:      pipeline.DefaultStoreTimeout,
		WorkerHost:        DefaultWorkerHost,
		WorkerPort:        DefaultWorkerPort,
		ScheduleTenants:   []string{},
	}
}

// Load reads configuration: defaults, then settings.json, then .env and the
// process environment. An unreadable or malformed settings file is ignored.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		var settings map[string]interface{}
		if err := json.Unmarshal(data, &settings); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Ignoring malformed settings file")
		} else {
			cfg.applySettings(settings)
		}
	}

	if _, err := os.Stat(EnvFile); err == nil {
		// Existing environment variables win over the dotenv file
		if err := godotenv.Load(EnvFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", EnvFile, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.ScheduleTenants = splitTrim(strings.Join(cfg.ScheduleTenants, ","))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Get returns the global configuration, loading it on first call.
// A load failure is logged and the defaults are used.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// GetWorkerPort returns the worker port from the environment or config.
func GetWorkerPort() int {
	if port := os.Getenv("SEMDEDUP_WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			return p
		}
	}
	return Get().WorkerPort
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("SEMDEDUP_DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("SEMDEDUP_DATABASE_URL is required")
	}
	if c.MaxConns < 1 {
		return errors.New("SEMDEDUP_DB_MAX_CONNS must be >= 1")
	}
	if strings.TrimSpace(c.EmbeddingURL) == "" {
		return errors.New("SEMDEDUP_EMBEDDING_URL is required")
	}
	if c.EmbeddingTimeout <= 0 {
		return errors.New("SEMDEDUP_EMBEDDING_TIMEOUT must be > 0")
	}
	if c.EmbeddingRPS < 0 {
		return errors.New("SEMDEDUP_EMBEDDING_RPS must be >= 0")
	}
	if c.BatchSize < 1 {
		return errors.New("SEMDEDUP_BATCH_SIZE must be >= 1")
	}
	if c.Concurrency < 1 {
		return errors.New("SEMDEDUP_CONCURRENCY must be >= 1")
	}
	if c.BatchDelay < 0 {
		return errors.New("SEMDEDUP_BATCH_DELAY must be >= 0")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("SEMDEDUP_THRESHOLD must be in (0, 1], got %v", c.Threshold)
	}
	if c.MinLength < 1 {
		return errors.New("SEMDEDUP_MIN_LENGTH must be >= 1")
	}
	if c.MaxLimit < 1 {
		return errors.New("SEMDEDUP_MAX_LIMIT must be >= 1")
	}
	if c.RunTimeout <= 0 || c.StoreTimeout <= 0 {
		return errors.New("SEMDEDUP_RUN_TIMEOUT and SEMDEDUP_STORE_TIMEOUT must be > 0")
	}
	if c.WorkerPort < 1 || c.WorkerPort > 65535 {
		return fmt.Errorf("SEMDEDUP_WORKER_PORT out of range: %d", c.WorkerPort)
	}
	if c.ScheduleInterval < 0 {
		return errors.New("SEMDEDUP_SCHEDULE_INTERVAL must be >= 0")
	}
	return nil
}

// EmbeddingConfig returns the embedding client configuration.
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		Endpoint:          c.EmbeddingURL,
		Model:             c.EmbeddingModel,
		APIKey:            c.EmbeddingAPIKey,
		CallTimeout:       c.EmbeddingTimeout,
		RequestsPerSecond: c.EmbeddingRPS,
		Burst:             c.EmbeddingBurst,
		MaxChars:          c.EmbeddingMaxChars,
		MaxTokens:         c.EmbeddingMaxTokens,
	}
}

// PipelineConfig returns the orchestrator configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Threshold:    c.Threshold,
		MinLength:    c.MinLength,
		MaxLimit:     c.MaxLimit,
		RunTimeout:   c.RunTimeout,
		StoreTimeout: c.StoreTimeout,
	}
}

// applySettings overlays values from settings.json. Unknown keys and values
// of the wrong type are ignored.
func (c *Config) applySettings(s map[string]interface{}) {
	setString(s, "SEMDEDUP_ENVIRONMENT", &c.Environment)
	setString(s, "SEMDEDUP_LOG_LEVEL", &c.LogLevel)
	setString(s, "SEMDEDUP_DB_DRIVER", &c.DBDriver)
	setString(s, "SEMDEDUP_DATABASE_URL", &c.DatabaseURL)
	setInt(s, "SEMDEDUP_DB_MAX_CONNS", &c.MaxConns)
	setBool(s, "SEMDEDUP_DEV_SOURCE_TABLES", &c.DevSourceTables)
	setString(s, "SEMDEDUP_SOURCES_FILE", &c.SourcesFile)

	setString(s, "SEMDEDUP_EMBEDDING_URL", &c.EmbeddingURL)
	setString(s, "SEMDEDUP_EMBEDDING_MODEL", &c.EmbeddingModel)
	setString(s, "SEMDEDUP_EMBEDDING_API_KEY", &c.EmbeddingAPIKey)
	setDuration(s, "SEMDEDUP_EMBEDDING_TIMEOUT", &c.EmbeddingTimeout)
	setFloat(s, "SEMDEDUP_EMBEDDING_RPS", &c.EmbeddingRPS)
	setInt(s, "SEMDEDUP_EMBEDDING_BURST", &c.EmbeddingBurst)
	setInt(s, "SEMDEDUP_EMBEDDING_MAX_CHARS", &c.EmbeddingMaxChars)
	setInt(s, "SEMDEDUP_EMBEDDING_MAX_TOKENS", &c.EmbeddingMaxTokens)
	setInt(s, "SEMDEDUP_BATCH_SIZE", &c.BatchSize)
	setInt(s, "SEMDEDUP_CONCURRENCY", &c.Concurrency)
	setDuration(s, "SEMDEDUP_BATCH_DELAY", &c.BatchDelay)

	setFloat(s, "SEMDEDUP_THRESHOLD", &c.Threshold)
	setInt(s, "SEMDEDUP_MIN_LENGTH", &c.MinLength)
	setInt(s, "SEMDEDUP_MAX_LIMIT", &c.MaxLimit)
	setDuration(s, "SEMDEDUP_RUN_TIMEOUT", &c.RunTimeout)
	setDuration(s, "SEMDEDUP_STORE_TIMEOUT", &c.StoreTimeout)

	setString(s, "SEMDEDUP_WORKER_HOST", &c.WorkerHost)
	setInt(s, "SEMDEDUP_WORKER_PORT", &c.WorkerPort)
	setString(s, "SEMDEDUP_REDIS_URL", &c.RedisURL)
	setDuration(s, "SEMDEDUP_LOCK_TTL", &c.LockTTL)
	setDuration(s, "SEMDEDUP_SCHEDULE_INTERVAL", &c.ScheduleInterval)

	if v, ok := s["SEMDEDUP_SCHEDULE_TENANTS"].(string); ok {
		c.ScheduleTenants = splitTrim(v)
	}
}

func setString(s map[string]interface{}, key string, dst *string) {
	if v, ok := s[key].(string); ok && v != "" {
		*dst = v
	}
}

func setInt(s map[string]interface{}, key string, dst *int) {
	if v, ok := s[key].(float64); ok {
		*dst = int(v)
	}
}

func setFloat(s map[string]interface{}, key string, dst *float64) {
	if v, ok := s[key].(float64); ok {
		*dst = v
	}
}

func setBool(s map[string]interface{}, key string, dst *bool) {
	if v, ok := s[key].(bool); ok {
		*dst = v
	}
}

// setDuration accepts "30s" style strings or a number of seconds.
func setDuration(s map[string]interface{}, key string, dst *time.Duration) {
	switch v := s[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	case float64:
		*dst = time.Duration(v * float64(time.Second))
	}
}

// splitTrim splits a comma-separated string and trims whitespace from each element.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
