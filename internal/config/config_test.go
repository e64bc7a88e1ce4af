// Package config provides configuration management for semdedup.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/semdedup/internal/embedding"
	"github.com/thebtf/semdedup/pkg/similarity"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.T().Setenv("HOME", s.tempDir)
	s.T().Chdir(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) writeSettings(content string) {
	s.Require().NoError(os.MkdirAll(filepath.Join(s.tempDir, ".semdedup"), 0750))
	s.Require().NoError(os.WriteFile(filepath.Join(s.tempDir, ".semdedup", "settings.json"), []byte(content), 0600))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
	s.Equal("sqlite", cfg.DBDriver)
	s.Equal(DBPath(), cfg.DatabaseURL)
	s.Equal(4, cfg.MaxConns)
	s.Equal(similarity.DefaultThreshold, cfg.Threshold)
	s.Equal(embedding.DefaultBatchSize, cfg.BatchSize)
	s.Equal(embedding.DefaultConcurrency, cfg.Concurrency)
	s.Equal(200*time.Millisecond, cfg.BatchDelay)
	s.Equal(10*time.Minute, cfg.RunTimeout)
	s.Equal(15*time.Second, cfg.StoreTimeout)
	s.Equal(5, cfg.MinLength)
	s.Equal(20000, cfg.MaxLimit)
	s.Empty(cfg.ScheduleTenants)
	s.NoError(cfg.Validate())
}

// TestPaths tests data directory paths.
func (s *ConfigSuite) TestPaths() {
	s.Contains(DataDir(), ".semdedup")
	s.Contains(DBPath(), "semdedup.db")
	s.Contains(SettingsPath(), "settings.json")
	s.Contains(SourcesPath(), "sources.yaml")
}

// TestEnsureAll tests full initialization.
func (s *ConfigSuite) TestEnsureAll() {
	s.Require().NoError(EnsureAll())

	info, err := os.Stat(DataDir())
	s.Require().NoError(err)
	s.True(info.IsDir())
	_, err = os.Stat(SettingsPath())
	s.NoError(err)

	// Second call should not error (file exists)
	s.NoError(EnsureSettings())

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
}

// TestLoad_TableDriven tests configuration loading with various scenarios.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name              string
		settingsJSON      string
		expectedPort      int
		expectedThreshold float64
		expectedDelay     time.Duration
	}{
		{
			name:              "no settings file",
			expectedPort:      DefaultWorkerPort,
			expectedThreshold: 0.92,
			expectedDelay:     200 * time.Millisecond,
		},
		{
			name:              "custom port",
			settingsJSON:      `{"SEMDEDUP_WORKER_PORT": 38888}`,
			expectedPort:      38888,
			expectedThreshold: 0.92,
			expectedDelay:     200 * time.Millisecond,
		},
		{
			name:              "custom threshold and delay string",
			settingsJSON:      `{"SEMDEDUP_THRESHOLD": 0.85, "SEMDEDUP_BATCH_DELAY": "1s"}`,
			expectedPort:      DefaultWorkerPort,
			expectedThreshold: 0.85,
			expectedDelay:     time.Second,
		},
		{
			name:              "delay in seconds",
			settingsJSON:      `{"SEMDEDUP_BATCH_DELAY": 0.5}`,
			expectedPort:      DefaultWorkerPort,
			expectedThreshold: 0.92,
			expectedDelay:     500 * time.Millisecond,
		},
		{
			name:              "wrong types ignored",
			settingsJSON:      `{"SEMDEDUP_WORKER_PORT": "abc", "SEMDEDUP_THRESHOLD": true}`,
			expectedPort:      DefaultWorkerPort,
			expectedThreshold: 0.92,
			expectedDelay:     200 * time.Millisecond,
		},
		{
			name:              "invalid JSON returns defaults",
			settingsJSON:      `{invalid}`,
			expectedPort:      DefaultWorkerPort,
			expectedThreshold: 0.92,
			expectedDelay:     200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			os.RemoveAll(filepath.Join(s.tempDir, ".semdedup"))
			if tt.settingsJSON != "" {
				s.writeSettings(tt.settingsJSON)
			}

			cfg, err := Load()
			s.Require().NoError(err)
			s.Equal(tt.expectedPort, cfg.WorkerPort)
			s.Equal(tt.expectedThreshold, cfg.Threshold)
			s.Equal(tt.expectedDelay, cfg.BatchDelay)
		})
	}
}

// TestLoad_EnvOverridesSettings tests that the environment wins over settings.json.
func (s *ConfigSuite) TestLoad_EnvOverridesSettings() {
	s.writeSettings(`{"SEMDEDUP_WORKER_PORT": 38888, "SEMDEDUP_SCHEDULE_TENANTS": "a, b"}`)
	s.T().Setenv("SEMDEDUP_WORKER_PORT", "39999")
	s.T().Setenv("SEMDEDUP_RUN_TIMEOUT", "2m")
	s.T().Setenv("SEMDEDUP_DB_DRIVER", "postgres")
	s.T().Setenv("SEMDEDUP_DATABASE_URL", "postgres://localhost/crm")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(39999, cfg.WorkerPort)
	s.Equal(2*time.Minute, cfg.RunTimeout)
	s.Equal("postgres", cfg.DBDriver)
	s.Equal("postgres://localhost/crm", cfg.DatabaseURL)
	s.Equal([]string{"a", "b"}, cfg.ScheduleTenants)
}

// TestLoad_DotEnv tests that .env values apply but do not override the environment.
func (s *ConfigSuite) TestLoad_DotEnv() {
	content := "SEMDEDUP_EMBEDDING_MODEL=bge-m3\nSEMDEDUP_BATCH_SIZE=50\nSEMDEDUP_SCHEDULE_TENANTS=t1,,t2\n"
	s.Require().NoError(os.WriteFile(filepath.Join(s.tempDir, EnvFile), []byte(content), 0600))
	s.T().Setenv("SEMDEDUP_BATCH_SIZE", "25")
	// godotenv sets variables directly, clean them up after the test
	s.T().Setenv("SEMDEDUP_EMBEDDING_MODEL", "")
	os.Unsetenv("SEMDEDUP_EMBEDDING_MODEL")
	s.T().Setenv("SEMDEDUP_SCHEDULE_TENANTS", "")
	os.Unsetenv("SEMDEDUP_SCHEDULE_TENANTS")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("bge-m3", cfg.EmbeddingModel)
	s.Equal(25, cfg.BatchSize)
	s.Equal([]string{"t1", "t2"}, cfg.ScheduleTenants)
}

// TestLoad_InvalidEnv tests that malformed environment values fail loading.
func (s *ConfigSuite) TestLoad_InvalidEnv() {
	s.T().Setenv("SEMDEDUP_BATCH_SIZE", "many")

	cfg, err := Load()
	s.Error(err)
	s.Nil(cfg)
}

// TestLoad_ValidationFailure tests that out-of-range settings fail loading.
func (s *ConfigSuite) TestLoad_ValidationFailure() {
	s.writeSettings(`{"SEMDEDUP_THRESHOLD": 1.5}`)

	cfg, err := Load()
	s.Error(err)
	s.Nil(cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "threshold one", mutate: func(c *Config) { c.Threshold = 1 }},
		{name: "threshold zero", mutate: func(c *Config) { c.Threshold = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Threshold = 1.01 }, wantErr: true},
		{name: "batch size zero", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "concurrency zero", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.BatchDelay = -time.Second }, wantErr: true},
		{name: "zero delay", mutate: func(c *Config) { c.BatchDelay = 0 }},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, wantErr: true},
		{name: "empty database url", mutate: func(c *Config) { c.DatabaseURL = " " }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.WorkerPort = 70000 }, wantErr: true},
		{name: "min length zero", mutate: func(c *Config) { c.MinLength = 0 }, wantErr: true},
		{name: "run timeout zero", mutate: func(c *Config) { c.RunTimeout = 0 }, wantErr: true},
		{name: "negative schedule", mutate: func(c *Config) { c.ScheduleInterval = -time.Minute }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingAPIKey = "secret"
	cfg.Threshold = 0.9

	ec := cfg.EmbeddingConfig()
	assert.Equal(t, "secret", ec.APIKey)
	assert.Equal(t, embedding.DefaultEndpoint, ec.Endpoint)
	assert.Equal(t, cfg.EmbeddingTimeout, ec.CallTimeout)

	pc := cfg.PipelineConfig()
	assert.Equal(t, 0.9, pc.Threshold)
	assert.Equal(t, cfg.RunTimeout, pc.RunTimeout)
}

// TestSplitTrim tests the splitTrim helper function.
func TestSplitTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: []string{}},
		{name: "single value", input: "tenant-a", expected: []string{"tenant-a"}},
		{name: "multiple values", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "values with spaces", input: " a , b , c ", expected: []string{"a", "b", "c"}},
		{name: "empty values filtered", input: "a,,b,,", expected: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitTrim(tt.input))
		})
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Greater(t, cfg.WorkerPort, 0)
	assert.Same(t, cfg, Get())
}

// TestGetWorkerPort_WithEnv tests GetWorkerPort with environment variable.
func TestGetWorkerPort_WithEnv(t *testing.T) {
	t.Setenv("SEMDEDUP_WORKER_PORT", "45678")
	assert.Equal(t, 45678, GetWorkerPort())

	// Invalid values fall back to config
	t.Setenv("SEMDEDUP_WORKER_PORT", "not-a-number")
	assert.Greater(t, GetWorkerPort(), 0)

	t.Setenv("SEMDEDUP_WORKER_PORT", "0")
	assert.Greater(t, GetWorkerPort(), 0)
}
