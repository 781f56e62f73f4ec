package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/window"
)

// Driver names accepted by database.driver and cache.driver.
const (
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config holds the rarity engine configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Cache        CacheConfig        `yaml:"cache"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Moderation   ModerationConfig   `yaml:"moderation"`
	ContentTypes ContentTypesConfig `yaml:"content_types"`
	Windows      []string           `yaml:"windows"`
	Limits       LimitsConfig       `yaml:"limits"`
	Index        IndexConfig        `yaml:"index"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds the ops server settings (/health, /metrics).
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects and configures the similarity store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, postgres (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"`
	MaxConns         int32    `yaml:"max_conns"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CacheConfig selects the result cache backend and its expiry policy.
type CacheConfig struct {
	// Driver is valkey, redis or badger. Defaults to the database driver for
	// valkey/redis and to badger for postgres.
	Driver        string       `yaml:"driver"`
	Badger        BadgerConfig `yaml:"badger"`
	ModerationTTL int          `yaml:"moderation_ttl_sec"`
	SimilarTTL    int          `yaml:"similar_ttl_sec"`
	TemporalTTL   int          `yaml:"temporal_ttl_sec"`
	TotalCountTTL int          `yaml:"total_count_ttl_sec"`
}

// BadgerConfig configures the embedded cache store.
type BadgerConfig struct {
	Dir           string `yaml:"dir"`
	InMemory      bool   `yaml:"in_memory"`
	GCIntervalSec int    `yaml:"gc_interval_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Dimensions  int     `yaml:"dimensions"`
	Instruction string  `yaml:"instruction"`
	RatePerSec  float64 `yaml:"rate_per_sec"` // 0 = unlimited
	RateBurst   int     `yaml:"rate_burst"`
	CacheTTL    int     `yaml:"cache_ttl_sec"`
}

// ModerationConfig holds moderation gate settings.
type ModerationConfig struct {
	Enabled         bool    `yaml:"enabled"`
	APIKey          string  `yaml:"api_key"` // defaults to embedding.api_key
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	TimeoutMs       int     `yaml:"timeout_ms"`
	StrictThreshold float64 `yaml:"strict_threshold"`
}

// ContentTypesConfig holds one closed section per content type.
type ContentTypesConfig struct {
	Post  ContentTypeConfig `yaml:"post"`
	Dream ContentTypeConfig `yaml:"dream"`
}

// ContentTypeConfig tunes matching and moderation for one content type.
type ContentTypeConfig struct {
	Allowed             *bool   `yaml:"allowed"` // default true
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxCandidates       int     `yaml:"max_candidates"`
	StrictModeration    bool    `yaml:"strict_moderation"`
	MaxTextRunes        int     `yaml:"max_text_runes"`
}

// IsAllowed reports whether submissions of this type are accepted.
func (c ContentTypeConfig) IsAllowed() bool { return c.Allowed == nil || *c.Allowed }

// LimitsConfig holds request limits.
type LimitsConfig struct {
	MaxTextRunes int `yaml:"max_text_runes"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = c.Database.Driver
		if c.Database.Driver == DriverPostgres {
			c.Cache.Driver = DriverBadger
		}
	}
	if c.Cache.Driver == DriverBadger && c.Cache.Badger.Dir == "" {
		c.Cache.Badger.InMemory = true
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.DefaultDimensions
	}
	if c.Moderation.APIKey == "" {
		c.Moderation.APIKey = c.Embedding.APIKey
	}
	if c.Moderation.BaseURL == "" {
		c.Moderation.BaseURL = c.Embedding.BaseURL
	}
	if c.Moderation.TimeoutMs <= 0 {
		c.Moderation.TimeoutMs = 3000
	}
	if c.Limits.MaxTextRunes <= 0 {
		c.Limits.MaxTextRunes = 2000
	}
	applyTypeDefaults(&c.ContentTypes.Post, 0.85, c.Limits.MaxTextRunes)
	applyTypeDefaults(&c.ContentTypes.Dream, 0.75, c.Limits.MaxTextRunes)
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = domain.DefaultKeyPrefix
	}
}

func applyTypeDefaults(t *ContentTypeConfig, similarity float64, maxRunes int) {
	if t.SimilarityThreshold == 0 {
		t.SimilarityThreshold = similarity
	}
	if t.MaxCandidates <= 0 {
		t.MaxCandidates = 100
	}
	if t.MaxTextRunes <= 0 || t.MaxTextRunes > maxRunes {
		t.MaxTextRunes = maxRunes
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or postgres, got %q", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case DriverValkey, DriverRedis:
		if c.Database.Driver == DriverPostgres {
			return fmt.Errorf("cache.driver %q needs a valkey/redis database", c.Cache.Driver)
		}
	case DriverBadger:
	default:
		return fmt.Errorf("cache.driver must be valkey, redis or badger, got %q", c.Cache.Driver)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.RatePerSec < 0 {
		return fmt.Errorf("embedding.rate_per_sec must not be negative, got %v", c.Embedding.RatePerSec)
	}
	if t := c.Moderation.StrictThreshold; t < 0 || t > 1 {
		return fmt.Errorf("moderation.strict_threshold must be in [0, 1], got %v", t)
	}

	for name, t := range map[string]ContentTypeConfig{"post": c.ContentTypes.Post, "dream": c.ContentTypes.Dream} {
		if !t.IsAllowed() {
			continue
		}
		if t.SimilarityThreshold <= 0 || t.SimilarityThreshold >= 1 {
			return fmt.Errorf("content_types.%s.similarity_threshold must be in (0, 1), got %v",
				name, t.SimilarityThreshold)
		}
	}

	if _, err := window.ParseAll(c.Windows); err != nil {
		return fmt.Errorf("windows: %w", err)
	}
	return nil
}

// ModerationTimeout returns the moderation timeout as a duration.
func (c *Config) ModerationTimeout() time.Duration {
	return time.Duration(c.Moderation.TimeoutMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
