// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	QueueModeDeferred  = "deferred"
	QueueModeImmediate = "immediate"

	StatusBackendFile     = "file"
	StatusBackendRedis    = "redis"
	StatusBackendPostgres = "postgres"
	StatusBackendSQLite   = "sqlite"

	StorageBackendFS     = "fs"
	StorageBackendAzBlob = "azblob"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type QueueConfig struct {
	Mode         string        `yaml:"mode"` // deferred | immediate
	Name         string        `yaml:"name"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	Workers      int           `yaml:"workers"`
	DequeueWait  time.Duration `yaml:"dequeue_wait"`
	LockTTLSlack time.Duration `yaml:"lock_ttl_slack"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // job status expiry; 0 keeps records forever
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type AzureStorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
}

type StorageConfig struct {
	Backend string             `yaml:"backend"` // fs | azblob
	DataDir string             `yaml:"data_dir"`
	Azure   AzureStorageConfig `yaml:"azure"`
}

type StatusConfig struct {
	Backend    string `yaml:"backend"` // file | redis | postgres | sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

type AIConfig struct {
	Provider         string            `yaml:"provider"` // default provider for unmapped models
	OpenAIKey        string            `yaml:"openai_key"`
	OpenAIBaseURL    string            `yaml:"openai_base_url"`
	GeminiKey        string            `yaml:"gemini_key"`
	GeminiURL        string            `yaml:"gemini_url"`
	AnthropicKey     string            `yaml:"anthropic_key"`
	AnthropicBaseURL string            `yaml:"anthropic_base_url"`
	MetisKey         string            `yaml:"metis_key"`
	MetisBaseURL     string            `yaml:"metis_base_url"`
	DefaultModel     string            `yaml:"default_model"`
	ModelProviders   map[string]string `yaml:"model_providers"`  // model -> provider
	ConcurrentLimit  int               `yaml:"concurrent_limit"` // max concurrent AI calls
	RequestTimeout   time.Duration     `yaml:"request_timeout"`
	Offline          bool              `yaml:"offline"` // canned responses, no network
}

type WikipediaConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	UserAgent string        `yaml:"user_agent"`
}

type RateLimitConfig struct {
	SubmitPerMinute int `yaml:"submit_per_minute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Queue     QueueConfig     `yaml:"queue"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Status    StatusConfig    `yaml:"status"`
	AI        AIConfig        `yaml:"ai"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (skipped when path is empty), overlays
// environment variables and overrides, applies defaults and validates the result.
func LoadConfig(path string, dev bool, overrides ...func(*Config)) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	for _, o := range overrides {
		o(&cfg)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	str("OPENAI_MODEL", &cfg.AI.DefaultModel)
	str("OPENAI_BASE_URL", &cfg.AI.OpenAIBaseURL)
	str("GEMINI_API_KEY", &cfg.AI.GeminiKey)
	str("ANTHROPIC_API_KEY", &cfg.AI.AnthropicKey)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("REDIS_URL", &cfg.Redis.URL)
	str("DATABASE_URL", &cfg.Database.URL)
	if v, ok := lookup("PORT"); ok {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Server.Port = p
		}
	}
	// USE_FAKE_REDIS=true runs jobs synchronously without a broker.
	if v, ok := lookup("USE_FAKE_REDIS"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		cfg.Queue.Mode = QueueModeImmediate
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Queue.Mode = strings.ToLower(strings.TrimSpace(cfg.Queue.Mode))
	if cfg.Queue.Mode == "" {
		cfg.Queue.Mode = QueueModeDeferred
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "tasks"
	}
	if cfg.Queue.JobTimeout <= 0 {
		cfg.Queue.JobTimeout = 600 * time.Second
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 2
	}
	if cfg.Queue.DequeueWait <= 0 {
		cfg.Queue.DequeueWait = 5 * time.Second
	}
	if cfg.Queue.LockTTLSlack <= 0 {
		cfg.Queue.LockTTLSlack = time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendFS
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.Azure.Container == "" {
		cfg.Storage.Azure.Container = "research-jobs"
	}
	if cfg.Status.Backend == "" {
		if cfg.Queue.Mode == QueueModeImmediate {
			cfg.Status.Backend = StatusBackendFile
		} else {
			cfg.Status.Backend = StatusBackendRedis
		}
	}
	if cfg.Status.SQLitePath == "" {
		cfg.Status.SQLitePath = filepath.Join(cfg.Storage.DataDir, "jobs.db")
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.MetisBaseURL == "" {
		cfg.AI.MetisBaseURL = "https://api.metisai.ir/openai/v1"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = 120 * time.Second
	}
	if cfg.Wikipedia.BaseURL == "" {
		cfg.Wikipedia.BaseURL = "https://en.wikipedia.org/w/api.php"
	}
	if cfg.Wikipedia.Timeout <= 0 {
		cfg.Wikipedia.Timeout = 10 * time.Second
	}
	if cfg.Wikipedia.CacheTTL <= 0 {
		cfg.Wikipedia.CacheTTL = 24 * time.Hour
	}
	if cfg.Wikipedia.UserAgent == "" {
		cfg.Wikipedia.UserAgent = "research-assistant/1.0"
	}
}

// Validate checks cross-section requirements after defaults were applied.
func (c *Config) Validate() error {
	switch c.Queue.Mode {
	case QueueModeDeferred:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required in deferred queue mode")
		}
	case QueueModeImmediate:
	default:
		return fmt.Errorf("queue.mode %q is not one of deferred|immediate", c.Queue.Mode)
	}
	switch c.Status.Backend {
	case StatusBackendFile:
		if c.Storage.Backend != StorageBackendFS {
			return errors.New("status.backend=file requires storage.backend=fs")
		}
	case StatusBackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for status.backend=redis")
		}
	case StatusBackendPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for status.backend=postgres")
		}
	case StatusBackendSQLite:
	default:
		return fmt.Errorf("status.backend %q is not supported", c.Status.Backend)
	}
	switch c.Storage.Backend {
	case StorageBackendFS:
	case StorageBackendAzBlob:
		if c.Storage.Azure.ConnectionString == "" {
			return errors.New("storage.azure.connection_string is required for storage.backend=azblob")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if !c.AI.Offline && c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" && c.AI.AnthropicKey == "" && c.AI.MetisKey == "" {
		return errors.New("no AI provider configured: set ai.openai_key, ai.gemini_key, ai.anthropic_key or ai.metis_key (or ai.offline)")
	}
	return nil
}

// ForceImmediate runs jobs inside Submit regardless of file or environment settings.
func ForceImmediate(c *Config) { c.Queue.Mode = QueueModeImmediate }

// Immediate reports whether jobs run synchronously inside Submit.
func (c *Config) Immediate() bool { return c.Queue.Mode == QueueModeImmediate }

// normalizeTTL maps unset or negative values to 0, meaning job records never expire.
func normalizeTTL(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
