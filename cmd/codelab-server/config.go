package main

import (
	"fmt"
	"os"
	"time"

	"codelab/internal/auth"
	"codelab/internal/common/cache"
	"codelab/internal/common/db"
	commonmw "codelab/internal/common/http/middleware"
	"codelab/internal/common/mq"
	"codelab/internal/common/storage"
	"codelab/internal/engine"
	"codelab/internal/practice/service"
	"codelab/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultEventTopic      = "codelab.submission.judged"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	CORS      commonmw.CORSConfig      `yaml:"cors"`
	RateLimit commonmw.RateLimitPolicy `yaml:"rateLimit"`
}

// CatalogConfig locates the exercise pack. Object wins over Path when both
// are set; objects are read from the MinIO bucket.
type CatalogConfig struct {
	Path   string `yaml:"path"`
	Object string `yaml:"object"`
}

// SubmissionConfig holds grading and recording settings.
type SubmissionConfig struct {
	SourceKeyPrefix string                  `yaml:"sourceKeyPrefix"`
	MaxCodeBytes    int                     `yaml:"maxCodeBytes"`
	RunCacheTTL     time.Duration           `yaml:"runCacheTTL"`
	IdempotencyTTL  time.Duration           `yaml:"idempotencyTTL"`
	ListLimit       int                     `yaml:"listLimit"`
	EventTopic      string                  `yaml:"eventTopic"`
	RateLimit       service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts        service.TimeoutConfig   `yaml:"timeouts"`
}

// AppConfig holds the codelab server configuration.
type AppConfig struct {
	Server ServerConfig  `yaml:"server"`
	Logger logger.Config `yaml:"logger"`
	Engine engine.Limits `yaml:"engine"`

	Database db.MySQLConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`

	Catalog    CatalogConfig    `yaml:"catalog"`
	Auth       auth.Config      `yaml:"auth"`
	Submission SubmissionConfig `yaml:"submission"`
}

// MinIOEnabled reports whether object storage is configured.
func (c *AppConfig) MinIOEnabled() bool {
	return c.MinIO.Endpoint != ""
}

// KafkaEnabled reports whether judged events are published.
func (c *AppConfig) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}
	if cfg.Catalog.Path == "" && cfg.Catalog.Object == "" {
		return nil, fmt.Errorf("catalog path or object is required")
	}
	if cfg.Catalog.Object != "" && (!cfg.MinIOEnabled() || cfg.MinIO.Bucket == "") {
		return nil, fmt.Errorf("catalog object requires minio endpoint and bucket")
	}
	applyRedisDefaults(&cfg.Redis)
	applyMySQLDefaults(&cfg.Database)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Engine.MaxLoopIterations <= 0 {
		cfg.Engine.MaxLoopIterations = engine.DefaultMaxLoopIterations
	}
	if cfg.Engine.MaxOutputBytes <= 0 {
		cfg.Engine.MaxOutputBytes = engine.DefaultMaxOutputBytes
	}
	if cfg.Engine.MaxArrayCells <= 0 {
		cfg.Engine.MaxArrayCells = engine.DefaultMaxArrayCells
	}

	if cfg.Submission.EventTopic == "" {
		cfg.Submission.EventTopic = defaultEventTopic
	}
	if cfg.Submission.RateLimit.UserMax > 0 && cfg.Submission.RateLimit.Window == 0 {
		cfg.Submission.RateLimit.Window = time.Minute
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func applyMySQLDefaults(cfg *db.MySQLConfig) {
	defaults := db.DefaultMySQLConfig()
	if cfg.MaxOpenConnections == 0 {
		cfg.MaxOpenConnections = defaults.MaxOpenConnections
	}
	if cfg.MaxIdleConnections == 0 {
		cfg.MaxIdleConnections = defaults.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}
