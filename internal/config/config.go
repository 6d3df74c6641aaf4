package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // progress cache entry lifetime
}

type QueueConfig struct {
	RedisURL    string `yaml:"redis_url"` // asynq broker; defaults to redis.url
	Concurrency int    `yaml:"concurrency"`
	Queue       string `yaml:"queue"`
	MaxRetry    int    `yaml:"max_retry"`
}

type JobsConfig struct {
	ChunkSize int    `yaml:"chunk_size"` // rows per progress update / cancel check
	MaxRows   int    `yaml:"max_rows"`   // import dataset ceiling
	DataDir   string `yaml:"data_dir"`   // artifact storage root
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
	PageSize  int    `yaml:"page_size"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Queue.RedisURL == "" {
		// redis.url is host:port; asynq wants a URI.
		cfg.Queue.RedisURL = "redis://" + cfg.Redis.URL
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.Queue == "" {
		cfg.Queue.Queue = "jobs"
	}
	if cfg.Queue.MaxRetry < 0 {
		cfg.Queue.MaxRetry = 0
	}
	if cfg.Jobs.ChunkSize <= 0 {
		cfg.Jobs.ChunkSize = 100
	}
	if cfg.Jobs.MaxRows <= 0 {
		cfg.Jobs.MaxRows = 100000
	}
	if cfg.Jobs.DataDir == "" {
		cfg.Jobs.DataDir = "data"
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.PageSize <= 0 {
		cfg.Admin.PageSize = 50
	}
}
