package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/ratingkit/core"
)

// 存储后端
const (
	BackendMemory   = "memory"    // store.MemoryRatingStore
	BackendKVMemory = "kv-memory" // store.KVRatingStore + store.MemoryStore
	BackendRedis    = "redis"     // store.KVRatingStore + store.RedisStore
	BackendSQLite   = "sqlite"    // store.SQLRatingStore (modernc.org/sqlite)
	BackendPostgres = "postgres"  // store.SQLRatingStore (lib/pq)
)

// Config 是 ratingkit 的配置结构（YAML）。
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Predict PredictConfig `yaml:"predict"`
}

type LogConfig struct {
	Level       string `yaml:"level"`       // debug / info / warn / error
	Development bool   `yaml:"development"` // 开发模式（console 格式）
}

type StoreConfig struct {
	Backend   string      `yaml:"backend"`
	KeyPrefix string      `yaml:"key_prefix"` // KV 后端的 key 前缀
	DSN       string      `yaml:"dsn"`        // SQL 后端的连接串
	Redis     RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PredictConfig struct {
	MaxConcurrency  int           `yaml:"max_concurrency"`
	MinCoRated      int           `yaml:"min_co_rated"`
	CandidateFilter string        `yaml:"candidate_filter"` // CEL 表达式，可选
	BatchQuery      *bool         `yaml:"batch_query"`      // 默认 true
	Timeout         time.Duration `yaml:"timeout"`          // 单次预测超时
}

// Default 返回默认配置：内存存储 + 默认预测参数。
func Default() *Config {
	defaults := &core.DefaultPredictConfig{}
	batch := true
	return &Config{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Backend:   BackendMemory,
			KeyPrefix: "cf",
			Redis:     RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Predict: PredictConfig{
			MaxConcurrency: defaults.DefaultMaxConcurrency(),
			MinCoRated:     defaults.DefaultMinCoRated(),
			BatchQuery:     &batch,
			Timeout:        defaults.DefaultTimeout(),
		},
	}
}

// Load 从 YAML 文件加载配置，未设置的字段取默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置并校验。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置。
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return core.NewDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput, fmt.Sprintf("config: "+format, args...))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendKVMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return invalid("store.redis.addr is required for backend %q", c.Store.Backend)
		}
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for backend %q", c.Store.Backend)
		}
	default:
		return invalid("unknown store backend %q", c.Store.Backend)
	}

	if c.Predict.MaxConcurrency < 0 {
		return invalid("predict.max_concurrency must be >= 0, got %d", c.Predict.MaxConcurrency)
	}
	if c.Predict.MinCoRated < 0 {
		return invalid("predict.min_co_rated must be >= 0, got %d", c.Predict.MinCoRated)
	}
	if c.Predict.Timeout < 0 {
		return invalid("predict.timeout must be >= 0, got %s", c.Predict.Timeout)
	}
	return nil
}
