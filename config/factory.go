package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rushteam/ratingkit/core"
	"github.com/rushteam/ratingkit/pkg/dsl"
	"github.com/rushteam/ratingkit/predict"
	"github.com/rushteam/ratingkit/store"
)

// NewLogger 根据 LogConfig 构建 zap.Logger。
func (c *Config) NewLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if c.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if c.Log.Level != "" {
		level, err := zapcore.ParseLevel(c.Log.Level)
		if err != nil {
			return nil, core.NewDomainError(core.ModuleConfig, core.ErrorCodeInvalidInput,
				fmt.Sprintf("config: invalid log level %q", c.Log.Level))
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg.Build()
}

// OpenStore 根据 StoreConfig 打开评分存储。
func (c *Config) OpenStore(ctx context.Context) (core.RatingBackend, error) {
	switch c.Store.Backend {
	case BackendMemory:
		return store.NewMemoryRatingStore(), nil
	case BackendKVMemory:
		return store.NewKVRatingStore(store.NewMemoryStore(), c.Store.KeyPrefix), nil
	case BackendRedis:
		kv, err := store.NewRedisStore(ctx, c.Store.Redis.Addr, c.Store.Redis.Password, c.Store.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("open redis %s: %w", c.Store.Redis.Addr, err)
		}
		return store.NewKVRatingStore(kv, c.Store.KeyPrefix), nil
	case BackendSQLite:
		return store.OpenSQLRatingStore(ctx, store.DialectSQLite, c.Store.DSN)
	case BackendPostgres:
		return store.OpenSQLRatingStore(ctx, store.DialectPostgres, c.Store.DSN)
	default:
		return nil, core.NewDomainError(core.ModuleConfig, core.ErrorCodeNotSupported,
			fmt.Sprintf("config: unknown store backend %q", c.Store.Backend))
	}
}

// NewPredictor 根据 PredictConfig 构建预测器。
func (c *Config) NewPredictor(ratings core.RatingStore, logger *zap.Logger) (*predict.Predictor, error) {
	opts := []predict.Option{
		predict.WithLogger(logger),
		predict.WithMaxConcurrency(c.Predict.MaxConcurrency),
		predict.WithMinCoRated(c.Predict.MinCoRated),
	}
	if c.Predict.BatchQuery != nil {
		opts = append(opts, predict.WithBatchQuery(*c.Predict.BatchQuery))
	}
	if c.Predict.CandidateFilter != "" {
		filter, err := dsl.NewCandidateFilter(c.Predict.CandidateFilter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, predict.WithCandidateFilter(filter))
	}
	return predict.New(ratings, opts...), nil
}
