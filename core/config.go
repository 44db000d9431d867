package core

import "time"

// PredictConfig 是预测相关的配置接口，用于提供默认值。
type PredictConfig interface {
	// DefaultMaxConcurrency 返回单次预测内计算候选相似度的最大并发数
	DefaultMaxConcurrency() int

	// DefaultMinCoRated 返回候选用户至少需要的共同评分物品数
	DefaultMinCoRated() int

	// DefaultTimeout 返回默认的超时时间（由调用方施加在 ctx 上）
	DefaultTimeout() time.Duration
}

// DefaultPredictConfig 是默认的预测配置实现。
type DefaultPredictConfig struct{}

func (c *DefaultPredictConfig) DefaultMaxConcurrency() int {
	return 8
}

// DefaultMinCoRated 为 1：任何非空的共同评分向量都参与计算。
func (c *DefaultPredictConfig) DefaultMinCoRated() int {
	return 1
}

func (c *DefaultPredictConfig) DefaultTimeout() time.Duration {
	return 2 * time.Second
}
