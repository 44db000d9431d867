// Package ratingkit 是基于用户的协同过滤评分预测工具包。
//
// 设计要点：
// - 预测器只依赖 core.RatingStore 查询契约，不绑定存储引擎
// - 相似度为皮尔逊相关系数，退化输入返回哨兵值而不是数值错误
// - 每次预测从当前数据重新计算，无状态、可并发
package ratingkit

import (
	"github.com/rushteam/ratingkit/core"
	"github.com/rushteam/ratingkit/predict"
)

// 轻量 facade：便于用户直接 import "ratingkit" 使用核心抽象。
type (
	Predictor   = predict.Predictor
	Prediction  = predict.Prediction
	Option      = predict.Option
	RatingStore = core.RatingStore
	Rating      = core.Rating
	Neighbor    = core.Neighbor
)

// NewPredictor 创建预测器，等价于 predict.New。
func NewPredictor(store RatingStore, opts ...Option) *Predictor {
	return predict.New(store, opts...)
}
