package predict

import (
	"go.uber.org/zap"

	"github.com/rushteam/ratingkit/pkg/dsl"
)

// Option 配置 Predictor。
type Option func(*Predictor)

// WithLogger 设置日志，默认 zap.NewNop()。
func WithLogger(logger *zap.Logger) Option {
	return func(p *Predictor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxConcurrency 设置单次预测内查询候选用户的最大并发数，<= 0 使用默认值。
func WithMaxConcurrency(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithMinCoRated 设置候选用户至少需要的共同评分物品数，<= 0 使用默认值。
func WithMinCoRated(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.minCoRated = n
		}
	}
}

// WithCandidateFilter 追加一个候选用户表达式过滤器。
// 过滤器在相似度 > 0 的判断之后执行，只能进一步排除候选。
func WithCandidateFilter(f *dsl.CandidateFilter) Option {
	return func(p *Predictor) {
		p.filter = f
	}
}

// WithBatchQuery 控制是否使用 core.CoRatingQuerier 的一次性查询（默认开启）。
// 关闭后总是按 RatersOf → CoRatedPairs/ScoreOf 逐个候选并发查询。
func WithBatchQuery(enabled bool) Option {
	return func(p *Predictor) {
		p.batchQuery = enabled
	}
}
