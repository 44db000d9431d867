// Package predict 实现基于用户的协同过滤评分预测（User-based CF）。
//
// 算法流程：
//  1. 找出对目标物品评过分的其他用户（候选）
//  2. 取每个候选与目标用户的共同评分向量，计算皮尔逊相关系数
//  3. 丢弃相似度不严格大于 0 的候选
//  4. 以相似度为权重，对候选在目标物品上的评分做加权平均
//
// 每次预测都从当前数据重新计算，不缓存相似度。
package predict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/ratingkit/core"
	"github.com/rushteam/ratingkit/pkg/dsl"
	"github.com/rushteam/ratingkit/similarity"
)

// Prediction 是一次预测的结果。
// OK 为 false 表示没有可用信号（NoPrediction），与预测值为 0 不同。
type Prediction struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
	OK     bool    `json:"ok"`

	// Neighbors 是参与加权的候选用户，按相似度降序
	Neighbors []core.Neighbor `json:"neighbors,omitempty"`
}

// Predictor 是评分预测器，无可变状态，可并发使用。
type Predictor struct {
	store          core.RatingStore
	logger         *zap.Logger
	maxConcurrency int
	minCoRated     int
	filter         *dsl.CandidateFilter
	batchQuery     bool
}

// New 创建预测器。
func New(store core.RatingStore, opts ...Option) *Predictor {
	defaults := &core.DefaultPredictConfig{}
	p := &Predictor{
		store:          store,
		logger:         zap.NewNop(),
		maxConcurrency: defaults.DefaultMaxConcurrency(),
		minCoRated:     defaults.DefaultMinCoRated(),
		batchQuery:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict 预测 userID 对 itemID 的评分。
//
// 用户或物品不存在（RatingStore.HasUser / HasItem 返回 false）时返回
// core.ErrUserNotFound / core.ErrItemNotFound，即存储层定义的 NOT_FOUND 错误；
// 存储层自身返回的错误以 %w 包装后原样透传。没有任何相似度为正的候选时
// 返回 OK=false 的 Prediction。结果不做取整或截断。
func (p *Predictor) Predict(ctx context.Context, userID, itemID string) (Prediction, error) {
	if p.store == nil {
		return Prediction{}, errors.New("predict: nil rating store")
	}
	if err := p.checkExists(ctx, userID, itemID); err != nil {
		return Prediction{}, err
	}

	candidates, err := p.coRatings(ctx, userID, itemID)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict %s/%s: %w", userID, itemID, err)
	}

	neighbors, err := p.neighbors(userID, itemID, candidates)
	if err != nil {
		return Prediction{}, err
	}

	result := Prediction{UserID: userID, ItemID: itemID}
	if len(neighbors) > 0 {
		result.Score = weightedAverage(neighbors)
		result.OK = true
		result.Neighbors = neighbors
	}

	p.logger.Debug("predict rating",
		zap.String("store", p.store.Name()),
		zap.String("user_id", userID),
		zap.String("item_id", itemID),
		zap.Int("candidates", len(candidates)),
		zap.Int("neighbors", len(neighbors)),
		zap.Bool("ok", result.OK),
		zap.Float64("score", result.Score))
	return result, nil
}

// PredictMany 并发预测 userID 对多个物品的评分，任一预测出错则整体返回错误。
func (p *Predictor) PredictMany(ctx context.Context, userID string, itemIDs []string) (map[string]Prediction, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]Prediction, len(itemIDs))
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.maxConcurrency)
	for _, itemID := range itemIDs {
		eg.Go(func() error {
			prediction, err := p.Predict(egCtx, userID, itemID)
			if err != nil {
				return err
			}
			mu.Lock()
			results[itemID] = prediction
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Predictor) checkExists(ctx context.Context, userID, itemID string) error {
	ok, err := p.store.HasUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("predict: lookup user %s: %w", userID, err)
	}
	if !ok {
		return core.ErrUserNotFound
	}
	ok, err = p.store.HasItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("predict: lookup item %s: %w", itemID, err)
	}
	if !ok {
		return core.ErrItemNotFound
	}
	return nil
}

// coRatings 取回全部候选的共同评分数据，不含目标用户，不含共同评分为空的候选。
func (p *Predictor) coRatings(ctx context.Context, userID, itemID string) ([]core.CoRating, error) {
	if querier, ok := p.store.(core.CoRatingQuerier); ok && p.batchQuery {
		return querier.CoRatingsFor(ctx, userID, itemID)
	}

	raters, err := p.store.RatersOf(ctx, itemID)
	if err != nil {
		return nil, err
	}

	results := make([]*core.CoRating, len(raters))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.maxConcurrency)
	for i, candidate := range raters {
		if candidate == userID {
			continue
		}
		eg.Go(func() error {
			pairs, err := p.store.CoRatedPairs(egCtx, userID, candidate)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				return nil
			}
			score, err := p.store.ScoreOf(egCtx, candidate, itemID)
			if err != nil {
				return err
			}
			results[i] = &core.CoRating{UserID: candidate, Score: score, Pairs: pairs}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.CoRating, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// neighbors 计算相似度并过滤，结果按相似度降序、用户 ID 升序排列。
func (p *Predictor) neighbors(userID, itemID string, candidates []core.CoRating) ([]core.Neighbor, error) {
	out := make([]core.Neighbor, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == userID || len(c.Pairs) == 0 || len(c.Pairs) < p.minCoRated {
			continue
		}
		sim := similarity.Pearson(c.Pairs)
		// 相似度 <= 0 的候选不提供预测信号，直接排除而不是降权；
		// 这同时保证了分母 Σsim 严格大于 0。
		if sim <= 0 {
			continue
		}
		n := core.Neighbor{
			UserID:     c.UserID,
			Similarity: sim,
			Score:      float64(c.Score),
			CoRated:    len(c.Pairs),
		}
		if p.filter != nil {
			ok, err := p.filter.Match(n, userID, itemID)
			if err != nil {
				return nil, fmt.Errorf("predict: candidate filter %q: %w", p.filter.String(), err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// weightedAverage 计算 Σ(sim·score) / Σsim，调用方保证 neighbors 非空且 sim > 0。
func weightedAverage(neighbors []core.Neighbor) float64 {
	var numerator, denominator float64
	for _, n := range neighbors {
		numerator += n.Similarity * n.Score
		denominator += n.Similarity
	}
	return numerator / denominator
}
