// Package similarity 计算两个评分序列之间的相似度。
package similarity

import (
	"math"

	"github.com/rushteam/ratingkit/core"
)

// NoCorrelation 是退化输入（空序列、某一维方差为 0）的哨兵值。
// 常数评分序列不携带线性相关信息，按"无相关"处理。
const NoCorrelation = 0.0

// Pearson 计算皮尔逊积矩相关系数（闭式公式）：
//
//	r = (n·Σxy − Σx·Σy) / sqrt[(n·Σx² − (Σx)²) · (n·Σy² − (Σy)²)]
//
// 空序列或任一维方差为 0 时返回 NoCorrelation，不会出现除零。
// 结果截断到 [-1, 1]，吸收浮点误差。
func Pearson(pairs []core.ScorePair) float64 {
	if len(pairs) == 0 {
		return NoCorrelation
	}

	var sumX, sumY, sumXX, sumYY, sumXY float64
	constX, constY := true, true
	for _, p := range pairs {
		constX = constX && p.X == pairs[0].X
		constY = constY && p.Y == pairs[0].Y
		sumX += p.X
		sumY += p.Y
		sumXX += p.X * p.X
		sumYY += p.Y * p.Y
		sumXY += p.X * p.Y
	}
	// 闭式方差对非整数常数序列会因抵消误差得到极小的正数，需先直接判断
	if constX || constY {
		return NoCorrelation
	}
	n := float64(len(pairs))

	varX := n*sumXX - sumX*sumX
	varY := n*sumYY - sumY*sumY
	if varX <= 0 || varY <= 0 {
		return NoCorrelation
	}

	denominator := math.Sqrt(varX * varY)
	if denominator == 0 || math.IsNaN(denominator) || math.IsInf(denominator, 0) {
		return NoCorrelation
	}

	r := (n*sumXY - sumX*sumY) / denominator
	switch {
	case math.IsNaN(r):
		return NoCorrelation
	case r > 1:
		return 1
	case r < -1:
		return -1
	}
	return r
}

// PearsonSlices 是 Pearson 的切片版本，x 与 y 长度不一致时返回 NoCorrelation。
func PearsonSlices(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return NoCorrelation
	}
	pairs := make([]core.ScorePair, len(x))
	for i := range x {
		pairs[i] = core.ScorePair{X: x[i], Y: y[i]}
	}
	return Pearson(pairs)
}
