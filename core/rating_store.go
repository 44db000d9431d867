package core

import "context"

// RatingStore 是评分数据的只读领域接口，预测器只依赖这一组查询。
//
// 原始数据访问是同一张评分表的自连接（"同物品"与"同用户"两个条件），
// 这里拆成显式的查询契约，与具体存储引擎解耦。
//
// 实现：
//   - store.MemoryRatingStore（内存）
//   - store.KVRatingStore（基于 core.Store：MemoryStore / RedisStore）
//   - store.SQLRatingStore（SQLite / PostgreSQL）
type RatingStore interface {
	// Name 返回存储后端名称（用于日志）
	Name() string

	// RatersOf 返回对 itemID 有评分的全部用户，不做任何排除
	RatersOf(ctx context.Context, itemID string) ([]string, error)

	// CoRatedPairs 返回 userA 与 userB 共同评分的物品上的分数对，
	// 每个物品一对，X 为 userA 的分数，Y 为 userB 的分数，顺序在同一数据上保持一致
	CoRatedPairs(ctx context.Context, userA, userB string) ([]ScorePair, error)

	// ScoreOf 返回 userID 对 itemID 的评分，不存在时返回 ErrRatingNotFound
	ScoreOf(ctx context.Context, userID, itemID string) (int, error)

	// HasUser 判断用户是否存在
	HasUser(ctx context.Context, userID string) (bool, error)

	// HasItem 判断物品是否存在
	HasItem(ctx context.Context, itemID string) (bool, error)
}

// RatingWriter 是评分数据的写接口，供数据加载和测试使用，预测器不依赖它。
type RatingWriter interface {
	// PutRating 写入一条评分，同一 (user, item) 覆盖旧值
	PutRating(ctx context.Context, r Rating) error
}

// RatingBackend 同时具备读写能力的评分存储。
type RatingBackend interface {
	RatingStore
	RatingWriter
	Close() error
}

var (
	// ErrUserNotFound 表示用户不存在
	ErrUserNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: user not found")

	// ErrItemNotFound 表示物品不存在
	ErrItemNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: item not found")

	// ErrRatingNotFound 表示评分不存在
	ErrRatingNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: rating not found")
)

// CoRating 是一个候选用户的完整共同评分数据：对目标物品的评分 + 与目标用户的分数对。
type CoRating struct {
	UserID string
	Score  int
	Pairs  []ScorePair
}

// CoRatingQuerier 是 RatingStore 的可选扩展：一次查询取回某个目标物品的全部候选用户
// 及其与目标用户的共同评分（SQL 后端用一条自连接完成）。
// 结果不包含目标用户自己，也不包含与目标用户没有共同评分物品的候选。
type CoRatingQuerier interface {
	CoRatingsFor(ctx context.Context, userID, itemID string) ([]CoRating, error)
}
