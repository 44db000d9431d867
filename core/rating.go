package core

// Rating 是一条评分观测：某个用户对某个物品打出的整数分。
// 同一 (UserID, ItemID) 最多只有一条，由存储层保证（重复写入即覆盖）。
type Rating struct {
	UserID string `json:"user_id" yaml:"user_id"`
	ItemID string `json:"item_id" yaml:"item_id"`
	Score  int    `json:"score" yaml:"score"`
}

// ScorePair 是两个用户在同一个共同评分物品上的分数对。
// X 为目标用户的分数，Y 为候选用户的分数。
type ScorePair struct {
	X float64
	Y float64
}

// Swap 交换 X / Y。
func (p ScorePair) Swap() ScorePair {
	return ScorePair{X: p.Y, Y: p.X}
}

// Neighbor 是一个参与预测的候选用户（邻居）。
// 只在单次预测内存在，不会被缓存。
type Neighbor struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"` // 与目标用户的皮尔逊相关系数
	Score      float64 `json:"score"`      // 候选用户对目标物品的已知评分
	CoRated    int     `json:"co_rated"`   // 共同评分物品数
}
