package store

import (
	"context"
	"sync"

	"github.com/rushteam/ratingkit/core"
)

// MemoryRatingStore 是内存实现的 core.RatingBackend。
// 同时维护 用户→物品 与 物品→用户 两个索引。
type MemoryRatingStore struct {
	mu     sync.RWMutex
	byUser map[string]map[string]int // userID -> itemID -> score
	byItem map[string]map[string]int // itemID -> userID -> score
}

func NewMemoryRatingStore() *MemoryRatingStore {
	return &MemoryRatingStore{
		byUser: make(map[string]map[string]int),
		byItem: make(map[string]map[string]int),
	}
}

func (s *MemoryRatingStore) Name() string { return "memory_rating" }

// AddUser 登记一个尚无评分的用户。
func (s *MemoryRatingStore) AddUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]int)
	}
}

// AddItem 登记一个尚无评分的物品。
func (s *MemoryRatingStore) AddItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byItem[itemID] == nil {
		s.byItem[itemID] = make(map[string]int)
	}
}

func (s *MemoryRatingStore) PutRating(ctx context.Context, r core.Rating) error {
	if r.UserID == "" || r.ItemID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: rating requires user and item")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byUser[r.UserID] == nil {
		s.byUser[r.UserID] = make(map[string]int)
	}
	s.byUser[r.UserID][r.ItemID] = r.Score

	if s.byItem[r.ItemID] == nil {
		s.byItem[r.ItemID] = make(map[string]int)
	}
	s.byItem[r.ItemID][r.UserID] = r.Score
	return nil
}

func (s *MemoryRatingStore) RatersOf(ctx context.Context, itemID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, ok := s.byItem[itemID]
	if !ok {
		return nil, core.ErrItemNotFound
	}
	return sortedKeys(users), nil
}

func (s *MemoryRatingStore) CoRatedPairs(ctx context.Context, userA, userB string) ([]core.ScorePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	itemsA, ok := s.byUser[userA]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	itemsB, ok := s.byUser[userB]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return coRated(itemsA, itemsB), nil
}

func (s *MemoryRatingStore) ScoreOf(ctx context.Context, userID, itemID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.byUser[userID][itemID]
	if !ok {
		return 0, core.ErrRatingNotFound
	}
	return score, nil
}

func (s *MemoryRatingStore) HasUser(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUser[userID]
	return ok, nil
}

func (s *MemoryRatingStore) HasItem(ctx context.Context, itemID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byItem[itemID]
	return ok, nil
}

// CoRatingsFor 实现 core.CoRatingQuerier。
func (s *MemoryRatingStore) CoRatingsFor(ctx context.Context, userID, itemID string) ([]core.CoRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.byUser[userID]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	raters, ok := s.byItem[itemID]
	if !ok {
		return nil, core.ErrItemNotFound
	}

	out := make([]core.CoRating, 0, len(raters))
	for _, candidate := range sortedKeys(raters) {
		if candidate == userID {
			continue
		}
		pairs := coRated(target, s.byUser[candidate])
		if len(pairs) == 0 {
			continue
		}
		out = append(out, core.CoRating{UserID: candidate, Score: raters[candidate], Pairs: pairs})
	}
	return out, nil
}

func (s *MemoryRatingStore) Close() error { return nil }

// coRated 按物品 ID 升序生成分数对，X 取自 a，Y 取自 b。
func coRated(a, b map[string]int) []core.ScorePair {
	pairs := make([]core.ScorePair, 0)
	for _, itemID := range sortedKeys(a) {
		if scoreB, ok := b[itemID]; ok {
			pairs = append(pairs, core.ScorePair{X: float64(a[itemID]), Y: float64(scoreB)})
		}
	}
	return pairs
}

var (
	_ core.RatingBackend   = (*MemoryRatingStore)(nil)
	_ core.CoRatingQuerier = (*MemoryRatingStore)(nil)
)
