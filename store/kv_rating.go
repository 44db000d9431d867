package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/rushteam/ratingkit/core"
)

// KVRatingStore 是基于 core.Store 接口的评分存储适配器，
// 可以把评分数据放在 MemoryStore、RedisStore 等任意 KV 后端上。
//
// Key 布局（值均为 JSON）：
//   - 用户评分：{KeyPrefix}:user:{userID} -> map[itemID]score
//   - 物品评分：{KeyPrefix}:item:{itemID} -> map[userID]score
//
// 写操作是读-改-写，同一进程内由互斥锁串行化；多进程并发写同一个 key 不安全。
type KVRatingStore struct {
	store core.Store
	mu    sync.Mutex

	KeyPrefix string
}

// NewKVRatingStore 创建一个基于 core.Store 的评分存储适配器。
func NewKVRatingStore(s core.Store, keyPrefix string) *KVRatingStore {
	if keyPrefix == "" {
		keyPrefix = "cf"
	}
	return &KVRatingStore{
		store:     s,
		KeyPrefix: keyPrefix,
	}
}

func (a *KVRatingStore) Name() string {
	return "kv_rating:" + a.store.Name()
}

func (a *KVRatingStore) userKey(userID string) string { return a.KeyPrefix + ":user:" + userID }
func (a *KVRatingStore) itemKey(itemID string) string { return a.KeyPrefix + ":item:" + itemID }

// load 读取一个 JSON map，key 不存在时返回 notFound。
func (a *KVRatingStore) load(ctx context.Context, key string, notFound error) (map[string]int, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	result := make(map[string]int)
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return result, nil
}

func (a *KVRatingStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *KVRatingStore) RatersOf(ctx context.Context, itemID string) ([]string, error) {
	users, err := a.load(ctx, a.itemKey(itemID), core.ErrItemNotFound)
	if err != nil {
		return nil, err
	}
	return sortedKeys(users), nil
}

func (a *KVRatingStore) CoRatedPairs(ctx context.Context, userA, userB string) ([]core.ScorePair, error) {
	keyA, keyB := a.userKey(userA), a.userKey(userB)
	data, err := a.store.BatchGet(ctx, []string{keyA, keyB})
	if err != nil {
		return nil, err
	}

	decode := func(key string) (map[string]int, error) {
		raw, ok := data[key]
		if !ok {
			return nil, core.ErrUserNotFound
		}
		m := make(map[string]int)
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return m, nil
	}

	itemsA, err := decode(keyA)
	if err != nil {
		return nil, err
	}
	itemsB, err := decode(keyB)
	if err != nil {
		return nil, err
	}
	return coRated(itemsA, itemsB), nil
}

func (a *KVRatingStore) ScoreOf(ctx context.Context, userID, itemID string) (int, error) {
	items, err := a.load(ctx, a.userKey(userID), core.ErrRatingNotFound)
	if err != nil {
		return 0, err
	}
	score, ok := items[itemID]
	if !ok {
		return 0, core.ErrRatingNotFound
	}
	return score, nil
}

func (a *KVRatingStore) HasUser(ctx context.Context, userID string) (bool, error) {
	return a.exists(ctx, a.userKey(userID))
}

func (a *KVRatingStore) HasItem(ctx context.Context, itemID string) (bool, error) {
	return a.exists(ctx, a.itemKey(itemID))
}

// AddUser 登记一个尚无评分的用户（写入空 map）。
func (a *KVRatingStore) AddUser(ctx context.Context, userID string) error {
	return a.touch(ctx, a.userKey(userID))
}

// AddItem 登记一个尚无评分的物品（写入空 map）。
func (a *KVRatingStore) AddItem(ctx context.Context, itemID string) error {
	return a.touch(ctx, a.itemKey(itemID))
}

func (a *KVRatingStore) touch(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ok, err := a.exists(ctx, key)
	if err != nil || ok {
		return err
	}
	return a.store.Set(ctx, key, []byte("{}"))
}

func (a *KVRatingStore) PutRating(ctx context.Context, r core.Rating) error {
	if r.UserID == "" || r.ItemID == "" {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: rating requires user and item")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	userKey, itemKey := a.userKey(r.UserID), a.itemKey(r.ItemID)
	userItems, err := a.load(ctx, userKey, nil)
	if err != nil {
		return err
	}
	itemUsers, err := a.load(ctx, itemKey, nil)
	if err != nil {
		return err
	}
	if userItems == nil {
		userItems = make(map[string]int)
	}
	if itemUsers == nil {
		itemUsers = make(map[string]int)
	}
	userItems[r.ItemID] = r.Score
	itemUsers[r.UserID] = r.Score

	userData, err := json.Marshal(userItems)
	if err != nil {
		return err
	}
	itemData, err := json.Marshal(itemUsers)
	if err != nil {
		return err
	}
	return a.store.BatchSet(ctx, map[string][]byte{
		userKey: userData,
		itemKey: itemData,
	})
}

// PutRatings 批量写入评分，按用户/物品聚合后一次 BatchSet。
func (a *KVRatingStore) PutRatings(ctx context.Context, ratings []core.Rating) error {
	userItems := make(map[string]map[string]int)
	itemUsers := make(map[string]map[string]int)
	for i, r := range ratings {
		if r.UserID == "" || r.ItemID == "" {
			return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput,
				"store: rating #"+strconv.Itoa(i)+" requires user and item")
		}
		if userItems[r.UserID] == nil {
			userItems[r.UserID] = make(map[string]int)
		}
		userItems[r.UserID][r.ItemID] = r.Score
		if itemUsers[r.ItemID] == nil {
			itemUsers[r.ItemID] = make(map[string]int)
		}
		itemUsers[r.ItemID][r.UserID] = r.Score
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	kvs := make(map[string][]byte, len(userItems)+len(itemUsers))
	merge := func(key string, fresh map[string]int) error {
		old, err := a.load(ctx, key, nil)
		if err != nil {
			return err
		}
		if old == nil {
			old = make(map[string]int, len(fresh))
		}
		for k, v := range fresh {
			old[k] = v
		}
		data, err := json.Marshal(old)
		if err != nil {
			return err
		}
		kvs[key] = data
		return nil
	}

	for userID, items := range userItems {
		if err := merge(a.userKey(userID), items); err != nil {
			return err
		}
	}
	for itemID, users := range itemUsers {
		if err := merge(a.itemKey(itemID), users); err != nil {
			return err
		}
	}
	return a.store.BatchSet(ctx, kvs)
}

func (a *KVRatingStore) Close() error {
	return a.store.Close()
}

var _ core.RatingBackend = (*KVRatingStore)(nil)
