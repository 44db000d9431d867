package predict

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rushteam/ratingkit/core"
	"github.com/rushteam/ratingkit/pkg/dsl"
	"github.com/rushteam/ratingkit/store"
)

const predictEpsilon = 1e-9

// 目标用户 u 对 m1..m3 评分 1,2,3，未评 t。
//   - pos:      与 u 完全正相关（sim=1），t=4
//   - half:     与 u 部分相关（sim=0.5），t=2
//   - neg:      与 u 完全负相关（sim=-1），t=1
//   - flat:     共同评分为常数序列（sim=0），t=5
//   - stranger: 与 u 没有共同评分物品，t=5
var predictFixture = []core.Rating{
	{UserID: "u", ItemID: "m1", Score: 1},
	{UserID: "u", ItemID: "m2", Score: 2},
	{UserID: "u", ItemID: "m3", Score: 3},

	{UserID: "pos", ItemID: "m1", Score: 1},
	{UserID: "pos", ItemID: "m2", Score: 2},
	{UserID: "pos", ItemID: "m3", Score: 3},
	{UserID: "pos", ItemID: "t", Score: 4},

	{UserID: "half", ItemID: "m1", Score: 2},
	{UserID: "half", ItemID: "m2", Score: 1},
	{UserID: "half", ItemID: "m3", Score: 3},
	{UserID: "half", ItemID: "t", Score: 2},

	{UserID: "neg", ItemID: "m1", Score: 3},
	{UserID: "neg", ItemID: "m2", Score: 2},
	{UserID: "neg", ItemID: "m3", Score: 1},
	{UserID: "neg", ItemID: "t", Score: 1},
	{UserID: "neg", ItemID: "bad", Score: 1},

	{UserID: "flat", ItemID: "m1", Score: 3},
	{UserID: "flat", ItemID: "m2", Score: 3},
	{UserID: "flat", ItemID: "t", Score: 5},
	{UserID: "flat", ItemID: "bad", Score: 5},

	{UserID: "stranger", ItemID: "t", Score: 5},
	{UserID: "stranger", ItemID: "m9", Score: 5},
}

func newFixtureStore(t *testing.T) *store.MemoryRatingStore {
	s := store.NewMemoryRatingStore()
	ctx := context.Background()
	for _, r := range predictFixture {
		require.NoError(t, s.PutRating(ctx, r))
	}
	s.AddItem("lonely")
	return s
}

func fixtureStores(t *testing.T) map[string]core.RatingStore {
	ctx := context.Background()

	kv := store.NewKVRatingStore(store.NewMemoryStore(), "cf")
	require.NoError(t, kv.PutRatings(ctx, predictFixture))
	require.NoError(t, kv.AddItem(ctx, "lonely"))

	sqlStore, err := store.OpenSQLRatingStore(ctx, store.DialectSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlStore.PutRatings(ctx, predictFixture))
	require.NoError(t, sqlStore.AddItem(ctx, "lonely"))

	t.Cleanup(func() {
		_ = kv.Close()
		_ = sqlStore.Close()
	})
	return map[string]core.RatingStore{
		"memory": newFixtureStore(t),
		"kv":     kv,
		"sqlite": sqlStore,
	}
}

func TestPredictor_Predict(t *testing.T) {
	ctx := context.Background()
	for name, s := range fixtureStores(t) {
		for _, batch := range []bool{true, false} {
			p := New(s, WithLogger(zaptest.NewLogger(t)), WithBatchQuery(batch))

			got, err := p.Predict(ctx, "u", "t")
			require.NoError(t, err, name)
			assert.True(t, got.OK, name)
			// (1.0*4 + 0.5*2) / (1.0 + 0.5)
			assert.InDelta(t, 5.0/1.5, got.Score, predictEpsilon, name)
			require.Len(t, got.Neighbors, 2, name)
			assert.Equal(t, "pos", got.Neighbors[0].UserID, name)
			assert.InDelta(t, 1.0, got.Neighbors[0].Similarity, predictEpsilon, name)
			assert.Equal(t, 3, got.Neighbors[0].CoRated, name)
			assert.Equal(t, "half", got.Neighbors[1].UserID, name)
			assert.InDelta(t, 0.5, got.Neighbors[1].Similarity, predictEpsilon, name)
		}
	}
}

func TestPredictor_NoPrediction(t *testing.T) {
	ctx := context.Background()
	for name, s := range fixtureStores(t) {
		p := New(s)

		// 没有人评过该物品
		got, err := p.Predict(ctx, "u", "lonely")
		require.NoError(t, err, name)
		assert.False(t, got.OK, name)
		assert.Zero(t, got.Score, name)
		assert.Empty(t, got.Neighbors, name)

		// 候选全部非正相关
		got, err = p.Predict(ctx, "u", "bad")
		require.NoError(t, err, name)
		assert.False(t, got.OK, name)

		// 只有没有共同评分的候选
		got, err = p.Predict(ctx, "u", "m9")
		require.NoError(t, err, name)
		assert.False(t, got.OK, name)
	}
}

func TestPredictor_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range fixtureStores(t) {
		p := New(s)

		_, err := p.Predict(ctx, "ghost", "t")
		assert.ErrorIs(t, err, core.ErrUserNotFound, name)
		assert.True(t, core.IsNotFound(err), name)

		_, err = p.Predict(ctx, "u", "ghost")
		assert.ErrorIs(t, err, core.ErrItemNotFound, name)
	}
}

func TestPredictor_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := New(newFixtureStore(t), WithBatchQuery(false), WithMaxConcurrency(2))

	first, err := p.Predict(ctx, "u", "t")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := p.Predict(ctx, "u", "t")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPredictor_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	p := New(newFixtureStore(t), WithBatchQuery(false))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Predict(ctx, "u", "t")
			assert.NoError(t, err)
			assert.InDelta(t, 5.0/1.5, got.Score, predictEpsilon)
		}()
	}
	wg.Wait()
}

func TestPredictor_MinCoRated(t *testing.T) {
	p := New(newFixtureStore(t), WithMinCoRated(4))
	got, err := p.Predict(context.Background(), "u", "t")
	require.NoError(t, err)
	assert.False(t, got.OK)
}

func TestPredictor_CandidateFilter(t *testing.T) {
	filter, err := dsl.NewCandidateFilter(`neighbor.user_id != "pos"`)
	require.NoError(t, err)

	p := New(newFixtureStore(t), WithCandidateFilter(filter))
	got, err := p.Predict(context.Background(), "u", "t")
	require.NoError(t, err)
	require.True(t, got.OK)
	assert.InDelta(t, 2.0, got.Score, predictEpsilon)
	require.Len(t, got.Neighbors, 1)
	assert.Equal(t, "half", got.Neighbors[0].UserID)

	// 过滤器不能把非正相关的候选放回来
	all, err := dsl.NewCandidateFilter(`true`)
	require.NoError(t, err)
	got, err = New(newFixtureStore(t), WithCandidateFilter(all)).Predict(context.Background(), "u", "bad")
	require.NoError(t, err)
	assert.False(t, got.OK)
}

func TestPredictor_PredictMany(t *testing.T) {
	p := New(newFixtureStore(t))
	got, err := p.PredictMany(context.Background(), "u", []string{"t", "lonely", "bad"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got["t"].OK)
	assert.False(t, got["lonely"].OK)
	assert.False(t, got["bad"].OK)

	_, err = p.PredictMany(context.Background(), "u", []string{"t", "ghost"})
	assert.True(t, core.IsNotFound(err))
}

// failingStore 在 CoRatedPairs 上返回固定错误，用于验证错误原样透传。
type failingStore struct {
	core.RatingStore
	err error
}

func (f *failingStore) CoRatedPairs(ctx context.Context, userA, userB string) ([]core.ScorePair, error) {
	return nil, f.err
}

func TestPredictor_StoreErrorPropagates(t *testing.T) {
	unavailable := errors.New("connection refused")
	p := New(&failingStore{RatingStore: newFixtureStore(t), err: unavailable})

	_, err := p.Predict(context.Background(), "u", "t")
	assert.ErrorIs(t, err, unavailable)
}

func TestPredictor_NilStore(t *testing.T) {
	_, err := New(nil).Predict(context.Background(), "u", "t")
	assert.Error(t, err)
}

func TestWeightedAverage(t *testing.T) {
	got := weightedAverage([]core.Neighbor{
		{UserID: "a", Similarity: 0.8, Score: 4},
		{UserID: "b", Similarity: 0.5, Score: 2},
	})
	assert.InDelta(t, (0.8*4+0.5*2)/(0.8+0.5), got, predictEpsilon)
	assert.InDelta(t, 3.23, got, 0.005)
}

func TestNeighbors_ExcludesNonPositive(t *testing.T) {
	p := New(nil)
	got, err := p.neighbors("u", "t", []core.CoRating{
		{UserID: "neg", Score: 1, Pairs: []core.ScorePair{{X: 1, Y: 3}, {X: 2, Y: 2}, {X: 3, Y: 1}}},
		{UserID: "flat", Score: 5, Pairs: []core.ScorePair{{X: 1, Y: 3}, {X: 2, Y: 3}}},
		{UserID: "empty", Score: 5},
		{UserID: "flatreal", Score: 5, Pairs: []core.ScorePair{
			{X: 1, Y: 0.1}, {X: 2, Y: 0.1}, {X: 3, Y: 0.1}, {X: 4, Y: 0.1}, {X: 5, Y: 0.1}, {X: 6, Y: 0.1},
		}},
		{UserID: "u", Score: 5, Pairs: []core.ScorePair{{X: 1, Y: 1}, {X: 2, Y: 2}}},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
