package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/rushteam/ratingkit/core"
)

var fixtureRatings = []core.Rating{
	{UserID: "alice", ItemID: "m1", Score: 5},
	{UserID: "alice", ItemID: "m2", Score: 3},
	{UserID: "alice", ItemID: "m3", Score: 4},
	{UserID: "bob", ItemID: "m1", Score: 4},
	{UserID: "bob", ItemID: "m2", Score: 2},
	{UserID: "bob", ItemID: "m4", Score: 1},
	{UserID: "carol", ItemID: "m3", Score: 2},
	{UserID: "carol", ItemID: "m4", Score: 5},
}

// ratingStoreTestSuite 对所有 core.RatingBackend 实现跑同一组契约测试。
type ratingStoreTestSuite struct {
	suite.Suite
	open    func() core.RatingBackend
	backend core.RatingBackend
}

func (s *ratingStoreTestSuite) SetupTest() {
	s.backend = s.open()
	ctx := context.Background()
	for _, r := range fixtureRatings {
		s.Require().NoError(s.backend.PutRating(ctx, r))
	}
}

func (s *ratingStoreTestSuite) TearDownTest() {
	s.NoError(s.backend.Close())
}

func (s *ratingStoreTestSuite) TestRatersOf() {
	ctx := context.Background()
	raters, err := s.backend.RatersOf(ctx, "m4")
	s.NoError(err)
	s.Equal([]string{"bob", "carol"}, raters)

	raters, err = s.backend.RatersOf(ctx, "m1")
	s.NoError(err)
	s.Equal([]string{"alice", "bob"}, raters)

	_, err = s.backend.RatersOf(ctx, "unknown")
	s.True(core.IsNotFound(err))
}

func (s *ratingStoreTestSuite) TestCoRatedPairs() {
	ctx := context.Background()
	pairs, err := s.backend.CoRatedPairs(ctx, "alice", "bob")
	s.NoError(err)
	s.Equal([]core.ScorePair{{X: 5, Y: 4}, {X: 3, Y: 2}}, pairs)

	// 交换参数后分量也交换
	pairs, err = s.backend.CoRatedPairs(ctx, "bob", "alice")
	s.NoError(err)
	s.Equal([]core.ScorePair{{X: 4, Y: 5}, {X: 2, Y: 3}}, pairs)

	pairs, err = s.backend.CoRatedPairs(ctx, "alice", "carol")
	s.NoError(err)
	s.Equal([]core.ScorePair{{X: 4, Y: 2}}, pairs)

	_, err = s.backend.CoRatedPairs(ctx, "alice", "nobody")
	s.True(core.IsNotFound(err))
}

func (s *ratingStoreTestSuite) TestScoreOf() {
	ctx := context.Background()
	score, err := s.backend.ScoreOf(ctx, "carol", "m4")
	s.NoError(err)
	s.Equal(5, score)

	_, err = s.backend.ScoreOf(ctx, "carol", "m1")
	s.ErrorIs(err, core.ErrRatingNotFound)
}

func (s *ratingStoreTestSuite) TestHasUserAndItem() {
	ctx := context.Background()
	ok, err := s.backend.HasUser(ctx, "alice")
	s.NoError(err)
	s.True(ok)
	ok, err = s.backend.HasUser(ctx, "nobody")
	s.NoError(err)
	s.False(ok)

	ok, err = s.backend.HasItem(ctx, "m3")
	s.NoError(err)
	s.True(ok)
	ok, err = s.backend.HasItem(ctx, "m9")
	s.NoError(err)
	s.False(ok)
}

func (s *ratingStoreTestSuite) TestPutRatingOverwrites() {
	ctx := context.Background()
	s.NoError(s.backend.PutRating(ctx, core.Rating{UserID: "alice", ItemID: "m1", Score: 1}))

	score, err := s.backend.ScoreOf(ctx, "alice", "m1")
	s.NoError(err)
	s.Equal(1, score)

	raters, err := s.backend.RatersOf(ctx, "m1")
	s.NoError(err)
	s.Equal([]string{"alice", "bob"}, raters)

	err = s.backend.PutRating(ctx, core.Rating{UserID: "", ItemID: "m1", Score: 1})
	s.True(core.IsInvalidInput(err))
}

func (s *ratingStoreTestSuite) TestCoRatingsFor() {
	querier, ok := s.backend.(core.CoRatingQuerier)
	if !ok {
		s.T().Skip("backend does not implement core.CoRatingQuerier")
	}
	ctx := context.Background()
	s.NoError(s.backend.PutRating(ctx, core.Rating{UserID: "dave", ItemID: "m4", Score: 3}))

	got, err := querier.CoRatingsFor(ctx, "alice", "m4")
	s.NoError(err)
	// dave 与 alice 没有共同评分物品，不出现在结果中
	s.Equal([]core.CoRating{
		{UserID: "bob", Score: 1, Pairs: []core.ScorePair{{X: 5, Y: 4}, {X: 3, Y: 2}}},
		{UserID: "carol", Score: 5, Pairs: []core.ScorePair{{X: 4, Y: 2}}},
	}, got)
}

func TestMemoryRatingStore(t *testing.T) {
	suite.Run(t, &ratingStoreTestSuite{open: func() core.RatingBackend {
		return NewMemoryRatingStore()
	}})
}

func TestKVRatingStore_Memory(t *testing.T) {
	suite.Run(t, &ratingStoreTestSuite{open: func() core.RatingBackend {
		return NewKVRatingStore(NewMemoryStore(), "test")
	}})
}

func TestKVRatingStore_Redis(t *testing.T) {
	server := miniredis.RunT(t)
	suite.Run(t, &ratingStoreTestSuite{open: func() core.RatingBackend {
		server.FlushAll()
		kv, err := NewRedisStore(context.Background(), server.Addr(), "", 0)
		require.NoError(t, err)
		return NewKVRatingStore(kv, "test")
	}})
}

func TestSQLRatingStore_SQLite(t *testing.T) {
	suite.Run(t, &ratingStoreTestSuite{open: func() core.RatingBackend {
		s, err := OpenSQLRatingStore(context.Background(), DialectSQLite, ":memory:")
		require.NoError(t, err)
		return s
	}})
}

func TestSQLRatingStore_Schema(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLRatingStore(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.PutRating(ctx, core.Rating{UserID: "u1", ItemID: "m1", Score: 4}))

	// 元数据列可为空，仅靠评分写入的用户/物品不需要填写
	var email, zipcode sql.NullString
	var age sql.NullInt64
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT email, age, zipcode FROM users WHERE user_id = ?`, "u1").Scan(&email, &age, &zipcode))
	require.False(t, email.Valid || age.Valid || zipcode.Valid)

	var title, imdbURL sql.NullString
	var releasedAt sql.NullString
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT title, released_at, imdb_url FROM items WHERE item_id = ?`, "m1").Scan(&title, &releasedAt, &imdbURL))
	require.False(t, title.Valid || releasedAt.Valid || imdbURL.Valid)

	// 重复建表是幂等的
	require.NoError(t, s.EnsureSchema(ctx))
}

func TestSQLRatingStore_Rebind(t *testing.T) {
	pg := NewSQLRatingStore(nil, DialectPostgres)
	require.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := NewSQLRatingStore(nil, DialectSQLite)
	require.Equal(t, "SELECT 1 WHERE a = ?", lite.rebind("SELECT 1 WHERE a = ?"))
}

func TestOpenSQLRatingStore_UnsupportedDialect(t *testing.T) {
	_, err := OpenSQLRatingStore(context.Background(), "oracle", "")
	require.True(t, core.IsNotSupported(err))
}
