package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rushteam/ratingkit/core"
)

// SQL 方言，同时也是 database/sql 的驱动名。
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id VARCHAR(64) PRIMARY KEY,
		email   VARCHAR(64) NULL,
		age     INTEGER NULL,
		zipcode VARCHAR(15) NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		item_id     VARCHAR(64) PRIMARY KEY,
		title       VARCHAR(100) NULL,
		released_at TIMESTAMP NULL,
		imdb_url    VARCHAR(200) NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		user_id VARCHAR(64) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		score   INTEGER NOT NULL,
		PRIMARY KEY (user_id, item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ratings_item_id ON ratings (item_id)`,
}

const (
	sqlRatersOf     = `SELECT user_id FROM ratings WHERE item_id = ? ORDER BY user_id`
	sqlCoRatedPairs = `SELECT a.score, b.score
		FROM ratings AS a
		JOIN ratings AS b ON a.item_id = b.item_id
		WHERE a.user_id = ? AND b.user_id = ?
		ORDER BY a.item_id`
	sqlScoreOf = `SELECT score FROM ratings WHERE user_id = ? AND item_id = ?`
	sqlHasUser = `SELECT COUNT(*) FROM users WHERE user_id = ?`
	sqlHasItem = `SELECT COUNT(*) FROM items WHERE item_id = ?`
	// 对同一张评分表做两次自连接：target 的评分（同物品）× 候选的评分（同用户且评过目标物品）。
	sqlCoRatingsFor = `SELECT r.user_id, mu.score, tu.score, r.score
		FROM ratings AS tu
		JOIN ratings AS r ON tu.item_id = r.item_id
		JOIN ratings AS mu ON r.user_id = mu.user_id
		WHERE tu.user_id = ? AND mu.item_id = ? AND r.user_id <> ?
		ORDER BY r.user_id, r.item_id`
	sqlUpsertUser   = `INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`
	sqlUpsertItem   = `INSERT INTO items (item_id) VALUES (?) ON CONFLICT (item_id) DO NOTHING`
	sqlUpsertRating = `INSERT INTO ratings (user_id, item_id, score) VALUES (?, ?, ?)
		ON CONFLICT (user_id, item_id) DO UPDATE SET score = excluded.score`
)

// SQLRatingStore 是 database/sql 实现的 core.RatingBackend，支持 SQLite 与 PostgreSQL。
type SQLRatingStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLRatingStore 打开数据库连接、Ping 并建表。
func OpenSQLRatingStore(ctx context.Context, dialect, dsn string) (*SQLRatingStore, error) {
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotSupported,
			fmt.Sprintf("store: unsupported sql dialect %q", dialect))
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// :memory: 数据库按连接隔离
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	s := NewSQLRatingStore(db, dialect)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLRatingStore 包装一个已有的 *sql.DB，不会建表。
func NewSQLRatingStore(db *sql.DB, dialect string) *SQLRatingStore {
	return &SQLRatingStore{db: db, dialect: dialect}
}

func (s *SQLRatingStore) Name() string { return "sql:" + s.dialect }

// EnsureSchema 创建 users / items / ratings 表（已存在则跳过）。
func (s *SQLRatingStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind 把 ? 占位符改写为方言的占位符（PostgreSQL 为 $n）。
func (s *SQLRatingStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *SQLRatingStore) exists(ctx context.Context, query, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLRatingStore) HasUser(ctx context.Context, userID string) (bool, error) {
	return s.exists(ctx, sqlHasUser, userID)
}

func (s *SQLRatingStore) HasItem(ctx context.Context, itemID string) (bool, error) {
	return s.exists(ctx, sqlHasItem, itemID)
}

func (s *SQLRatingStore) RatersOf(ctx context.Context, itemID string) ([]string, error) {
	ok, err := s.HasItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrItemNotFound
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(sqlRatersOf), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

func (s *SQLRatingStore) CoRatedPairs(ctx context.Context, userA, userB string) ([]core.ScorePair, error) {
	for _, u := range []string{userA, userB} {
		ok, err := s.HasUser(ctx, u)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.ErrUserNotFound
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(sqlCoRatedPairs), userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([]core.ScorePair, 0)
	for rows.Next() {
		var x, y int
		if err := rows.Scan(&x, &y); err != nil {
			return nil, err
		}
		pairs = append(pairs, core.ScorePair{X: float64(x), Y: float64(y)})
	}
	return pairs, rows.Err()
}

func (s *SQLRatingStore) ScoreOf(ctx context.Context, userID, itemID string) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, s.rebind(sqlScoreOf), userID, itemID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrRatingNotFound
	}
	return score, err
}

// CoRatingsFor 实现 core.CoRatingQuerier：一条自连接取回全部候选。
func (s *SQLRatingStore) CoRatingsFor(ctx context.Context, userID, itemID string) ([]core.CoRating, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(sqlCoRatingsFor), userID, itemID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.CoRating, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			candidate             string
			known, xScore, yScore int
		)
		if err := rows.Scan(&candidate, &known, &xScore, &yScore); err != nil {
			return nil, err
		}
		i, ok := index[candidate]
		if !ok {
			i = len(out)
			index[candidate] = i
			out = append(out, core.CoRating{UserID: candidate, Score: known})
		}
		out[i].Pairs = append(out[i].Pairs, core.ScorePair{X: float64(xScore), Y: float64(yScore)})
	}
	return out, rows.Err()
}

// AddUser 登记一个尚无评分的用户。
func (s *SQLRatingStore) AddUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(sqlUpsertUser), userID)
	return err
}

// AddItem 登记一个尚无评分的物品。
func (s *SQLRatingStore) AddItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(sqlUpsertItem), itemID)
	return err
}

func (s *SQLRatingStore) PutRating(ctx context.Context, r core.Rating) error {
	return s.PutRatings(ctx, []core.Rating{r})
}

// PutRatings 在一个事务内批量写入评分，并补齐 users / items。
func (s *SQLRatingStore) PutRatings(ctx context.Context, ratings []core.Rating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range ratings {
		if r.UserID == "" || r.ItemID == "" {
			return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: rating requires user and item")
		}
		if _, err := tx.ExecContext(ctx, s.rebind(sqlUpsertUser), r.UserID); err != nil {
			return fmt.Errorf("upsert user %s: %w", r.UserID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(sqlUpsertItem), r.ItemID); err != nil {
			return fmt.Errorf("upsert item %s: %w", r.ItemID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(sqlUpsertRating), r.UserID, r.ItemID, r.Score); err != nil {
			return fmt.Errorf("upsert rating %s/%s: %w", r.UserID, r.ItemID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLRatingStore) Close() error {
	return s.db.Close()
}

var (
	_ core.RatingBackend   = (*SQLRatingStore)(nil)
	_ core.CoRatingQuerier = (*SQLRatingStore)(nil)
)
