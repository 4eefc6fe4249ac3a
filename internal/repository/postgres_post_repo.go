package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/hitoshi/microblog/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const (
	postSelect = `SELECT p.id, p.body, p.timestamp, p.user_id, u.username, u.email
		 FROM posts p
		 JOIN users u ON u.id = p.user_id`

	postOrder = ` ORDER BY p.timestamp DESC, p.id DESC`

	timelineQuery = postSelect + `
		 WHERE p.user_id = $1
		    OR p.user_id IN (SELECT f.followed_id FROM followers f WHERE f.follower_id = $1)` + postOrder

	authorPostsQuery = postSelect + `
		 WHERE p.user_id = $1` + postOrder
)

// Create は投稿を作成する。Timestampがゼロ値の場合はDBの現在時刻を使う。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	var ts any
	if !post.Timestamp.IsZero() {
		ts = post.Timestamp
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (body, timestamp, user_id)
		 VALUES ($1, COALESCE($2::timestamptz, now()), $3)
		 RETURNING id, timestamp`,
		post.Body, ts, post.UserID,
	).Scan(&post.ID, &post.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// ListByAuthor は指定ユーザーの投稿を新しい順に返す。
func (r *PostgresPostRepo) ListByAuthor(ctx context.Context, userID int64) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx, authorPostsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by author: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// Timeline は自身とフォロー中ユーザーの投稿を新しい順に返すシーケンスを生成する。
// rangeを途中で抜けた場合は残りの行を読まずにクエリを閉じる。
// エラーが発生した場合はゼロ値の投稿とエラーを1回だけyieldして終了する。
func (r *PostgresPostRepo) Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error] {
	return func(yield func(model.Post, error) bool) {
		rows, err := r.db.QueryContext(ctx, timelineQuery, userID)
		if err != nil {
			yield(model.Post{}, fmt.Errorf("failed to query timeline: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPost(rows)
			if err != nil {
				yield(model.Post{}, fmt.Errorf("failed to scan post: %w", err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Post{}, fmt.Errorf("failed to iterate timeline: %w", err))
		}
	}
}

func scanPost(rows *sql.Rows) (model.Post, error) {
	var p model.Post
	err := rows.Scan(&p.ID, &p.Body, &p.Timestamp, &p.UserID, &p.AuthorUsername, &p.AuthorEmail)
	return p, err
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
