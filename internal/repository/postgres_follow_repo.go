package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/microblog/internal/model"
)

// PostgresFollowRepo はPostgreSQLを使用したフォロー関係リポジトリ。
// (follower_id, followed_id) の複合主キーで重複を防ぐ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Add はフォロー関係を追加する。既に存在する場合は何もしない。
func (r *PostgresFollowRepo) Add(ctx context.Context, followerID, followedID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO followers (follower_id, followed_id)
		 VALUES ($1, $2)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING`,
		followerID, followedID,
	)
	if err != nil {
		return fmt.Errorf("failed to add follow: %w", err)
	}
	return nil
}

// Remove はフォロー関係を削除する。存在しない場合は何もしない。
func (r *PostgresFollowRepo) Remove(ctx context.Context, followerID, followedID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM followers WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove follow: %w", err)
	}
	return nil
}

// Exists はフォロー関係が存在するかを返す。
func (r *PostgresFollowRepo) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM followers WHERE follower_id = $1 AND followed_id = $2
		 )`,
		followerID, followedID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return exists, nil
}

// ListFollowerIDs は指定ユーザーをフォローしているユーザーのID一覧を返す。
func (r *PostgresFollowRepo) ListFollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.listIDs(ctx,
		`SELECT follower_id FROM followers WHERE followed_id = $1 ORDER BY follower_id`,
		userID,
	)
}

// ListFolloweeIDs は指定ユーザーがフォローしているユーザーのID一覧を返す。
func (r *PostgresFollowRepo) ListFolloweeIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.listIDs(ctx,
		`SELECT followed_id FROM followers WHERE follower_id = $1 ORDER BY followed_id`,
		userID,
	)
}

func (r *PostgresFollowRepo) listIDs(ctx context.Context, query string, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follow id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate follow ids: %w", err)
	}
	return ids, nil
}

// Counts はフォロワー数とフォロー数を1クエリで返す。
func (r *PostgresFollowRepo) Counts(ctx context.Context, userID int64) (model.FollowCounts, error) {
	var c model.FollowCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM followers WHERE followed_id = $1),
			(SELECT COUNT(*) FROM followers WHERE follower_id = $1)`,
		userID,
	).Scan(&c.Followers, &c.Followees)
	if err != nil {
		return model.FollowCounts{}, fmt.Errorf("failed to count follows: %w", err)
	}
	return c, nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
