// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"iter"
	"time"

	"github.com/hitoshi/microblog/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたID・タイムスタンプをuserに設定する。
	// username、emailの一意制約違反は*model.APIError（DUPLICATE_KEY）を返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザー名と自己紹介を更新する。
	// usernameの一意制約違反は*model.APIError（DUPLICATE_KEY）を返す。
	UpdateProfile(ctx context.Context, id int64, username, aboutMe string) error

	// TouchLastSeen は最終アクセス日時を更新する。
	TouchLastSeen(ctx context.Context, id int64, now time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するfollowersとpostsも同一トランザクションで削除し、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// Create は投稿を作成し、採番されたIDをpostに設定する。
	Create(ctx context.Context, post *model.Post) error

	// ListByAuthor は指定ユーザーの投稿をtimestamp降順（同時刻はid降順）で返す。
	ListByAuthor(ctx context.Context, userID int64) ([]model.Post, error)

	// Timeline は指定ユーザー自身とフォロー中ユーザーの投稿を
	// timestamp降順（同時刻はid降順）で返すシーケンスを生成する。
	// シーケンスはrangeのたびに新しいクエリを発行する。
	Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error]
}

// FollowRepository はフォロー関係（followersテーブル）の永続化インターフェース。
type FollowRepository interface {
	// Add はフォロー関係を追加する。既に存在する場合は何もしない。
	Add(ctx context.Context, followerID, followedID int64) error

	// Remove はフォロー関係を削除する。存在しない場合は何もしない。
	Remove(ctx context.Context, followerID, followedID int64) error

	// Exists はフォロー関係が存在するかを返す。
	Exists(ctx context.Context, followerID, followedID int64) (bool, error)

	// ListFollowerIDs は指定ユーザーをフォローしているユーザーのID一覧を返す。
	ListFollowerIDs(ctx context.Context, userID int64) ([]int64, error)

	// ListFolloweeIDs は指定ユーザーがフォローしているユーザーのID一覧を返す。
	ListFolloweeIDs(ctx context.Context, userID int64) ([]int64, error)

	// Counts はフォロワー数とフォロー数を返す。
	Counts(ctx context.Context, userID int64) (model.FollowCounts, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
