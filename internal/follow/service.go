// Package follow はユーザー間のフォロー関係を管理する。
package follow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/microblog/internal/model"
	"github.com/hitoshi/microblog/internal/repository"
)

// Service はフォローグラフのサービス層。
// 全ての更新は単一のSQL文で行われ、途中状態が観測されることはない。
type Service struct {
	repo repository.FollowRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.FollowRepository) *Service {
	return &Service{repo: repo}
}

// Follow はfollowerIDからfolloweeIDへのフォロー関係を追加する。
// 既にフォロー済みの場合は何もしない。自分自身はフォローできない。
func (s *Service) Follow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return model.NewSelfFollowError()
	}
	if err := s.repo.Add(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("フォローの追加に失敗しました: %w", err)
	}
	slog.Info("フォローしました",
		slog.Int64("follower_id", followerID),
		slog.Int64("followee_id", followeeID),
	)
	return nil
}

// Unfollow はフォロー関係を削除する。フォローしていない場合は何もしない。
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return model.NewSelfFollowError()
	}
	if err := s.repo.Remove(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("フォローの解除に失敗しました: %w", err)
	}
	slog.Info("フォローを解除しました",
		slog.Int64("follower_id", followerID),
		slog.Int64("followee_id", followeeID),
	)
	return nil
}

// IsFollowing はfollowerIDがfolloweeIDをフォローしているかを返す。
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	ok, err := s.repo.Exists(ctx, followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("フォロー状態の取得に失敗しました: %w", err)
	}
	return ok, nil
}

// FollowersOf は指定ユーザーをフォローしているユーザーのID一覧を返す。
func (s *Service) FollowersOf(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.repo.ListFollowerIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}
	return ids, nil
}

// FolloweesOf は指定ユーザーがフォローしているユーザーのID一覧を返す。
func (s *Service) FolloweesOf(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.repo.ListFolloweeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}
	return ids, nil
}

// Counts はフォロワー数とフォロー数を返す。
func (s *Service) Counts(ctx context.Context, userID int64) (model.FollowCounts, error) {
	c, err := s.repo.Counts(ctx, userID)
	if err != nil {
		return model.FollowCounts{}, fmt.Errorf("フォロー数の取得に失敗しました: %w", err)
	}
	return c, nil
}
