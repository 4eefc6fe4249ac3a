// Package post は短文投稿の作成と取得を提供する。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/microblog/internal/model"
	"github.com/hitoshi/microblog/internal/repository"
)

// Service は投稿のサービス層。
type Service struct {
	repo repository.PostRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PostRepository) *Service {
	return &Service{repo: repo}
}

// CreatePost は投稿を作成する。
// 本文は前後の空白を除いて1〜140文字である必要がある。
// 本文はそのまま保存し、表示時のエスケープはレンダラーが行う。
func (s *Service) CreatePost(ctx context.Context, authorID int64, body string, now time.Time) (*model.Post, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, model.NewInvalidInputError("投稿本文を入力してください")
	}
	if utf8.RuneCountInString(body) > model.MaxPostLength {
		return nil, model.NewInvalidInputError(
			fmt.Sprintf("投稿は%d文字以内で入力してください", model.MaxPostLength))
	}

	p := &model.Post{
		Body:      body,
		Timestamp: now.UTC(),
		UserID:    authorID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	slog.Info("投稿を作成しました",
		slog.Int64("post_id", p.ID),
		slog.Int64("user_id", authorID),
	)
	return p, nil
}

// PostsBy は指定ユーザーの投稿を新しい順に返す。
func (s *Service) PostsBy(ctx context.Context, authorID int64) ([]model.Post, error) {
	posts, err := s.repo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}
