// Package auth はログイン認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/microblog/internal/model"
	"github.com/hitoshi/microblog/internal/repository"
)

// CredentialVerifier はユーザー名とパスワードを検証するインターフェース。
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, username, password string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  time.Duration // 通常セッションの有効期間
	RememberMaxAge time.Duration // remember me指定時の有効期間
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    CredentialVerifier
	sessionRepo repository.SessionRepository
	signer      *TokenSigner
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	verifier CredentialVerifier,
	sessionRepo repository.SessionRepository,
	signer *TokenSigner,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		sessionRepo: sessionRepo,
		signer:      signer,
		config:      config,
		now:         time.Now,
	}
}

// Login は認証情報を検証し、セッションを発行する。
// 戻り値のトークンはセッションCookieの値として使う。
// 認証に失敗した場合はAUTH_FAILUREを返し、セッションは作成しない。
func (s *Service) Login(ctx context.Context, username, password string, remember bool) (*model.Session, string, error) {
	user, err := s.verifier.VerifyCredential(ctx, username, password)
	if err != nil {
		return nil, "", err
	}

	session, err := s.createSession(ctx, user.ID, remember)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.signer.Sign(TokenClaims{
		SessionID: session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, "", err
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Bool("remember", remember),
	)
	return session, token, nil
}

// Resolve はセッショントークンから認証主体を解決する。
// トークンが不正・期限切れ、またはサーバー側のセッションが存在しない場合は
// エラーなしでAnonymousを返す。ストアの障害のみエラーを返す。
func (s *Service) Resolve(ctx context.Context, token string) (model.Principal, error) {
	if token == "" {
		return model.Anonymous, nil
	}

	claims, err := s.signer.Parse(token)
	if err != nil {
		return model.Anonymous, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return model.Anonymous, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.UserID != claims.UserID || !session.ExpiresAt.After(s.now()) {
		return model.Anonymous, nil
	}

	return model.Principal{UserID: session.UserID, SessionID: session.ID}, nil
}

// Logout はトークンが指すサーバー側セッションを破棄する。
// 不正なトークンや既に破棄済みのセッションに対しては何もしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.signer.Parse(token)
	if errors.Is(err, ErrInvalidToken) {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.Int64("user_id", claims.UserID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64, remember bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	maxAge := s.config.SessionMaxAge
	if remember {
		maxAge = s.config.RememberMaxAge
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Remember:  remember,
		ExpiresAt: now.Add(maxAge),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
