package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はセッショントークンの署名・期限・形式が不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid session token")

// TokenClaims はセッションCookieに格納するトークンの内容。
type TokenClaims struct {
	SessionID string
	UserID    int64
	ExpiresAt time.Time
}

// TokenSigner はセッションCookie用のHS256署名付きトークンを発行・検証する。
type TokenSigner struct {
	key []byte
	now func() time.Time
}

// NewTokenSigner はSECRET_KEYからTokenSignerを生成する。
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{key: []byte(secret), now: time.Now}
}

// Sign はセッションIDとユーザーIDを含むトークンを発行する。
func (s *TokenSigner) Sign(c TokenClaims) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        c.SessionID,
		Subject:   strconv.FormatInt(c.UserID, 10),
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Parse はトークンを検証し内容を返す。
// 署名不一致、期限切れ、HS256以外のアルゴリズムはErrInvalidTokenになる。
func (s *TokenSigner) Parse(token string) (TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.ID == "" {
		return TokenClaims{}, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}

	return TokenClaims{
		SessionID: claims.ID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
