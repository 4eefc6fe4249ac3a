// Package model はドメインモデルを定義する。
package model

import "time"

// User はマイクロブログのユーザーを表す。
// PasswordHashはbcryptで生成したハッシュで、平文パスワードは保持しない。
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	AboutMe      string
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Rememberが真の場合は長期セッション（remember me）として発行されている。
type Session struct {
	ID        string
	UserID    int64
	Remember  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal はリクエストの認証主体を表す。
// ゼロ値は未認証（Anonymous）を意味する。
type Principal struct {
	UserID    int64
	SessionID string
}

// Anonymous は未認証の主体。
var Anonymous = Principal{}

// IsAuthenticated は認証済みかどうかを返す。
func (p Principal) IsAuthenticated() bool {
	return p.UserID != 0
}
