// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/microblog/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// principalHolderKey は外側のミドルウェア（アクセスログ）に解決結果を渡すためのキー。
var principalHolderKey = contextKey("principal_holder")

type principalHolder struct {
	principal model.Principal
}

// PrincipalResolver はセッショントークンから認証主体を解決するインターフェース。
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (model.Principal, error)
}

// LastSeenToucher は最終アクセス日時を更新するインターフェース。
type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, userID int64, now time.Time) error
}

// NewSessionMiddleware はCookieのセッショントークンから認証主体を解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 全ルートに適用し、未認証のリクエストもAnonymousとして通過させる。
// 認証済みの場合はハンドラー実行前に最終アクセス日時を1回だけ更新する。
func NewSessionMiddleware(resolver PrincipalResolver, toucher LastSeenToucher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := model.Anonymous

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				p, err := resolver.Resolve(r.Context(), cookie.Value)
				if err != nil {
					slog.ErrorContext(r.Context(), "failed to resolve session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				principal = p
			}

			if principal.IsAuthenticated() {
				if err := toucher.TouchLastSeen(r.Context(), principal.UserID, time.Now()); err != nil {
					slog.WarnContext(r.Context(), "failed to update last_seen",
						slog.Int64("user_id", principal.UserID),
						slog.String("error", err.Error()),
					)
				}
			}

			if holder, ok := r.Context().Value(principalHolderKey).(*principalHolder); ok {
				holder.principal = principal
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth は未認証リクエストをログインページへリダイレクトするガードを返す。
// リダイレクト先には元のパスをnextパラメータとして付与する。
// 未認証の場合ハンドラーは実行されない。
func RequireAuth(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).IsAuthenticated() {
				target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// セッションミドルウェアを通過していない場合はAnonymousを返す。
func PrincipalFromContext(ctx context.Context) model.Principal {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok {
		return model.Anonymous
	}
	return p
}

// ContextWithPrincipal はコンテキストに認証主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
