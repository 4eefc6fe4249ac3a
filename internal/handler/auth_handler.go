package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/microblog/internal/metrics"
	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string, remember bool) (*model.Session, string, error)
	Logout(ctx context.Context, token string) error
}

// RegistrationService はアカウント登録に必要なサービスインターフェース。
type RegistrationService interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// AuthHandler はログイン・ログアウト・登録のHTTPハンドラー。
type AuthHandler struct {
	auth     AuthServiceInterface
	users    RegistrationService
	renderer Renderer
	metrics  metrics.MetricsCollector
	cookie   CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(auth AuthServiceInterface, users RegistrationService, renderer Renderer, collector metrics.MetricsCollector, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		users:    users,
		renderer: renderer,
		metrics:  collector,
		cookie:   cookie,
	}
}

type loginForm struct {
	Username   string `json:"username"`
	RememberMe bool   `json:"remember_me"`
	Next       string `json:"next,omitempty"`
}

// LoginPage はログインフォームを表示する。ログイン済みの場合はトップへ遷移する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.PrincipalFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, "/index", http.StatusFound)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, Page{
		Title: "Sign In",
		Data:  loginForm{Next: r.URL.Query().Get("next")},
	})
}

// Login は認証情報を検証し、セッションCookieを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if middleware.PrincipalFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, "/index", http.StatusSeeOther)
		return
	}

	form, err := readForm(w, r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	username := form.Get("username")
	remember := isChecked(form.Get("remember_me"))
	next := r.URL.Query().Get("next")
	if next == "" {
		next = form.Get("next")
	}
	page := Page{
		Title: "Sign In",
		Data:  loginForm{Username: username, RememberMe: remember, Next: next},
	}

	if username == "" || form.Get("password") == "" {
		page.Errors = []string{"ユーザー名とパスワードを入力してください"}
		h.renderer.Render(w, r, http.StatusBadRequest, page)
		return
	}

	session, token, err := h.auth.Login(r.Context(), username, form.Get("password"), remember)
	if err != nil {
		if errors.Is(err, model.ErrAuthFailure) {
			h.metrics.RecordLogin(false)
		}
		renderFormError(w, r, h.renderer, page, err)
		return
	}
	h.metrics.RecordLogin(true)

	cookie := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if session.Remember {
		cookie.Expires = session.ExpiresAt
		cookie.MaxAge = int(time.Until(session.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)

	http.Redirect(w, r, safeNext(next, "/index"), http.StatusSeeOther)
}

// Logout はサーバー側のセッションを破棄し、Cookieを削除する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" {
		if err := h.auth.Logout(r.Context(), c.Value); err != nil {
			// Cookieは削除するためログのみ
			slog.WarnContext(r.Context(), "failed to revoke session", slog.String("error", err.Error()))
		}
	}
	clearSessionCookie(w, h.cookie)
	http.Redirect(w, r, "/index", http.StatusFound)
}

type registerForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RegisterPage は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if middleware.PrincipalFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, "/index", http.StatusFound)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, Page{Title: "Register", Data: registerForm{}})
}

// Register はアカウントを作成し、ログイン画面へ遷移する。
// password2が送られた場合はpasswordとの一致を確認する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if middleware.PrincipalFromContext(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, "/index", http.StatusSeeOther)
		return
	}

	form, err := readForm(w, r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	page := Page{
		Title: "Register",
		Data:  registerForm{Username: form.Get("username"), Email: form.Get("email")},
	}

	if confirm, ok := form["password2"]; ok && confirm[0] != form.Get("password") {
		page.Errors = []string{"確認用パスワードが一致しません"}
		h.renderer.Render(w, r, http.StatusBadRequest, page)
		return
	}

	u, err := h.users.Register(r.Context(), form.Get("username"), form.Get("email"), form.Get("password"))
	if err != nil {
		renderFormError(w, r, h.renderer, page, err)
		return
	}
	h.metrics.RecordRegistration()

	slog.InfoContext(r.Context(), "user registered", slog.Int64("user_id", u.ID))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// clearSessionCookie はセッションCookieを削除する。
func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
