package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/microblog/internal/metrics"
	"github.com/hitoshi/microblog/internal/middleware"
)

// UserService は登録とプロフィール操作をまとめたサービスインターフェース。
type UserService interface {
	RegistrationService
	UserServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// ミドルウェア依存
	PrincipalResolver  middleware.PrincipalResolver
	LastSeenToucher    middleware.LastSeenToucher
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
	HSTS               bool

	// 画面
	Renderer Renderer
	BaseURL  string
	Cookie   CookieConfig

	// サービス
	AuthService     AuthServiceInterface
	UserService     UserService
	FollowService   FollowServiceInterface
	PostService     PostServiceInterface
	TimelineService TimelineService
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
//	  → CORS → Session → CSRF → RateLimit(General) → [RequireAuth]
//
// /health と /metrics はセッション解決とレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService, renderer, collector, deps.Cookie)
	feedHandler := NewFeedHandler(deps.TimelineService, deps.PostService, renderer, collector)
	userHandler := NewUserHandler(
		deps.UserService, deps.FollowService, deps.PostService, deps.TimelineService,
		renderer, collector, UserHandlerConfig{BaseURL: deps.BaseURL, Cookie: deps.Cookie},
	)

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
		r.Use(middleware.NewSessionMiddleware(deps.PrincipalResolver, deps.LastSeenToucher))
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.Cookie.Secure,
			CookieDomain: deps.Cookie.Domain,
		}))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// --- 認証不要のルート ---
		r.Get("/user/{username}/rss", userHandler.RSS)

		r.Group(func(r chi.Router) {
			// ログイン・登録の送信はIP単位で追加制限する
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
			r.Get("/register", authHandler.RegisterPage)
			r.Post("/register", authHandler.Register)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth("/login"))

			for _, path := range []string{"/", "/index"} {
				r.Get(path, feedHandler.Index)
				r.Post(path, feedHandler.CreatePost)
			}
			r.Get("/logout", authHandler.Logout)

			r.Get("/user/{username}", userHandler.Profile)
			r.Get("/edit_profile", userHandler.EditProfilePage)
			r.Post("/edit_profile", userHandler.EditProfile)
			r.Post("/follow/{username}", userHandler.Follow)
			r.Post("/unfollow/{username}", userHandler.Unfollow)
			r.Post("/delete_account", userHandler.DeleteAccount)
		})
	})

	return r
}
