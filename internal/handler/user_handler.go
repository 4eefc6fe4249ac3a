package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microblog/internal/metrics"
	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error)
	// Withdraw はセッションを失効させた後にユーザーを削除する。
	// 投稿とフォロー関係はユーザーと同一トランザクションで削除される。
	Withdraw(ctx context.Context, userID int64) error
}

// FollowServiceInterface はフォロー関係の操作に必要なサービスインターフェース。
type FollowServiceInterface interface {
	Follow(ctx context.Context, followerID, followeeID int64) error
	Unfollow(ctx context.Context, followerID, followeeID int64) error
	IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error)
	Counts(ctx context.Context, userID int64) (model.FollowCounts, error)
}

// UserHandler はプロフィール・フォロー・退会のHTTPハンドラー。
type UserHandler struct {
	users    UserServiceInterface
	follows  FollowServiceInterface
	posts    PostServiceInterface
	timeline TimelineService
	renderer Renderer
	metrics  metrics.MetricsCollector
	cookie   CookieConfig
	baseURL  string
}

// UserHandlerConfig はUserHandlerの設定。
type UserHandlerConfig struct {
	BaseURL string
	Cookie  CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	users UserServiceInterface,
	follows FollowServiceInterface,
	posts PostServiceInterface,
	timeline TimelineService,
	renderer Renderer,
	collector metrics.MetricsCollector,
	config UserHandlerConfig,
) *UserHandler {
	return &UserHandler{
		users:    users,
		follows:  follows,
		posts:    posts,
		timeline: timeline,
		renderer: renderer,
		metrics:  collector,
		cookie:   config.Cookie,
		baseURL:  config.BaseURL,
	}
}

type profileData struct {
	User        userView   `json:"user"`
	Posts       []postView `json:"posts"`
	Followers   int        `json:"followers"`
	Followees   int        `json:"followees"`
	IsSelf      bool       `json:"is_self"`
	IsFollowing bool       `json:"is_following"`
}

// Profile はユーザーのプロフィール、投稿、フォロー数を表示する。
// GET /user/{username}
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.PrincipalFromContext(r.Context())

	u, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	posts, err := h.posts.PostsBy(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	counts, err := h.follows.Counts(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	data := profileData{
		User:      toUserView(u),
		Posts:     make([]postView, len(posts)),
		Followers: counts.Followers,
		Followees: counts.Followees,
		IsSelf:    viewer.UserID == u.ID,
	}
	for i, p := range posts {
		data.Posts[i] = toPostView(p)
	}
	if !data.IsSelf {
		data.IsFollowing, err = h.follows.IsFollowing(r.Context(), viewer.UserID, u.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	h.renderer.Render(w, r, http.StatusOK, Page{Title: u.Username, Data: data})
}

// RSS はユーザー自身の投稿をRSS 2.0で返す。認証は不要。
// GET /user/{username}/rss
func (h *UserHandler) RSS(w http.ResponseWriter, r *http.Request) {
	out, err := h.timeline.RSS(r.Context(), chi.URLParam(r, "username"), h.baseURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

type editProfileData struct {
	Username string `json:"username"`
	AboutMe  string `json:"about_me"`
}

// EditProfilePage はプロフィール編集フォームを現在の値で表示する。
// GET /edit_profile
func (h *UserHandler) EditProfilePage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	u, err := h.users.GetByID(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, Page{
		Title: "Edit Profile",
		Data:  editProfileData{Username: u.Username, AboutMe: u.AboutMe},
	})
}

// EditProfile はユーザー名と自己紹介を更新する。
// 入力エラーの場合は送信内容とエラーを添えてフォームを再表示する。
// POST /edit_profile
func (h *UserHandler) EditProfile(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	form, err := readForm(w, r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	data := editProfileData{Username: form.Get("username"), AboutMe: form.Get("about_me")}
	if _, err := h.users.UpdateProfile(r.Context(), principal.UserID, data.Username, data.AboutMe); err != nil {
		renderFormError(w, r, h.renderer, Page{Title: "Edit Profile", Data: data}, err)
		return
	}

	http.Redirect(w, r, "/edit_profile", http.StatusSeeOther)
}

// Follow はログインユーザーが指定ユーザーをフォローする。
// 自己フォローや存在しないユーザーはエラーを添えたページで返す。
// POST /follow/{username}
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, "follow", h.follows.Follow)
}

// Unfollow はログインユーザーが指定ユーザーのフォローを解除する。
// POST /unfollow/{username}
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, "unfollow", h.follows.Unfollow)
}

func (h *UserHandler) changeFollow(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	apply func(ctx context.Context, followerID, followeeID int64) error,
) {
	principal := middleware.PrincipalFromContext(r.Context())
	page := Page{Title: "Follow"}
	if action == "unfollow" {
		page.Title = "Unfollow"
	}

	target, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		renderFormError(w, r, h.renderer, page, err)
		return
	}

	if err := apply(r.Context(), principal.UserID, target.ID); err != nil {
		renderFormError(w, r, h.renderer, page, err)
		return
	}
	h.metrics.RecordFollow(action)

	http.Redirect(w, r, "/user/"+url.PathEscape(target.Username), http.StatusSeeOther)
}

// DeleteAccount はログインユーザーを退会させ、セッションCookieを削除する。
// POST /delete_account
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	if err := h.users.Withdraw(r.Context(), principal.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "account deleted", slog.Int64("user_id", principal.UserID))
	clearSessionCookie(w, h.cookie)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
