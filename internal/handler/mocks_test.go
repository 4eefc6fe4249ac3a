package handler

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFn  func(ctx context.Context, username, password string, remember bool) (*model.Session, string, error)
	logoutFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) Login(ctx context.Context, username, password string, remember bool) (*model.Session, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password, remember)
	}
	return nil, "", model.NewAuthFailureError()
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

// mockUserService はUserServiceのモック実装。
type mockUserService struct {
	registerFn      func(ctx context.Context, username, email, password string) (*model.User, error)
	getByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	getByIDFn       func(ctx context.Context, userID int64) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error)
	withdrawFn      func(ctx context.Context, userID int64) error
}

func (m *mockUserService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, email, password)
	}
	return &model.User{ID: 1, Username: username, Email: email}, nil
}

func (m *mockUserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, model.NewUserNotFoundError(username)
}

func (m *mockUserService) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError("")
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, username, aboutMe)
	}
	return &model.User{ID: userID, Username: username, AboutMe: aboutMe}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID int64) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockFollowService はFollowServiceInterfaceのモック実装。
type mockFollowService struct {
	followFn      func(ctx context.Context, followerID, followeeID int64) error
	unfollowFn    func(ctx context.Context, followerID, followeeID int64) error
	isFollowingFn func(ctx context.Context, followerID, followeeID int64) (bool, error)
	countsFn      func(ctx context.Context, userID int64) (model.FollowCounts, error)
}

func (m *mockFollowService) Follow(ctx context.Context, followerID, followeeID int64) error {
	if m.followFn != nil {
		return m.followFn(ctx, followerID, followeeID)
	}
	return nil
}

func (m *mockFollowService) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	if m.unfollowFn != nil {
		return m.unfollowFn(ctx, followerID, followeeID)
	}
	return nil
}

func (m *mockFollowService) IsFollowing(ctx context.Context, followerID, followeeID int64) (bool, error) {
	if m.isFollowingFn != nil {
		return m.isFollowingFn(ctx, followerID, followeeID)
	}
	return false, nil
}

func (m *mockFollowService) Counts(ctx context.Context, userID int64) (model.FollowCounts, error) {
	if m.countsFn != nil {
		return m.countsFn(ctx, userID)
	}
	return model.FollowCounts{}, nil
}

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	createPostFn func(ctx context.Context, authorID int64, body string, now time.Time) (*model.Post, error)
	postsByFn    func(ctx context.Context, authorID int64) ([]model.Post, error)
}

func (m *mockPostService) CreatePost(ctx context.Context, authorID int64, body string, now time.Time) (*model.Post, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, authorID, body, now)
	}
	return &model.Post{ID: 1, Body: body, UserID: authorID, Timestamp: now}, nil
}

func (m *mockPostService) PostsBy(ctx context.Context, authorID int64) ([]model.Post, error) {
	if m.postsByFn != nil {
		return m.postsByFn(ctx, authorID)
	}
	return nil, nil
}

// mockTimelineService はTimelineServiceのモック実装。
type mockTimelineService struct {
	posts []model.Post
	err   error
	rssFn func(ctx context.Context, username, baseURL string) ([]byte, error)
}

func (m *mockTimelineService) Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error] {
	return func(yield func(model.Post, error) bool) {
		if m.err != nil {
			yield(model.Post{}, m.err)
			return
		}
		for _, p := range m.posts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (m *mockTimelineService) RSS(ctx context.Context, username, baseURL string) ([]byte, error) {
	if m.rssFn != nil {
		return m.rssFn(ctx, username, baseURL)
	}
	return []byte("<rss></rss>"), nil
}

// recordingMetrics は呼び出しを記録するMetricsCollector。
type recordingMetrics struct {
	registrations int
	logins        []bool
	posts         int
	follows       []string
}

func (m *recordingMetrics) RecordRegistration() { m.registrations++ }
func (m *recordingMetrics) RecordLogin(success bool) { m.logins = append(m.logins, success) }
func (m *recordingMetrics) RecordPostCreated() { m.posts++ }
func (m *recordingMetrics) RecordFollow(action string) { m.follows = append(m.follows, action) }
func (m *recordingMetrics) RecordHTTPStatus(int) {}
func (m *recordingMetrics) RecordRequestLatency(time.Duration) {}
func (m *recordingMetrics) RecordSessionsCleaned(int64) {}

// --- テストヘルパー ---

// withPrincipal はテスト用にリクエストコンテキストへ認証主体を注入するヘルパー。
func withPrincipal(r *http.Request, userID int64) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), model.Principal{UserID: userID, SessionID: "sid"})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// decodePage はJSONRendererの出力をパースするヘルパー。
func decodePage(t *testing.T, w *httptest.ResponseRecorder, data any) pageResponse {
	t.Helper()
	var raw struct {
		Title     string          `json:"title"`
		Data      json.RawMessage `json:"data"`
		Errors    []string        `json:"errors"`
		CSRFToken string          `json:"csrf_token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode page data: %v", err)
		}
	}
	return pageResponse{Title: raw.Title, Errors: raw.Errors, CSRFToken: raw.CSRFToken}
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
