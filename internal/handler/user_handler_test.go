package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/microblog/internal/model"
)

func userFixtures() *mockUserService {
	users := map[string]*model.User{
		"alice": {ID: 1, Username: "alice", Email: "alice@example.com", AboutMe: "hi"},
		"bob":   {ID: 2, Username: "bob", Email: "bob@example.com"},
	}
	return &mockUserService{
		getByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if u, ok := users[username]; ok {
				return u, nil
			}
			return nil, model.NewUserNotFoundError(username)
		},
		getByIDFn: func(ctx context.Context, userID int64) (*model.User, error) {
			for _, u := range users {
				if u.ID == userID {
					return u, nil
				}
			}
			return nil, model.NewUserNotFoundError("")
		},
	}
}

func newTestUserHandler(users *mockUserService, follows *mockFollowService, posts *mockPostService, m *recordingMetrics) *UserHandler {
	return NewUserHandler(users, follows, posts, &mockTimelineService{}, JSONRenderer{}, m,
		UserHandlerConfig{BaseURL: "http://localhost:8080"})
}

func TestUserHandler_Profile(t *testing.T) {
	follows := &mockFollowService{
		countsFn: func(ctx context.Context, userID int64) (model.FollowCounts, error) {
			return model.FollowCounts{Followers: 3, Followees: 1}, nil
		},
		isFollowingFn: func(ctx context.Context, followerID, followeeID int64) (bool, error) {
			return followerID == 1 && followeeID == 2, nil
		},
	}
	posts := &mockPostService{
		postsByFn: func(ctx context.Context, authorID int64) ([]model.Post, error) {
			return []model.Post{{ID: 9, Body: "bob post", UserID: authorID, AuthorUsername: "bob"}}, nil
		},
	}
	h := newTestUserHandler(userFixtures(), follows, posts, &recordingMetrics{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/user/bob", nil), "username", "bob")
	w := httptest.NewRecorder()
	h.Profile(w, withPrincipal(req, 1))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var data profileData
	decodePage(t, w, &data)
	if data.User.Username != "bob" || !strings.Contains(data.User.Avatar, "s=128") {
		t.Errorf("user = %+v", data.User)
	}
	if data.Followers != 3 || data.Followees != 1 {
		t.Errorf("counts = %d/%d", data.Followers, data.Followees)
	}
	if data.IsSelf || !data.IsFollowing {
		t.Errorf("IsSelf=%v IsFollowing=%v", data.IsSelf, data.IsFollowing)
	}
	if len(data.Posts) != 1 || data.Posts[0].Body != "bob post" {
		t.Errorf("posts = %+v", data.Posts)
	}
}

func TestUserHandler_Profile_Self_SkipsIsFollowing(t *testing.T) {
	follows := &mockFollowService{
		isFollowingFn: func(ctx context.Context, followerID, followeeID int64) (bool, error) {
			t.Error("自分のプロフィールではIsFollowingを呼ばない")
			return false, nil
		},
	}
	h := newTestUserHandler(userFixtures(), follows, &mockPostService{}, &recordingMetrics{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/user/alice", nil), "username", "alice")
	w := httptest.NewRecorder()
	h.Profile(w, withPrincipal(req, 1))

	var data profileData
	decodePage(t, w, &data)
	if !data.IsSelf {
		t.Error("IsSelfであるべき")
	}
	if data.Posts == nil {
		t.Error("投稿がなくても空配列であるべき")
	}
}

func TestUserHandler_Profile_NotFound(t *testing.T) {
	h := newTestUserHandler(userFixtures(), &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/user/nobody", nil), "username", "nobody")
	w := httptest.NewRecorder()
	h.Profile(w, withPrincipal(req, 1))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := parseAPIErrorResponse(t, w); resp.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestUserHandler_Follow(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		followFn   func(ctx context.Context, followerID, followeeID int64) error
		wantStatus int
		wantLoc    string
		wantMetric bool
		wantError  string
	}{
		{name: "成功", target: "bob", wantStatus: http.StatusSeeOther, wantLoc: "/user/bob", wantMetric: true},
		{
			name:   "自己フォロー",
			target: "alice",
			followFn: func(ctx context.Context, followerID, followeeID int64) error {
				return model.NewSelfFollowError()
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "自分自身をフォローすることはできません。",
		},
		{name: "存在しないユーザー", target: "nobody", wantStatus: http.StatusNotFound, wantError: "ユーザーが見つかりません: nobody"},
		{
			name:   "DBエラー",
			target: "bob",
			followFn: func(ctx context.Context, followerID, followeeID int64) error {
				return errors.New("db down")
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &recordingMetrics{}
			h := newTestUserHandler(userFixtures(), &mockFollowService{followFn: tt.followFn}, &mockPostService{}, m)

			req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/follow/"+tt.target, nil), "username", tt.target)
			w := httptest.NewRecorder()
			h.Follow(w, withPrincipal(req, 1))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantLoc != "" && w.Header().Get("Location") != tt.wantLoc {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.wantLoc)
			}
			if got := len(m.follows) == 1; got != tt.wantMetric {
				t.Errorf("follows metric = %v", m.follows)
			}
			if tt.wantError != "" {
				page := decodePage(t, w, nil)
				if page.Title != "Follow" || len(page.Errors) != 1 || page.Errors[0] != tt.wantError {
					t.Errorf("page = %+v, want errors [%s]", page, tt.wantError)
				}
			}
		})
	}
}

func TestUserHandler_Unfollow_UnknownUser_RendersPage(t *testing.T) {
	h := newTestUserHandler(userFixtures(), &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/unfollow/nobody", nil), "username", "nobody")
	w := httptest.NewRecorder()
	h.Unfollow(w, withPrincipal(req, 1))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	page := decodePage(t, w, nil)
	if page.Title != "Unfollow" || len(page.Errors) != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestUserHandler_Unfollow(t *testing.T) {
	var got [2]int64
	follows := &mockFollowService{
		unfollowFn: func(ctx context.Context, followerID, followeeID int64) error {
			got = [2]int64{followerID, followeeID}
			return nil
		},
	}
	m := &recordingMetrics{}
	h := newTestUserHandler(userFixtures(), follows, &mockPostService{}, m)

	req := withChiURLParam(httptest.NewRequest(http.MethodPost, "/unfollow/bob", nil), "username", "bob")
	w := httptest.NewRecorder()
	h.Unfollow(w, withPrincipal(req, 1))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if got != [2]int64{1, 2} {
		t.Errorf("Unfollow(%d, %d)", got[0], got[1])
	}
	if len(m.follows) != 1 || m.follows[0] != "unfollow" {
		t.Errorf("follows metric = %v", m.follows)
	}
}

func TestUserHandler_EditProfile(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		users := userFixtures()
		var got string
		users.updateProfileFn = func(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error) {
			got = username + "/" + aboutMe
			return &model.User{ID: userID, Username: username, AboutMe: aboutMe}, nil
		}
		h := newTestUserHandler(users, &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

		w := httptest.NewRecorder()
		h.EditProfile(w, withPrincipal(postForm("/edit_profile", url.Values{"username": {"alicia"}, "about_me": {"hello"}}), 1))

		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/edit_profile" {
			t.Fatalf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
		}
		if got != "alicia/hello" {
			t.Errorf("UpdateProfile got %q", got)
		}
	})

	t.Run("ユーザー名重複", func(t *testing.T) {
		users := userFixtures()
		users.updateProfileFn = func(ctx context.Context, userID int64, username, aboutMe string) (*model.User, error) {
			return nil, model.NewDuplicateKeyError("username")
		}
		h := newTestUserHandler(users, &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

		w := httptest.NewRecorder()
		h.EditProfile(w, withPrincipal(postForm("/edit_profile", url.Values{"username": {"bob"}}), 1))

		if w.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", w.Code)
		}
		var data editProfileData
		page := decodePage(t, w, &data)
		if len(page.Errors) != 1 || data.Username != "bob" {
			t.Errorf("page = %+v, data = %+v", page, data)
		}
	})
}

func TestUserHandler_EditProfilePage_ShowsCurrentValues(t *testing.T) {
	h := newTestUserHandler(userFixtures(), &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

	w := httptest.NewRecorder()
	h.EditProfilePage(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/edit_profile", nil), 1))

	var data editProfileData
	decodePage(t, w, &data)
	if data.Username != "alice" || data.AboutMe != "hi" {
		t.Errorf("data = %+v", data)
	}
}

func TestUserHandler_RSS(t *testing.T) {
	var gotBase string
	timeline := &mockTimelineService{
		rssFn: func(ctx context.Context, username, baseURL string) ([]byte, error) {
			gotBase = baseURL
			if username != "bob" {
				return nil, model.NewUserNotFoundError(username)
			}
			return []byte(`<rss version="2.0"></rss>`), nil
		},
	}
	h := NewUserHandler(userFixtures(), &mockFollowService{}, &mockPostService{}, timeline, JSONRenderer{}, &recordingMetrics{},
		UserHandlerConfig{BaseURL: "https://mb.example.com"})

	w := httptest.NewRecorder()
	h.RSS(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/user/bob/rss", nil), "username", "bob"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if gotBase != "https://mb.example.com" {
		t.Errorf("baseURL = %q", gotBase)
	}

	w = httptest.NewRecorder()
	h.RSS(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/user/nobody/rss", nil), "username", "nobody"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUserHandler_DeleteAccount(t *testing.T) {
	users := userFixtures()
	var withdrawn int64
	users.withdrawFn = func(ctx context.Context, userID int64) error {
		withdrawn = userID
		return nil
	}
	h := newTestUserHandler(users, &mockFollowService{}, &mockPostService{}, &recordingMetrics{})

	w := httptest.NewRecorder()
	h.DeleteAccount(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/delete_account", nil), 1))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
	if withdrawn != 1 {
		t.Errorf("Withdraw(%d), want 1", withdrawn)
	}
	if c := sessionCookieFrom(w); c == nil || c.MaxAge >= 0 {
		t.Errorf("Cookieが削除されていない: %+v", c)
	}
}
