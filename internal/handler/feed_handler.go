package handler

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/hitoshi/microblog/internal/feed"
	"github.com/hitoshi/microblog/internal/metrics"
	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/model"
)

// TimelineService はタイムラインとRSSを提供するサービスインターフェース。
type TimelineService interface {
	Timeline(ctx context.Context, userID int64) iter.Seq2[model.Post, error]
	RSS(ctx context.Context, username, baseURL string) ([]byte, error)
}

// PostServiceInterface は投稿の作成と一覧に必要なサービスインターフェース。
type PostServiceInterface interface {
	CreatePost(ctx context.Context, authorID int64, body string, now time.Time) (*model.Post, error)
	PostsBy(ctx context.Context, authorID int64) ([]model.Post, error)
}

// FeedHandler はトップページ（タイムライン表示と投稿）のHTTPハンドラー。
type FeedHandler struct {
	timeline TimelineService
	posts    PostServiceInterface
	renderer Renderer
	metrics  metrics.MetricsCollector
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(timeline TimelineService, posts PostServiceInterface, renderer Renderer, collector metrics.MetricsCollector) *FeedHandler {
	return &FeedHandler{
		timeline: timeline,
		posts:    posts,
		renderer: renderer,
		metrics:  collector,
	}
}

type indexData struct {
	Posts []postView `json:"posts"`
	Body  string     `json:"body,omitempty"`
}

// Index はログインユーザーのタイムラインを新しい順に表示する。
// GET /, /index
func (h *FeedHandler) Index(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	data, err := h.collectTimeline(r.Context(), principal.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, Page{Title: "Home", Data: data})
}

// CreatePost は投稿を作成し、トップページへ遷移する。
// 入力エラーの場合はタイムラインとともにエラーを表示する。
// POST /, /index
func (h *FeedHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	form, err := readForm(w, r)
	if err != nil {
		writeBadRequest(w)
		return
	}

	body := form.Get("post")
	if body == "" {
		body = form.Get("body")
	}

	if _, err := h.posts.CreatePost(r.Context(), principal.UserID, body, time.Now()); err != nil {
		data, terr := h.collectTimeline(r.Context(), principal.UserID)
		if terr != nil {
			handleServiceError(w, r, terr)
			return
		}
		data.Body = body
		renderFormError(w, r, h.renderer, Page{Title: "Home", Data: data}, err)
		return
	}
	h.metrics.RecordPostCreated()

	http.Redirect(w, r, "/index", http.StatusSeeOther)
}

func (h *FeedHandler) collectTimeline(ctx context.Context, userID int64) (indexData, error) {
	posts, err := feed.Collect(h.timeline.Timeline(ctx, userID))
	if err != nil {
		return indexData{}, err
	}
	data := indexData{Posts: make([]postView, 0, len(posts))}
	for _, p := range posts {
		data.Posts = append(data.Posts, toPostView(p))
	}
	return data, nil
}
