// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/microblog/internal/middleware"
)

// Page はレンダラーに渡す画面の内容。
// Errorsにはフォームの入力エラーなど、利用者に表示するメッセージを入れる。
type Page struct {
	Title  string
	Data   any
	Errors []string
}

// Renderer は画面の描画を担う外部コラボレーター。
// 実装はCSRFトークンなどリクエスト固有の値をページに埋め込む。
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, page Page)
}

// JSONRenderer はページをJSONで返すデフォルトのレンダラー。
type JSONRenderer struct{}

type pageResponse struct {
	Title     string   `json:"title"`
	Data      any      `json:"data,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	CSRFToken string   `json:"csrf_token"`
}

// Render はページを {title, data, errors, csrf_token} のJSONとして書き込む。
func (JSONRenderer) Render(w http.ResponseWriter, r *http.Request, status int, page Page) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(pageResponse{
		Title:     page.Title,
		Data:      page.Data,
		Errors:    page.Errors,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}); err != nil {
		slog.WarnContext(r.Context(), "failed to write page", slog.String("error", err.Error()))
	}
}
