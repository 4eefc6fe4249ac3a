package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/microblog/internal/middleware"
	"github.com/hitoshi/microblog/internal/model"
	"github.com/hitoshi/microblog/internal/security"
	"github.com/hitoshi/microblog/internal/user"
)

// maxFormBytes はフォーム・JSONボディの上限サイズ。
const maxFormBytes = 64 << 10

// avatarSize は画面に表示するアバター画像の一辺のピクセル数。
const (
	avatarSizeSmall = 36
	avatarSizeLarge = 128
)

// textHTML は保存済みのプレーンテキストを表示用HTMLに変換する。
var textHTML = security.NewTextSanitizer()

// userView と postView のテキストはそのまま返し、*_html に表示用のエスケープ済みHTMLを添える。
type userView struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	AboutMe     string    `json:"about_me"`
	AboutMeHTML string    `json:"about_me_html"`
	LastSeen    time.Time `json:"last_seen"`
	Avatar      string    `json:"avatar"`
}

type postView struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	BodyHTML  string    `json:"body_html"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Avatar    string    `json:"avatar"`
}

func toUserView(u *model.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		AboutMe:     u.AboutMe,
		AboutMeHTML: textHTML.HTML(u.AboutMe),
		LastSeen:    u.LastSeen,
		Avatar:      user.AvatarURL(u.Email, avatarSizeLarge),
	}
}

func toPostView(p model.Post) postView {
	return postView{
		ID:        p.ID,
		Body:      p.Body,
		BodyHTML:  textHTML.HTML(p.Body),
		Timestamp: p.Timestamp,
		Author:    p.AuthorUsername,
		Avatar:    user.AvatarURL(p.AuthorEmail, avatarSizeSmall),
	}
}

// readForm はapplication/jsonまたはフォームのボディを読み取り、url.Valuesとして返す。
// JSONの値は文字列表現に変換する（trueは"true"）。
func readForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		values := url.Values{}
		for k, v := range raw {
			if v == nil {
				continue
			}
			values.Set(k, fmt.Sprint(v))
		}
		return values, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	return r.PostForm, nil
}

// isChecked はチェックボックス相当の値を真偽値として解釈する。
func isChecked(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes", "y":
		return true
	}
	return false
}

// safeNext はログイン後の遷移先として安全なローカルパスのみを返す。
// 外部URLやスキーム相対URLはfallbackに置き換える。
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return next
}

func writeBadRequest(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディの解析に失敗しました"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	logInternalError(r, err)
	middleware.WriteInternalServerError(w)
}

// renderFormError は利用者が修正できるエラーであれば元の画面にエラーを添えて再描画する。
// それ以外のエラーはhandleServiceErrorに委ねる。
func renderFormError(w http.ResponseWriter, r *http.Request, renderer Renderer, page Page, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code == model.ErrCodeInternal {
		handleServiceError(w, r, err)
		return
	}
	page.Errors = append(page.Errors, apiErr.Message)
	renderer.Render(w, r, mapAPIErrorToHTTPStatus(apiErr), page)
}

func logInternalError(r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeDuplicateKey:
		return http.StatusConflict
	case model.ErrCodeAuthFailure, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeSelfFollow, model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
