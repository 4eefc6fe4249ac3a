// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はコードが一致するAPIErrorを同一エラーとみなす。
// errors.Is(err, &APIError{Code: ErrCodeDuplicateKey}) の形で判定できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateKey    = "DUPLICATE_KEY"
	ErrCodeAuthFailure     = "AUTH_FAILURE"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeSelfFollow      = "SELF_FOLLOW"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeCSRFInvalid     = "CSRF_INVALID"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// エラー判定用の番兵値。errors.Isで使用する。
var (
	ErrDuplicateKey    = &APIError{Code: ErrCodeDuplicateKey}
	ErrAuthFailure     = &APIError{Code: ErrCodeAuthFailure}
	ErrUnauthenticated = &APIError{Code: ErrCodeUnauthenticated}
	ErrSelfFollow      = &APIError{Code: ErrCodeSelfFollow}
	ErrUserNotFound    = &APIError{Code: ErrCodeUserNotFound}
	ErrInvalidInput    = &APIError{Code: ErrCodeInvalidInput}
)

// NewDuplicateKeyError はユーザー名またはメールアドレスの重複エラーを生成する。
// fieldには重複した項目名（username, email）を指定する。
func NewDuplicateKeyError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateKey,
		Message:  fmt.Sprintf("この%sは既に使用されています。", fieldLabel(field)),
		Category: "validation",
		Action:   fmt.Sprintf("別の%sを指定してください。", fieldLabel(field)),
	}
}

// NewAuthFailureError は認証失敗エラーを生成する。
// ユーザー名の存在有無を推測できないよう、失敗理由は区別しない。
func NewAuthFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailure,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSelfFollowError は自分自身をフォロー・フォロー解除しようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身をフォローすることはできません。",
		Category: "social",
		Action:   "他のユーザーを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", username),
		Category: "social",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewNotFoundError はページやリソースが見つからない場合のエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたページが見つかりません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewInvalidInputError は入力値が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を修正して再度送信してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "フォームの有効期限が切れているか、不正なリクエストです。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度送信してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func fieldLabel(field string) string {
	switch field {
	case "username":
		return "ユーザー名"
	case "email":
		return "メールアドレス"
	default:
		return field
	}
}
