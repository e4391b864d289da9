// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// セッション・認証まわりのセンチネルエラー。errors.Isで判定する。
var (
	// ErrInvalidCredentials は未知の(email, password)の組でログインした場合のエラー。
	// メールアドレス不明とパスワード不一致は区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPasswordMismatch はパスワードと確認用パスワードが一致しない場合のエラー。
	// 登録フォームの検証で検出され、セッションマネージャーには到達しない。
	ErrPasswordMismatch = errors.New("password mismatch")

	// ErrSessionExpired はアイドルタイムアウトを検出したことを表す。
	// 呼び出し元には返さず、Anonymousへの遷移として現れる。
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidRegistration は登録入力が不完全な場合のエラー。
	ErrInvalidRegistration = errors.New("invalid registration input")

	// ErrCheckoutFailed はトライアル決済セッションの作成に失敗した場合のエラー。
	ErrCheckoutFailed = errors.New("checkout session creation failed")

	// ErrCorruptRecord は永続化されたセッションレコードを復元できない場合のエラー。
	ErrCorruptRecord = errors.New("corrupt session record")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, billing, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // 入力検証エラーのフィールド別メッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeViewNotFound       = "VIEW_NOT_FOUND"
	ErrCodeCheckoutFailed     = "CHECKOUT_FAILED"
	ErrCodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// どちらのフィールドが誤っていたかは含めない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewPasswordMismatchError はパスワード不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "Passwords do not match.",
		Category: "validation",
		Action:   "Enter the same password in both password fields.",
	}
}

// NewValidationError はフィールド別の入力検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Some required information is missing or invalid.",
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
		Fields:   fields,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You are not signed in or your session has expired.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "This view is only available to administrators.",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewViewNotFoundError は未知のダッシュボードビューを指定した場合のエラーを生成する。
func NewViewNotFoundError(viewID string) *APIError {
	return &APIError{
		Code:     ErrCodeViewNotFound,
		Message:  fmt.Sprintf("Unknown dashboard view: %s", viewID),
		Category: "validation",
		Action:   "Pick a view from the sidebar.",
	}
}

// NewCheckoutFailedError はトライアル決済の開始に失敗した場合のエラーを生成する。
func NewCheckoutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCheckoutFailed,
		Message:  "We could not start your free trial.",
		Category: "billing",
		Action:   "Please wait a moment and try again.",
	}
}

// NewBadRequestError はリクエストボディを解釈できない場合のエラーを生成する。
func NewBadRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeBadRequest,
		Message:  "The request body could not be read.",
		Category: "validation",
		Action:   "Reload the page and try again.",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}
