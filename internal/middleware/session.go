// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/brandshield/internal/auth"
	"github.com/hitoshi/brandshield/internal/model"
)

// SessionCookieName はベアラートークンを保持するHttpOnly Cookieの名前。
const SessionCookieName = "brandshield_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// TokenParser はベアラートークンを検証する。auth.TokenManagerが実装する。
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// SessionSource は現在のセッションを提供する。session.Managerが実装する。
type SessionSource interface {
	CurrentSession(ctx context.Context) (*model.Identity, string)
	Touch(ctx context.Context) error
}

// Authenticator はリクエストを現在のセッションと照合する。
// トークンが検証でき、subjectが現在のIdentityと、jtiが現在のセッションIDと一致する場合のみ認証済みとする。
// セッションIDはログインごとに変わるため、ログアウト済みのログインのトークンは同じユーザーの再ログイン後も通らない。
type Authenticator struct {
	tokens   TokenParser
	sessions SessionSource
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(tokens TokenParser, sessions SessionSource) *Authenticator {
	return &Authenticator{tokens: tokens, sessions: sessions}
}

// Authenticate はリクエストのIdentityを返す。未認証の場合はnilを返す。
// 最終アクティビティ時刻は更新しない。
func (a *Authenticator) Authenticate(r *http.Request) *model.Identity {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil
	}
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return nil
	}

	identity, sessionID := a.sessions.CurrentSession(r.Context())
	if identity == nil || sessionID == "" {
		return nil
	}
	if identity.ID != claims.Subject || sessionID != claims.ID {
		return nil
	}
	return identity
}

// TokenFromRequest はHttpOnly Cookie、なければAuthorization: Bearerヘッダーからトークンを取り出す。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// NewSessionMiddleware はリクエストを認証し、Identityをリクエストコンテキストに注入するミドルウェアを返す。
// 認証済みリクエストは操作として扱い、セッションの最終アクティビティ時刻を更新する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(authn *Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := authn.Authenticate(r)
			if identity == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if err := authn.sessions.Touch(r.Context()); err != nil {
				if errors.Is(err, model.ErrSessionExpired) {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				slog.Error("failed to record session activity",
					slog.String("user_id", identity.ID),
					slog.String("error", err.Error()),
				)
			}

			setLoggedUserID(r.Context(), identity.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.ID, nil
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
