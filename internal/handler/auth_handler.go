// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandshield/internal/middleware"
	"github.com/hitoshi/brandshield/internal/model"
	"github.com/hitoshi/brandshield/internal/session"
	"github.com/hitoshi/brandshield/internal/signup"
)

// SessionServiceInterface は認証ハンドラーが必要とするセッション操作。session.Managerが実装する。
type SessionServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Identity, error)
	Logout(ctx context.Context)
	CurrentSession(ctx context.Context) (*model.Identity, string)
	IsLoading() bool
	State() session.State
}

// SignupServiceInterface は登録系ハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	QuickRegister(ctx context.Context, in *signup.QuickRegistration) (*signup.Result, error)
	ValidateStep(step int, in *signup.TrialSignup) error
	Signup(ctx context.Context, in *signup.TrialSignup) (*signup.Result, error)
}

// TokenIssuer はIdentityとセッションIDに対するベアラートークンを発行する。auth.TokenManagerが実装する。
type TokenIssuer interface {
	Generate(identity model.Identity, sessionID string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	sessions SessionServiceInterface
	signups  SignupServiceInterface
	tokens   TokenIssuer
	authn    *middleware.Authenticator
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionServiceInterface, signups SignupServiceInterface, tokens TokenIssuer, authn *middleware.Authenticator, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		signups:  signups,
		tokens:   tokens,
		authn:    authn,
		config:   config,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッション確立時のレスポンス。
type sessionResponse struct {
	Token             string               `json:"token"`
	User              *model.Identity      `json:"user"`
	CheckoutSessionID string               `json:"checkoutSessionId,omitempty"`
	Brand             *signup.BrandProfile `json:"brand,omitempty"`
}

type statusResponse struct {
	Loading       bool   `json:"loading"`
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
}

// Status はセッションの状態を返す。復元中はloading=trueとなる。
// GET /auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Loading:       h.sessions.IsLoading(),
		State:         h.sessions.State().String(),
		Authenticated: h.authn.Authenticate(r) != nil,
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidCredentials) {
			slog.Error("login failed", slog.String("error", err.Error()))
		}
		handleServiceError(w, err)
		return
	}

	h.writeSession(w, r, http.StatusOK, identity, nil)
}

// Register はログイン画面の簡易登録フォームを処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req signup.QuickRegistration
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.signups.QuickRegister(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeSession(w, r, http.StatusCreated, result.Identity, result)
}

// Signup はトライアル申込ウィザードの最終送信を処理する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signup.TrialSignup
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.signups.Signup(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeSession(w, r, http.StatusCreated, result.Identity, result)
}

// ValidateStep はウィザードの1ステップ分の入力を検証する。
// POST /auth/signup/steps/{step}
func (h *AuthHandler) ValidateStep(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var req signup.TrialSignup
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.signups.ValidateStep(step, &req); err != nil {
		if errors.Is(err, signup.ErrUnknownStep) {
			http.NotFound(w, r)
			return
		}
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。セッションミドルウェアの内側に配置する。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

// Logout はセッションを破棄する。
// 現在のセッションのトークンを持つリクエストだけがセッションを終了できる。
// それ以外はCookieの削除のみ行う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if identity := h.authn.Authenticate(r); identity != nil {
		h.sessions.Logout(r.Context())
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// writeSession は確立したばかりのセッションに束縛したトークンを発行し、
// HttpOnly Cookieとレスポンスボディの両方で返す。
func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, statusCode int, identity *model.Identity, result *signup.Result) {
	current, sessionID := h.sessions.CurrentSession(r.Context())
	if current == nil || current.ID != identity.ID {
		// 直後に別のログインかログアウトが割り込んだ
		slog.Warn("session was replaced before the token was issued",
			slog.String("user_id", identity.ID),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	token, err := h.tokens.Generate(*identity, sessionID)
	if err != nil {
		slog.Error("failed to issue session token",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		// トークンなしのセッションは利用できないため破棄する
		h.sessions.Logout(r.Context())
		middleware.WriteInternalServerError(w)
		return
	}

	h.setSessionCookie(w, token, h.config.SessionMaxAge)

	resp := sessionResponse{Token: token, User: identity}
	if result != nil {
		resp.CheckoutSessionID = result.CheckoutSessionID
		resp.Brand = result.Brand
	}
	writeJSON(w, statusCode, resp)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
