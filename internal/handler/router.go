package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandshield/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     *middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証・登録
	SessionService SessionServiceInterface
	SignupService  SignupServiceInterface
	TokenIssuer    TokenIssuer
	AuthConfig     AuthHandlerConfig

	// ダッシュボード
	Views ViewCatalogue

	// メトリクス。nilの場合は/metricsを公開しない
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → CSRFMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）はクライアントIP単位のレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.SessionService, deps.SignupService, deps.TokenIssuer, deps.Authenticator, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.Views)
	sessionMW := middleware.NewSessionMiddleware(deps.Authenticator)

	// --- 認証不要のルート ---
	r.Get("/health", HealthCheck)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/status", authHandler.Status)
		r.Post("/logout", authHandler.Logout)
		r.With(sessionMW).Get("/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/signup", authHandler.Signup)
			r.Post("/signup/steps/{step}", authHandler.ValidateStep)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(sessionMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		r.Post("/api/activity", dashboardHandler.RecordActivity)

		r.Route("/api/views", func(r chi.Router) {
			r.Get("/", dashboardHandler.ListViews)
			r.Get("/{id}", dashboardHandler.GetView)
		})
	})

	return r
}

// HealthCheck はプロセスの生存確認に応答する。
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
