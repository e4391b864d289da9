package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/brandshield/internal/auth"
	"github.com/hitoshi/brandshield/internal/checkout"
	"github.com/hitoshi/brandshield/internal/config"
	"github.com/hitoshi/brandshield/internal/dashboard"
	"github.com/hitoshi/brandshield/internal/database"
	"github.com/hitoshi/brandshield/internal/handler"
	"github.com/hitoshi/brandshield/internal/logger"
	"github.com/hitoshi/brandshield/internal/metrics"
	"github.com/hitoshi/brandshield/internal/middleware"
	"github.com/hitoshi/brandshield/internal/repository"
	"github.com/hitoshi/brandshield/internal/security"
	"github.com/hitoshi/brandshield/internal/session"
	"github.com/hitoshi/brandshield/internal/signup"
	"github.com/hitoshi/brandshield/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .envで指定されたログレベルを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// server はAPIサーバーを構成するコンポーネント。
type server struct {
	handler     http.Handler
	manager     *session.Manager
	rateLimiter *middleware.RateLimiter
	closeStore  func() error
	stopCleanup context.CancelFunc
}

// newServer は全依存関係をワイヤリングし、セッションマネージャーを起動する。
// ctxはセッション復元とストア接続確認に使う。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	// 1. セッションストアの初期化
	kv, db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := repository.NewKVSessionRecordRepo(kv)

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 認証
	verifier, err := auth.NewStaticCredentials(auth.DefaultCredentials(), 0)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to build credential table: %w", err)
	}
	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)

	// 4. セッションマネージャーの起動（永続化レコードの復元とアイドルチェック）
	manager := session.NewManager(store, verifier, session.Config{
		IdleTimeout:   cfg.SessionIdleTimeout,
		CheckInterval: cfg.SessionCheckInterval,
		Logger:        log,
		Recorder:      collector,
	})
	if err := manager.Start(ctx); err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to start session manager: %w", err)
	}

	// 5. 登録フロー
	checkoutClient, err := newCheckoutClient(cfg, log)
	if err != nil {
		manager.Stop()
		closeStore()
		return nil, err
	}
	signupService := signup.NewService(manager, checkoutClient, signup.Config{
		TrialDays:  cfg.TrialDays,
		PriceCents: cfg.TrialPriceCents,
	}, log, collector)

	// 6. ルーターの構築
	rl := middleware.NewRateLimiter(rateLimiterConfig(cfg))

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     middleware.NewAuthenticator(tokens, manager),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SessionService: manager,
		SignupService:  signupService,
		TokenIssuer:    tokens,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: int(cfg.TokenTTL / time.Second),
		},
		Views:          dashboard.NewCatalogue(),
		MetricsHandler: metrics.Handler(reg),
	})

	// ミドルウェアスタック: Recovery → SecurityHeaders → Logging → Router
	var h http.Handler = router
	h = middleware.NewLoggingMiddleware(log, collector)(h)
	h = middleware.NewSecurityHeadersMiddleware()(h)
	h = middleware.NewRecoveryMiddleware()(h)

	// 7. PostgreSQLストアでは期限切れセッション行を定期削除する
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	if db != nil {
		job := cleanup.NewCleanupJob(db, log)
		job.Retention = cfg.SessionIdleTimeout
		go job.RunEvery(cleanupCtx, cfg.SessionIdleTimeout)
	}

	return &server{
		handler:     h,
		manager:     manager,
		rateLimiter: rl,
		closeStore:  closeStore,
		stopCleanup: stopCleanup,
	}, nil
}

// Close はバックグラウンドタスクを停止し、ストア接続を閉じる。
func (s *server) Close() {
	s.stopCleanup()
	s.manager.Stop()
	s.rateLimiter.Stop()
	if err := s.closeStore(); err != nil {
		slog.Error("failed to close session store", slog.String("error", err.Error()))
	}
}

// openStore はSESSION_STOREに応じたKeyValueStoreを開く。
// PostgreSQLストアの場合のみ*sql.DBを返す。
func openStore(ctx context.Context, cfg *config.Config) (repository.KeyValueStore, *sql.DB, func() error, error) {
	switch cfg.SessionStore {
	case config.StorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresKVStore(db), db, db.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return repository.NewRedisKVStore(client, cfg.RedisKeyPrefix), nil, client.Close, nil

	default:
		slog.Warn("using in-memory session store; sessions will not survive a restart")
		return repository.NewMemoryKVStore(), nil, func() error { return nil }, nil
	}
}

// newCheckoutClient はCHECKOUT_BASE_URLが設定されていればHTTPクライアント、なければスタブを返す。
func newCheckoutClient(cfg *config.Config, log *slog.Logger) (checkout.Client, error) {
	if cfg.CheckoutBaseURL == "" {
		log.Warn("CHECKOUT_BASE_URL is not set; using stub checkout client")
		return checkout.NewStubClient(), nil
	}

	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.CheckoutBaseURL); err != nil {
		return nil, fmt.Errorf("invalid CHECKOUT_BASE_URL: %w", err)
	}
	return checkout.NewHTTPClient(
		cfg.CheckoutBaseURL,
		guard.NewClient(cfg.CheckoutBaseURL, cfg.CheckoutTimeout),
		log,
	), nil
}

// rateLimiterConfig はreq/min単位の設定値をreq/secのリミッター設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAuth > 0 {
		rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
		rlCfg.AuthBurst = cfg.RateLimitAuth
	}
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := newServer(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はlocal_storageテーブルのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
