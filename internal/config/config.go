// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションレコードの保存先。
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Session
	SessionIdleTimeout   time.Duration
	SessionCheckInterval time.Duration
	SessionStore         string

	// Database（SessionStore=postgresのとき必須）
	DatabaseURL string

	// Redis（SessionStore=redisのとき必須）
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Token
	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	// Checkout（CheckoutBaseURLが空の場合はスタブを使う）
	CheckoutBaseURL string
	CheckoutTimeout time.Duration
	TrialDays       int
	TrialPriceCents int

	// Rate Limit（req/min）
	RateLimitAuth    int
	RateLimitGeneral int

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", StoreMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	switch cfg.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE %q (want memory, postgres or redis)", cfg.SessionStore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", time.Hour)
	cfg.SessionCheckInterval = getEnvDuration("SESSION_CHECK_INTERVAL", time.Minute)
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "brandshield:")
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "brandshield")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.CheckoutBaseURL = getEnvString("CHECKOUT_BASE_URL", "")
	cfg.CheckoutTimeout = getEnvDuration("CHECKOUT_TIMEOUT", 10*time.Second)
	cfg.TrialDays = getEnvInt("TRIAL_DAYS", 30)
	cfg.TrialPriceCents = getEnvInt("TRIAL_PRICE_CENTS", 2900)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.SessionIdleTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %v", cfg.SessionIdleTimeout)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %v", cfg.TokenTTL)
	}

	return cfg, nil
}

// loadDotEnv はpathが存在する場合だけ読み込む。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
