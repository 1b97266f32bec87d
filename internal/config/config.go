// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// データベースドライバー
const (
	DatabaseDriverPostgres = "pgx"
	DatabaseDriverSQLite   = "sqlite3"
	DatabaseDriverMemory   = "memory"
)

// セッションストア
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// メール送信方式
const (
	MailBackendLog  = "log"
	MailBackendSMTP = "smtp"

	MailDeliverySync  = "sync"
	MailDeliveryQueue = "queue"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret      string        // セッションCookie署名用の秘密鍵
	SessionStore       string        // redis / memory
	RedisURL           string        // セッション保存先のRedis接続URL
	SessionMaxLifetime time.Duration // ログインからの最大有効期間
	SessionIdleTimeout time.Duration // 無操作でセッションを破棄するまでの時間

	// アカウント設定
	DatabaseDriver           string        // pgx / sqlite3 / memory
	DatabaseDSN              string        // データベース接続文字列
	RequireEmailVerification bool          // true の場合、メール確認が済むまでログイン不可
	TokenSecret              string        // 確認トークン署名用の秘密鍵
	VerificationTokenTTL     time.Duration // 確認トークンの有効期間
	FrontendURL              string        // 確認リンクの生成に使うフロントエンドのURL

	// メール設定
	MailBackend   string // log / smtp
	MailDelivery  string // sync / queue
	QueueRedisURL string // Asynq用Redis接続URL
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	MailFrom      string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	ginMode := getEnv("GIN_MODE", "debug")
	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" && ginMode != "release" {
		// 開発用に起動ごとの鍵を使う。再起動するとセッションと確認リンクは無効になる
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		sessionSecret = secret
		log.Printf("WARNING: SESSION_SECRET is not set; using a random secret for this process")
	}
	redisURL := getEnv("REDIS_URL", "redis://127.0.0.1:6379/0")

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: ginMode,

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// セッション設定
		SessionSecret:      sessionSecret,
		SessionStore:       getEnv("SESSION_STORE", SessionStoreRedis),
		RedisURL:           redisURL,
		SessionMaxLifetime: time.Duration(getEnvAsInt("SESSION_MAX_LIFETIME_MINUTES", 720)) * time.Minute,
		SessionIdleTimeout: time.Duration(getEnvAsInt("SESSION_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,

		// アカウント設定
		DatabaseDriver:           getEnv("DATABASE_DRIVER", DatabaseDriverSQLite),
		DatabaseDSN:              getEnv("DATABASE_DSN", "accounts.db"),
		RequireEmailVerification: getEnvAsBool("REQUIRE_EMAIL_VERIFICATION", false),
		TokenSecret:              getEnv("TOKEN_SECRET", sessionSecret),
		VerificationTokenTTL:     time.Duration(getEnvAsInt("VERIFICATION_TOKEN_TTL_HOURS", 72)) * time.Hour,
		FrontendURL:              strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),

		// メール設定
		MailBackend:   getEnv("MAIL_BACKEND", MailBackendLog),
		MailDelivery:  getEnv("MAIL_DELIVERY", MailDeliverySync),
		QueueRedisURL: getEnv("QUEUE_REDIS_URL", redisURL),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		MailFrom:      getEnv("MAIL_FROM", "noreply@app.com"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DatabaseDriverPostgres, DatabaseDriverSQLite, DatabaseDriverMemory:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER: %q", c.DatabaseDriver)
	}
	switch c.SessionStore {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		return fmt.Errorf("unsupported SESSION_STORE: %q", c.SessionStore)
	}
	switch c.MailBackend {
	case MailBackendLog, MailBackendSMTP:
	default:
		return fmt.Errorf("unsupported MAIL_BACKEND: %q", c.MailBackend)
	}
	switch c.MailDelivery {
	case MailDeliverySync, MailDeliveryQueue:
	default:
		return fmt.Errorf("unsupported MAIL_DELIVERY: %q", c.MailDelivery)
	}
	if c.MailBackend == MailBackendSMTP && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when MAIL_BACKEND=smtp")
	}
	if c.MailDelivery == MailDeliveryQueue && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required when MAIL_DELIVERY=queue")
	}

	// 開発時の未設定は Load が一時的な鍵で補う
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}

	if c.GinMode == "release" {
		if c.DatabaseDriver == DatabaseDriverMemory {
			return fmt.Errorf("DATABASE_DRIVER=memory is not allowed in release mode")
		}
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
