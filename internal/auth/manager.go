// Package auth はセッションの発行・検証と認証系エンドポイントを提供します。
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/session"
)

const (
	SessionCookieName = "ap_session"
	sessionKeyID      = "sid"

	csrfHeader = "X-CSRF-Token"
)

const (
	defaultMaxLifetime = 12 * time.Hour
	defaultIdleTimeout = 30 * time.Minute
)

// ContextAccountKey は、ハンドラー間でログイン済みアカウントを共有するためのキーです。
const ContextAccountKey = "auth.account"

const (
	contextRecordKey = "auth.session"
	contextRejectKey = "auth.reject"
)

// AccountFinder はセッションに紐づくアカウントを取得します。
type AccountFinder interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
}

// Options は Manager の設定です。ゼロ値の項目には既定値を使います。
type Options struct {
	// Secret はセッションの認証ハッシュ計算に使う鍵です。
	Secret      string
	MaxLifetime time.Duration
	IdleTimeout time.Duration
	// Cookie はセッションクッキーの属性です。MaxAge は MaxLifetime から決まります。
	Cookie sessions.Options
	Logger *log.Logger
	Now    func() time.Time
}

// Manager はセッションの発行・検証・破棄をまとめた構造体です。
type Manager struct {
	store       session.Store
	accounts    AccountFinder
	secret      []byte
	maxLifetime time.Duration
	idleTimeout time.Duration
	cookie      sessions.Options
	logger      *log.Logger
	now         func() time.Time
}

// NewManager は認証マネージャーを作成します。
func NewManager(store session.Store, finder AccountFinder, opts Options) *Manager {
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = defaultMaxLifetime
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	opts.Cookie.MaxAge = int(opts.MaxLifetime.Seconds())
	return &Manager{
		store:       store,
		accounts:    finder,
		secret:      []byte(opts.Secret),
		maxLifetime: opts.MaxLifetime,
		idleTimeout: opts.IdleTimeout,
		cookie:      opts.Cookie,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// CookieOptions はセッションクッキーの属性を返します。クッキーストアの初期設定に使います。
func (m *Manager) CookieOptions() sessions.Options {
	return m.cookie
}

func (m *Manager) expiredCookieOptions() sessions.Options {
	opts := m.cookie
	opts.MaxAge = -1
	return opts
}

// CurrentAccount はリクエストに紐づくログイン済みアカウントを返します。
func CurrentAccount(c *gin.Context) (*accounts.Account, bool) {
	v, ok := c.Get(ContextAccountKey)
	if !ok {
		return nil, false
	}
	account, ok := v.(*accounts.Account)
	return account, ok && account != nil
}

func currentRecord(c *gin.Context) *session.Record {
	v, ok := c.Get(contextRecordKey)
	if !ok {
		return nil
	}
	record, _ := v.(*session.Record)
	return record
}

// StartSession はアカウントに新しいセッションを発行します。
// 既存のセッションがあれば破棄し、セッションIDを必ず振り直します。
func (m *Manager) StartSession(c *gin.Context, account *accounts.Account) (*session.Record, error) {
	ctx := c.Request.Context()
	cookie := sessions.Default(c)
	if old, ok := cookie.Get(sessionKeyID).(string); ok && old != "" {
		if err := m.store.Delete(ctx, old); err != nil {
			m.logger.Printf("failed to delete previous session: %v", err)
		}
	}

	id, err := session.NewID()
	if err != nil {
		return nil, err
	}
	csrf, err := session.NewID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	record := &session.Record{
		ID:           id,
		AccountID:    account.ID,
		AuthHash:     m.authHash(account),
		CSRFToken:    csrf,
		IssuedAt:     now,
		LastActivity: now,
	}
	if err := m.save(ctx, record); err != nil {
		return nil, err
	}

	cookie.Clear()
	cookie.Options(m.cookie)
	cookie.Set(sessionKeyID, id)
	if err := cookie.Save(); err != nil {
		return nil, err
	}

	c.Set(ContextAccountKey, account)
	c.Set(contextRecordKey, record)
	c.Header(csrfHeader, csrf)
	return record, nil
}

// RefreshAuth はパスワード変更後も現在のセッションを維持するため、認証ハッシュを更新します。
// 同じアカウントの他のセッションは次回のリクエストで無効になります。
func (m *Manager) RefreshAuth(c *gin.Context, account *accounts.Account) error {
	record := currentRecord(c)
	if record == nil || record.AccountID != account.ID {
		return errors.New("no session bound to account")
	}
	record.AuthHash = m.authHash(account)
	if err := m.save(c.Request.Context(), record); err != nil {
		return err
	}
	c.Set(ContextAccountKey, account)
	return nil
}

// EnsureCSRF はセッションの CSRF トークンを返します。未発行なら発行して保存します。
func (m *Manager) EnsureCSRF(c *gin.Context) (string, error) {
	record := currentRecord(c)
	if record == nil {
		return "", errors.New("no session")
	}
	if record.CSRFToken == "" {
		token, err := session.NewID()
		if err != nil {
			return "", err
		}
		record.CSRFToken = token
		if err := m.save(c.Request.Context(), record); err != nil {
			return "", err
		}
	}
	c.Header(csrfHeader, record.CSRFToken)
	return record.CSRFToken, nil
}

// EndSession はセッションを破棄します。セッションが無くても成功します。
func (m *Manager) EndSession(c *gin.Context) error {
	cookie := sessions.Default(c)
	if id, ok := cookie.Get(sessionKeyID).(string); ok && id != "" {
		if err := m.store.Delete(c.Request.Context(), id); err != nil {
			return err
		}
	}
	cookie.Clear()
	cookie.Options(m.expiredCookieOptions())
	c.Set(ContextAccountKey, nil)
	c.Set(contextRecordKey, nil)
	return cookie.Save()
}

func (m *Manager) save(ctx context.Context, record *session.Record) error {
	ttl := record.IssuedAt.Add(m.maxLifetime).Sub(m.now())
	return m.store.Save(ctx, record, ttl)
}

// authHash はパスワードハッシュから導出した値で、パスワードが変わるとセッションを無効にするために使います。
func (m *Manager) authHash(account *accounts.Account) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(account.PasswordHash))
	return hex.EncodeToString(mac.Sum(nil))
}
