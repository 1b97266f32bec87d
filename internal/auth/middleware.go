package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/session"
)

const (
	rejectExpired = "SESSION_EXPIRED"
	rejectIdle    = "SESSION_IDLE_TIMEOUT"
)

// LoadSession はクッキーからセッションを復元し、有効であればアカウントをコンテキストに載せます。
// 無効なセッションは破棄しますが、リクエスト自体は匿名として続行します。
func (m *Manager) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		id, ok := cookie.Get(sessionKeyID).(string)
		if !ok || id == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		record, err := m.store.Get(ctx, id)
		if err != nil {
			m.logger.Printf("failed to load session: %v", err)
			abortInternal(c)
			return
		}
		if record == nil {
			m.discard(c, "")
			c.Next()
			return
		}

		now := m.now()
		if now.Sub(record.IssuedAt) > m.maxLifetime {
			m.discard(c, id)
			c.Set(contextRejectKey, rejectExpired)
			c.Next()
			return
		}
		if now.Sub(record.LastActivity) > m.idleTimeout {
			m.discard(c, id)
			c.Set(contextRejectKey, rejectIdle)
			c.Next()
			return
		}

		account, err := m.accounts.Get(ctx, record.AccountID)
		if err != nil && !errors.Is(err, accounts.ErrNotFound) {
			m.logger.Printf("failed to load session account: %v", err)
			abortInternal(c)
			return
		}
		if account == nil || !account.IsActive || !m.validAuthHash(record, account) {
			m.discard(c, id)
			c.Next()
			return
		}

		record.LastActivity = now
		if err := m.save(ctx, record); err != nil {
			m.logger.Printf("failed to touch session: %v", err)
		}

		c.Set(ContextAccountKey, account)
		c.Set(contextRecordKey, record)
		c.Next()
	}
}

// RequireLogin は未ログインのリクエストを 401 で拒否します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentAccount(c); ok {
			c.Next()
			return
		}

		code := "UNAUTHORIZED"
		message := "ログインが必要です。"
		switch c.GetString(contextRejectKey) {
		case rejectExpired:
			code = rejectExpired
			message = "セッションの有効期限が切れました。再度ログインしてください。"
		case rejectIdle:
			code = rejectIdle
			message = "一定時間操作がなかったためログアウトしました。"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":          code,
			"message":       message,
			"authenticated": false,
		})
	}
}

// VerifyCSRF はログイン済みセッションの状態変更リクエストで CSRF トークンを検証します。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		record := currentRecord(c)
		if record == nil || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		token := c.GetHeader(csrfHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRFトークンが必要です。",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(record.CSRFToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRFトークンが無効です。",
			})
			return
		}
		c.Next()
	}
}

func (m *Manager) validAuthHash(record *session.Record, account *accounts.Account) bool {
	expected := m.authHash(account)
	return subtle.ConstantTimeCompare([]byte(record.AuthHash), []byte(expected)) == 1
}

// discard はストアとクッキーの両方からセッションを取り除きます。
func (m *Manager) discard(c *gin.Context, id string) {
	if id != "" {
		if err := m.store.Delete(c.Request.Context(), id); err != nil {
			m.logger.Printf("failed to delete session: %v", err)
		}
	}
	cookie := sessions.Default(c)
	cookie.Clear()
	cookie.Options(m.expiredCookieOptions())
	if err := cookie.Save(); err != nil {
		m.logger.Printf("failed to clear session cookie: %v", err)
	}
}

func abortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "サーバー内部でエラーが発生しました。",
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
