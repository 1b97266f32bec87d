// Package session はサーバー側セッションレコードの保存を提供します。
//
// ブラウザには署名付きCookieでセッションIDだけを渡し、
// セッションID → アカウントIDの対応はこのパッケージのストアが保持します。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Record はセッション1件分の状態です。
type Record struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	AuthHash     string    `json:"authHash"`
	CSRFToken    string    `json:"csrfToken"`
	IssuedAt     time.Time `json:"issuedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Store はセッションレコードの保存先です。
// Get は存在しない（または期限切れの）場合に nil, nil を返します。
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// NewID は推測困難なセッションID / CSRFトークンを生成します。
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
