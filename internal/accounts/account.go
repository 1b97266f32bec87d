// Package accounts はアカウントの登録・認証・プロフィール更新を提供します。
package accounts

import (
	"encoding/base64"
	"time"
)

// Account は登録済みユーザーを表します。
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	DateJoined   time.Time
	// LastLogin はゼロ値なら未ログインです。確認トークンの失効にも使います。
	LastLogin time.Time
}

// Summary はクライアントへ返す公開フィールドです。
type Summary struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Summary は公開フィールドだけを取り出します。
func (a *Account) Summary() Summary {
	return Summary{Username: a.Username, Email: a.Email}
}

func (a *Account) clone() *Account {
	cp := *a
	return &cp
}

// EncodeUID は確認リンクに埋め込むアカウント識別子を返します。
func EncodeUID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeUID は EncodeUID の逆変換です。
func DecodeUID(uid string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
