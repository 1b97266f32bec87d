// Package tokens はメールアドレス確認用トークンの発行と検証を行います。
//
// トークンは保存しません。アカウントID、パスワードハッシュ、有効化フラグ、最終ログイン日時から
// 計算したフィンガープリントを HS256 の JWT に含めるため、いずれかが変わると以前のトークンは無効になります。
// 確認に成功すると最終ログイン日時が進むので、同じトークンは一度しか使えません。
package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourusername/account-portal/internal/accounts"
)

// Claims は確認トークンのクレームです。Subject にアカウントIDを入れます。
type Claims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"fp"`
}

// Generator は確認トークンを発行・検証します。
type Generator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewGenerator は Generator を作成します。
func NewGenerator(secret string, ttl time.Duration) (*Generator, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Generator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Make はアカウントの現在の状態に紐づいたトークンを発行します。
func (g *Generator) Make(account *accounts.Account) (string, error) {
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
		Fingerprint: g.fingerprint(account),
	})
	return token.SignedString(g.secret)
}

// Check はトークンが account に対して有効かどうかを返します。
func (g *Generator) Check(account *accounts.Account, token string) bool {
	if account == nil || token == "" {
		return false
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(account.ID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	return hmac.Equal([]byte(claims.Fingerprint), []byte(g.fingerprint(account)))
}

func (g *Generator) fingerprint(account *accounts.Account) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(account.ID))
	mac.Write([]byte{0})
	mac.Write([]byte(account.PasswordHash))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatBool(account.IsActive)))
	mac.Write([]byte{0})
	if !account.LastLogin.IsZero() {
		mac.Write([]byte(strconv.FormatInt(account.LastLogin.UnixMicro(), 10)))
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
