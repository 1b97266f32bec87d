// Package profile はログイン済みユーザー自身のプロフィール参照・更新エンドポイントを提供します。
package profile

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/httpapi"
)

// Service はプロフィール更新に必要なアカウント操作です。
type Service interface {
	UpdateProfile(ctx context.Context, account *accounts.Account, in accounts.ProfileUpdate) (*accounts.Account, error)
	UpdateUsername(ctx context.Context, account *accounts.Account, username string) (*accounts.Account, error)
	UpdatePassword(ctx context.Context, account *accounts.Account, in accounts.PasswordChange) (*accounts.Account, error)
}

// SessionRefresher はパスワード変更後に現在のセッションを維持するためのものです。
type SessionRefresher interface {
	RefreshAuth(c *gin.Context, account *accounts.Account) error
}

// HandlerOptions はハンドラーの設定です。
type HandlerOptions struct {
	Logger *log.Logger
}

type profileResponse struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	DateJoined string `json:"date_joined"`
}

// GetHandler はプロフィールを返します。
func GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := requireAccount(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, profileResponse{
			Username:   account.Username,
			Email:      account.Email,
			DateJoined: account.DateJoined.UTC().Format(time.RFC3339),
		})
	}
}

type updateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// UpdateHandler はユーザー名とメールアドレスのうち送信された項目を更新します。
func UpdateHandler(svc Service, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := requireAccount(c)
		if !ok {
			return
		}
		var req updateRequest
		if !httpapi.Bind(c, &req) {
			return
		}

		updated, err := svc.UpdateProfile(c.Request.Context(), account, accounts.ProfileUpdate{
			Username: req.Username,
			Email:    req.Email,
		})
		if err != nil {
			httpapi.RespondWithError(c, opts.Logger, err)
			return
		}
		c.Set(auth.ContextAccountKey, updated)
		c.JSON(http.StatusOK, gin.H{
			"message": "プロフィールを更新しました。",
			"user":    updated.Summary(),
		})
	}
}

type usernameRequest struct {
	Username string `json:"username"`
}

// UsernameHandler はユーザー名だけを変更します。
func UsernameHandler(svc Service, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := requireAccount(c)
		if !ok {
			return
		}
		var req usernameRequest
		if !httpapi.Bind(c, &req) {
			return
		}

		updated, err := svc.UpdateUsername(c.Request.Context(), account, req.Username)
		if err != nil {
			httpapi.RespondWithError(c, opts.Logger, err)
			return
		}
		c.Set(auth.ContextAccountKey, updated)
		c.JSON(http.StatusOK, gin.H{
			"message":  "ユーザー名を変更しました。",
			"username": updated.Username,
		})
	}
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// PasswordHandler はパスワードを変更します。変更したセッション自体はログイン状態を維持します。
func PasswordHandler(svc Service, sessions SessionRefresher, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := requireAccount(c)
		if !ok {
			return
		}
		var req passwordRequest
		if !httpapi.Bind(c, &req) {
			return
		}

		updated, err := svc.UpdatePassword(c.Request.Context(), account, accounts.PasswordChange{
			CurrentPassword: req.CurrentPassword,
			NewPassword:     req.NewPassword,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			httpapi.RespondWithError(c, opts.Logger, err)
			return
		}
		if err := sessions.RefreshAuth(c, updated); err != nil {
			httpapi.RespondWithError(c, opts.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "パスワードを変更しました。"})
	}
}

// requireAccount は RequireLogin を通らずに呼ばれた場合に備えて 401 を返します。
func requireAccount(c *gin.Context) (*accounts.Account, bool) {
	account, ok := auth.CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です。",
		})
	}
	return account, ok
}
