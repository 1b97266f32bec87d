package auth

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/httpapi"
)

// AccountService は認証系ハンドラーが利用するアカウント操作です。
type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (*accounts.Account, error)
	VerifyEmail(ctx context.Context, uid, token string) (*accounts.Account, error)
	Authenticate(ctx context.Context, username, password, email string) (*accounts.Account, error)
	RequiresVerification() bool
}

// Handler は /api/auth 配下のエンドポイントを提供します。
type Handler struct {
	accounts AccountService
	manager  *Manager
	logger   *log.Logger
}

// NewHandler は認証ハンドラーを作成します。
func NewHandler(svc AccountService, manager *Manager, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{accounts: svc, manager: manager, logger: logger}
}

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Signup は新規登録を受け付けます。セッションは作成しません。
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if !httpapi.Bind(c, &req) {
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), accounts.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		httpapi.RespondWithError(c, h.logger, err)
		return
	}

	pending := h.accounts.RequiresVerification()
	message := "登録が完了しました。確認メールを送信しました。"
	if pending {
		message = "確認メールを送信しました。メール内のリンクから登録を完了してください。"
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": message,
		"pending": pending,
		"email":   account.Email,
		"user":    account.Summary(),
	})
}

type verifyRequest struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// VerifyEmail は確認リンクを検証し、成功したらそのままログイン状態にします。
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyRequest
	if !httpapi.Bind(c, &req) {
		return
	}

	account, err := h.accounts.VerifyEmail(c.Request.Context(), req.UID, req.Token)
	if err != nil {
		httpapi.RespondWithError(c, h.logger, err)
		return
	}
	if _, err := h.manager.StartSession(c, account); err != nil {
		httpapi.RespondWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "メールアドレスを確認しました。",
		"user":          account.Summary(),
		"authenticated": true,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Login はユーザー名とパスワードで認証し、新しいセッションを発行します。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !httpapi.Bind(c, &req) {
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		var apiErr *accounts.Error
		if errors.As(err, &apiErr) && apiErr.Code == accounts.CodeInvalidCredentials {
			h.logger.Printf("login failed username=%q ip=%s", req.Username, c.ClientIP())
		}
		httpapi.RespondWithError(c, h.logger, err)
		return
	}
	if _, err := h.manager.StartSession(c, account); err != nil {
		httpapi.RespondWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "ログインしました。",
		"user":          account.Summary(),
		"authenticated": true,
	})
}

// Logout はセッションを破棄します。未ログインでも成功として扱います。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.manager.EndSession(c); err != nil {
		h.logger.Printf("logout cleanup failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "ログアウトしました。",
		"authenticated": false,
	})
}

// CheckAuth は現在のログイン状態を返します。ログイン済みなら CSRF トークンをヘッダーで渡します。
func (h *Handler) CheckAuth(c *gin.Context) {
	account, ok := CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	if _, err := h.manager.EnsureCSRF(c); err != nil {
		httpapi.RespondWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          account.Summary(),
	})
}

// Home はログイン済みユーザー向けのトップ情報です。RequireLogin の後ろに置くこと。
func (h *Handler) Home(c *gin.Context) {
	account, ok := CurrentAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "ようこそ、" + account.Username + " さん",
		"user":          account.Username,
		"authenticated": true,
	})
}

// Register は認証系のルートを登録します。logout は CSRF 検証の対象にします。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/signup", h.Signup)
	rg.POST("/verify-email", h.VerifyEmail)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.manager.VerifyCSRF(), h.Logout)
	rg.GET("/session", h.CheckAuth)
}
