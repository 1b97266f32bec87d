// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/config"
	"github.com/yourusername/account-portal/internal/profile"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	deps, err := setupDependencies(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Close()

	router := newRouter(cfg, deps)

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// newRouter はミドルウェアとルーティングを設定したエンジンを返します。
func newRouter(cfg *config.Config, deps *dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if gin.Mode() != gin.TestMode {
		router.Use(gin.Logger())
	}

	// セッションストアの設定（クッキーにはセッションIDだけを載せる）
	cookieOpts := deps.sessions.CookieOptions()
	cookieOpts.HttpOnly = true
	cookieOpts.Secure = cfg.GinMode == gin.ReleaseMode
	cookieOpts.SameSite = http.SameSiteStrictMode
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(cookieOpts)
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, deps)
	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "account-portal-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps *dependencies) {
	router.GET("/health", handleHealth)

	manager := deps.sessions
	api := router.Group("/api", manager.LoadSession())
	{
		authHandler := auth.NewHandler(deps.accounts, manager, deps.logger)
		authHandler.Register(api.Group("/auth"))
		api.GET("/home", manager.RequireLogin(), authHandler.Home)

		opts := profile.HandlerOptions{Logger: deps.logger}
		profileRoutes := api.Group("/profile", manager.RequireLogin(), manager.VerifyCSRF())
		{
			profileRoutes.GET("", profile.GetHandler())
			profileRoutes.POST("", profile.UpdateHandler(deps.accounts, opts))
			profileRoutes.PUT("", profile.UpdateHandler(deps.accounts, opts))
			profileRoutes.PUT("/username", profile.UsernameHandler(deps.accounts, opts))
			profileRoutes.POST("/password", profile.PasswordHandler(deps.accounts, manager, opts))
			profileRoutes.PUT("/password", profile.PasswordHandler(deps.accounts, manager, opts))
		}
	}
}
