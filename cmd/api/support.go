package main

import (
	"context"
	"fmt"
	"log"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/account-portal/internal/accounts"
	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/config"
	"github.com/yourusername/account-portal/internal/jobs"
	"github.com/yourusername/account-portal/internal/mail"
	"github.com/yourusername/account-portal/internal/session"
	"github.com/yourusername/account-portal/internal/tokens"
)

// dependencies はハンドラーが利用するサービス群です。
type dependencies struct {
	accounts *accounts.Service
	sessions *auth.Manager
	logger   *log.Logger
	closers  []func()
}

// Close は確保したリソースを逆順に解放します。
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func setupDependencies(ctx context.Context, cfg *config.Config, logger *log.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	repo, err := setupAccountRepository(ctx, cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	store, err := setupSessionStore(ctx, cfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	mailer, err := setupMailer(cfg, logger, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	generator, err := tokens.NewGenerator(cfg.TokenSecret, cfg.VerificationTokenTTL)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.accounts = accounts.NewService(repo, generator, mailer, accounts.Options{
		RequireEmailVerification: cfg.RequireEmailVerification,
		FrontendURL:              cfg.FrontendURL,
		Logger:                   logger,
	})
	deps.sessions = auth.NewManager(store, deps.accounts, auth.Options{
		Secret:      cfg.SessionSecret,
		MaxLifetime: cfg.SessionMaxLifetime,
		IdleTimeout: cfg.SessionIdleTimeout,
		Logger:      logger,
	})
	return deps, nil
}

func setupAccountRepository(ctx context.Context, cfg *config.Config, deps *dependencies) (accounts.Repository, error) {
	switch cfg.DatabaseDriver {
	case config.DatabaseDriverMemory:
		deps.logger.Printf("using in-memory account repository; data is lost on restart")
		return accounts.NewMemoryRepository(), nil
	case config.DatabaseDriverPostgres, config.DatabaseDriverSQLite:
		db, err := accounts.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { db.Close() })
		return accounts.NewSQLRepository(db, cfg.DatabaseDriver), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}
}

func setupSessionStore(ctx context.Context, cfg *config.Config, deps *dependencies) (session.Store, error) {
	if cfg.SessionStore == config.SessionStoreMemory {
		return session.NewMemoryStore(), nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	deps.closers = append(deps.closers, func() { rdb.Close() })
	return session.NewRedisStore(rdb), nil
}

func setupMailer(cfg *config.Config, logger *log.Logger, deps *dependencies) (mail.Sender, error) {
	var sender mail.Sender
	switch cfg.MailBackend {
	case config.MailBackendSMTP:
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	default:
		sender = mail.NewLogSender(logger)
	}

	if cfg.MailDelivery != config.MailDeliveryQueue {
		return sender, nil
	}

	manager, err := jobs.NewManager(cfg.QueueRedisURL, sender, logger)
	if err != nil {
		return nil, err
	}
	manager.StartWorkers()
	deps.closers = append(deps.closers, func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Printf("failed to shutdown mail queue: %v", err)
		}
	})
	return manager, nil
}
