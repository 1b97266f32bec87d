package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/account-portal/internal/mail"
)

// TokenGenerator は確認トークンの発行と検証を行います。
// トークンはアカウントの状態から導出され、パスワードや有効化フラグ、最終ログイン日時が変わると無効になります。
type TokenGenerator interface {
	Make(account *Account) (string, error)
	Check(account *Account, token string) bool
}

// Options は Service の挙動を切り替える設定です。
type Options struct {
	// RequireEmailVerification が true の場合、登録直後のアカウントは無効状態で作成されます。
	RequireEmailVerification bool
	// FrontendURL は確認リンクのベースURLです。
	FrontendURL string
	// HashCost は bcrypt のコストです。0 の場合は bcrypt.DefaultCost。
	HashCost int
	Logger   *log.Logger
	Now      func() time.Time
}

// Service はアカウント操作のユースケースをまとめた構造体です。
type Service struct {
	repo   Repository
	tokens TokenGenerator
	mailer mail.Sender
	opts   Options
}

// NewService は Service を作成します。
func NewService(repo Repository, tokens TokenGenerator, mailer mail.Sender, opts Options) *Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.FrontendURL = strings.TrimRight(opts.FrontendURL, "/")
	return &Service{repo: repo, tokens: tokens, mailer: mailer, opts: opts}
}

// RequiresVerification は登録直後にメール確認が必須かどうかを返します。
func (s *Service) RequiresVerification() bool {
	return s.opts.RequireEmailVerification
}

// RegisterInput は新規登録の入力です。
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register はアカウントを作成し、確認メールを1通送信します。
// メール送信に失敗してもアカウントは残り、作成済みアカウントと KindDelivery のエラーを返します。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	if anyEmpty(in.Username, in.Email, in.Password, in.ConfirmPassword) {
		return nil, validationError(CodeRequiredFields, "すべての項目を入力してください。")
	}
	if in.Password != in.ConfirmPassword {
		return nil, validationError(CodePasswordMismatch, "パスワードが一致しません。")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, validationError(CodePasswordTooShort, "パスワードは8文字以上で入力してください。")
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, errPasswordTooLong()
	}
	if verr := validateUsername(in.Username); verr != nil {
		return nil, verr
	}

	taken, err := s.repo.UsernameTaken(ctx, in.Username, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errUsernameTaken()
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		IsActive:     !s.opts.RequireEmailVerification,
		DateJoined:   s.opts.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, errUsernameTaken()
		}
		return nil, err
	}

	if err := s.sendVerification(ctx, account); err != nil {
		s.opts.Logger.Printf("verification mail failed account=%s: %v", account.ID, err)
		return account, &Error{
			Kind:    KindDelivery,
			Code:    CodeMailDeliveryFailed,
			Message: "アカウントは作成されましたが、確認メールの送信に失敗しました。",
			Err:     err,
		}
	}
	return account, nil
}

// VerificationLink は確認メールに記載するリンクを組み立てます。
func (s *Service) VerificationLink(account *Account) (string, error) {
	token, err := s.tokens.Make(account)
	if err != nil {
		return "", fmt.Errorf("failed to make verification token: %w", err)
	}
	q := url.Values{}
	q.Set("uid", EncodeUID(account.ID))
	q.Set("token", token)
	return s.opts.FrontendURL + "/verify-email?" + q.Encode(), nil
}

func (s *Service) sendVerification(ctx context.Context, account *Account) error {
	link, err := s.VerificationLink(account)
	if err != nil {
		return err
	}
	msg, err := mail.VerificationMessage(account.Email, account.Username, link)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

// VerifyEmail は確認リンクの uid と token を検証し、アカウントを有効化します。
// 成功時に最終ログイン日時を進めるため、同じトークンは二度と使えません。
// 失敗理由（uid 不正・アカウント不在・トークン不一致）は区別せずに返します。
func (s *Service) VerifyEmail(ctx context.Context, uid, token string) (*Account, error) {
	if uid == "" || token == "" {
		return nil, errInvalidVerification()
	}
	id, err := DecodeUID(uid)
	if err != nil {
		return nil, errInvalidVerification()
	}
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidVerification()
		}
		return nil, err
	}
	if !s.tokens.Check(account, token) {
		return nil, errInvalidVerification()
	}

	// 先に最終ログイン日時を書き換えてトークンを消費する。同時に使われた場合は片方だけが通る
	at, err := s.recordLogin(ctx, account)
	if err != nil {
		if errors.Is(err, ErrLoginConflict) || errors.Is(err, ErrNotFound) {
			return nil, errInvalidVerification()
		}
		return nil, err
	}
	account.LastLogin = at

	if !account.IsActive {
		account.IsActive = true
		if err := s.repo.Update(ctx, account); err != nil {
			return nil, err
		}
	}
	return account, nil
}

func (s *Service) recordLogin(ctx context.Context, account *Account) (time.Time, error) {
	at := s.opts.Now().UTC().Truncate(time.Microsecond)
	if !at.After(account.LastLogin) {
		at = account.LastLogin.Add(time.Microsecond)
	}
	if err := s.repo.RecordLogin(ctx, account.ID, account.LastLogin, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Authenticate はユーザー名とパスワードを照合します。
// email が空でない場合は登録済みのメールアドレスとの一致も確認します。
func (s *Service) Authenticate(ctx context.Context, username, password, email string) (*Account, error) {
	if username == "" || password == "" {
		return nil, validationError(CodeRequiredFields, "ユーザー名とパスワードを入力してください。")
	}
	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}
	if !checkPassword(account.PasswordHash, password) {
		return nil, errInvalidCredentials()
	}
	if !account.IsActive {
		return nil, errInvalidCredentials()
	}
	if email != "" && !strings.EqualFold(strings.TrimSpace(email), account.Email) {
		return nil, errInvalidCredentials()
	}

	at, err := s.recordLogin(ctx, account)
	switch {
	case err == nil:
		account.LastLogin = at
	case errors.Is(err, ErrLoginConflict):
		// 同時ログインで先に更新された。発行済みの確認トークンはどちらにしても無効になる
		s.opts.Logger.Printf("last login changed concurrently account=%s", account.ID)
	default:
		return nil, err
	}
	return account, nil
}

// Get は ID でアカウントを取得します。
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// ProfileUpdate はプロフィール更新の入力です。nil のフィールドは変更しません。
type ProfileUpdate struct {
	Username *string
	Email    *string
}

// UpdateProfile はユーザー名とメールアドレスのうち指定されたものを更新します。
func (s *Service) UpdateProfile(ctx context.Context, account *Account, in ProfileUpdate) (*Account, error) {
	updated := account.clone()
	if in.Username != nil {
		if err := s.checkUsernameChange(ctx, account, *in.Username); err != nil {
			return nil, err
		}
		updated.Username = *in.Username
	}
	if in.Email != nil {
		updated.Email = strings.TrimSpace(*in.Email)
	}
	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateUsername はユーザー名だけを変更します。
func (s *Service) UpdateUsername(ctx context.Context, account *Account, username string) (*Account, error) {
	if err := s.checkUsernameChange(ctx, account, username); err != nil {
		return nil, err
	}
	updated := account.clone()
	updated.Username = username
	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) checkUsernameChange(ctx context.Context, account *Account, username string) error {
	if verr := validateUsername(username); verr != nil {
		return verr
	}
	taken, err := s.repo.UsernameTaken(ctx, username, account.ID)
	if err != nil {
		return err
	}
	if taken {
		return errUsernameTaken()
	}
	return nil
}

// PasswordChange はパスワード変更の入力です。
type PasswordChange struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// UpdatePassword は現在のパスワードを確認したうえで新しいパスワードへ置き換えます。
// 呼び出し側は返されたアカウントでセッションの認証ハッシュを更新すること。
func (s *Service) UpdatePassword(ctx context.Context, account *Account, in PasswordChange) (*Account, error) {
	if anyEmpty(in.CurrentPassword, in.NewPassword, in.ConfirmPassword) {
		return nil, validationError(CodeRequiredFields, "すべての項目を入力してください。")
	}
	if !checkPassword(account.PasswordHash, in.CurrentPassword) {
		return nil, validationError(CodeCurrentPasswordIncorrect, "現在のパスワードが正しくありません。")
	}
	if verr := validateNewPassword(in.NewPassword, in.ConfirmPassword); verr != nil {
		return nil, verr
	}

	hash, err := s.hashPassword(in.NewPassword)
	if err != nil {
		return nil, err
	}
	updated := account.clone()
	updated.PasswordHash = hash
	if err := s.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) save(ctx context.Context, account *Account) error {
	if err := s.repo.Update(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return errUsernameTaken()
		}
		return err
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
