package accounts

import "errors"

var (
	// ErrNotFound はアカウントが存在しないことを表します。
	ErrNotFound = errors.New("account not found")
	// ErrUsernameTaken はユーザー名の一意制約に違反したことを表します。
	ErrUsernameTaken = errors.New("username already taken")
	// ErrLoginConflict は最終ログイン時刻が読み取り後に別のリクエストで更新されたことを表します。
	ErrLoginConflict = errors.New("last login changed concurrently")
)

// Kind はエラーの分類です。HTTP ステータスへの変換に使います。
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindDelivery
)

const (
	CodeRequiredFields           = "REQUIRED_FIELDS"
	CodePasswordMismatch         = "PASSWORD_MISMATCH"
	CodePasswordTooShort         = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong          = "PASSWORD_TOO_LONG"
	CodePasswordNoUppercase      = "PASSWORD_UPPERCASE_REQUIRED"
	CodePasswordNoSymbol         = "PASSWORD_SYMBOL_REQUIRED"
	CodeUsernameRequired         = "USERNAME_REQUIRED"
	CodeUsernameTooShort         = "USERNAME_TOO_SHORT"
	CodeUsernameTaken            = "USERNAME_TAKEN"
	CodeCurrentPasswordIncorrect = "CURRENT_PASSWORD_INCORRECT"
	CodeInvalidVerification      = "INVALID_VERIFICATION"
	CodeInvalidCredentials       = "INVALID_CREDENTIALS"
	CodeMailDeliveryFailed       = "MAIL_DELIVERY_FAILED"
)

// Error はクライアントへそのまま返せるエラーです。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func errUsernameTaken() *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeUsernameTaken,
		Message: "このユーザー名は既に使用されています。",
		Err:     ErrUsernameTaken,
	}
}

func errInvalidVerification() *Error {
	return validationError(CodeInvalidVerification, "確認リンクが無効か、有効期限が切れています。")
}

func errInvalidCredentials() *Error {
	return &Error{
		Kind:    KindUnauthorized,
		Code:    CodeInvalidCredentials,
		Message: "ユーザー名またはパスワードが正しくありません",
	}
}
