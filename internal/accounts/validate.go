package accounts

import (
	"regexp"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 8
	// MaxPasswordBytes は bcrypt が扱える入力長の上限です。
	MaxPasswordBytes = 72
)

var (
	uppercasePattern = regexp.MustCompile(`[A-Z]`)
	symbolPattern    = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

func anyEmpty(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return true
		}
	}
	return false
}

func validateUsername(username string) *Error {
	if username == "" {
		return validationError(CodeUsernameRequired, "ユーザー名を入力してください。")
	}
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return validationError(CodeUsernameTooShort, "ユーザー名は3文字以上で入力してください。")
	}
	return nil
}

// validateNewPassword は変更後パスワードの複雑さを検証します。
// 現在のパスワードの照合は呼び出し側で先に済ませておくこと。
func validateNewPassword(password, confirm string) *Error {
	if password != confirm {
		return validationError(CodePasswordMismatch, "新しいパスワードが一致しません。")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return validationError(CodePasswordTooShort, "新しいパスワードは8文字以上で入力してください。")
	}
	if len(password) > MaxPasswordBytes {
		return errPasswordTooLong()
	}
	if !uppercasePattern.MatchString(password) {
		return validationError(CodePasswordNoUppercase, "新しいパスワードには大文字を1文字以上含めてください。")
	}
	if !symbolPattern.MatchString(password) {
		return validationError(CodePasswordNoSymbol, "新しいパスワードには記号を1文字以上含めてください。")
	}
	return nil
}

func errPasswordTooLong() *Error {
	return validationError(CodePasswordTooLong, "パスワードは72バイト以内で入力してください。")
}
