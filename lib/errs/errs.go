package errs

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var ErrInternal = errors.New("internal error")

var ErrInsufficientFunds = errors.New("insufficient funds")

var ErrInsufficientHoldings = errors.New("insufficient holdings")

var ErrInvalidAmount = errors.New("amount and price must be positive")

var ErrInvalidSymbol = errors.New("symbol is required")

var ErrInvalidKind = errors.New("unsupported trade kind")

var ErrAlreadyCompeting = errors.New("already competing")

var ErrNoSession = errors.New("no active session")

// AuthKind enumerates the identity provider failures surfaced to the user.
type AuthKind string

const (
	AuthInvalidCredential AuthKind = "invalid-credential"
	AuthNotFound          AuthKind = "user-not-found"
	AuthWeakPassword      AuthKind = "weak-password"
	AuthAlreadyInUse      AuthKind = "email-already-in-use"
	AuthInvalidEmail      AuthKind = "invalid-email"
)

var authMessages = map[string]map[AuthKind]string{
	"en": {
		AuthInvalidCredential: "Wrong email or password.",
		AuthNotFound:          "Account not found.",
		AuthWeakPassword:      "Password is too weak (at least 6 characters).",
		AuthAlreadyInUse:      "This email is already registered.",
		AuthInvalidEmail:      "Invalid email.",
	},
	"vi": {
		AuthInvalidCredential: "Sai mật khẩu.",
		AuthNotFound:          "Không tìm thấy tài khoản.",
		AuthWeakPassword:      "Mật khẩu quá yếu (cần > 6 ký tự).",
		AuthAlreadyInUse:      "Email này đã được đăng ký.",
		AuthInvalidEmail:      "Email không hợp lệ.",
	},
}

// AuthFailure is terminal for the current auth operation; it is never retried.
type AuthFailure struct {
	Kind AuthKind
}

func (e *AuthFailure) Error() string {
	return "auth: " + string(e.Kind)
}

// Message returns the localized user-facing text, falling back to English.
func (e *AuthFailure) Message(lang string) string {
	if msgs, ok := authMessages[lang]; ok {
		if msg, ok := msgs[e.Kind]; ok {
			return msg
		}
	}
	return authMessages["en"][e.Kind]
}

func NewAuthFailure(kind AuthKind) error {
	return &AuthFailure{Kind: kind}
}

// SyncFailure wraps a failed remote read or write. It is logged, never rolled back.
type SyncFailure struct {
	Op  string
	Err error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncFailure) Unwrap() error {
	return e.Err
}
